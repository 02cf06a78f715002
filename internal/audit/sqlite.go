package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"parley/internal/domain"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_log (
	"id" INTEGER PRIMARY KEY AUTOINCREMENT,
	"sender" TEXT NOT NULL,
	"ciphertext" BLOB NOT NULL,
	"iv" BLOB NOT NULL,
	"timestamp" INTEGER NOT NULL,
	"stored_at" TEXT NOT NULL);`

// SQLiteSink appends records to a sqlite database so the ciphertext trail
// survives relay restarts. Only the roster is in-memory-only; the audit
// trail may be durable, it still never holds anything decryptable.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) the database at path and ensures
// the audit table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(createAuditTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts one record. There is no update or delete path.
func (s *SQLiteSink) Append(rec domain.AuditRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (sender, ciphertext, iv, timestamp, stored_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Sender, rec.Ciphertext, rec.IV, rec.Timestamp, rec.StoredAt,
	)
	return err
}

// Entries exports every stored record in insertion order.
func (s *SQLiteSink) Entries() ([]json.RawMessage, error) {
	rows, err := s.db.Query(
		`SELECT sender, ciphertext, iv, timestamp, stored_at FROM audit_log ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var rec domain.AuditRecord
		if err := rows.Scan(&rec.Sender, &rec.Ciphertext, &rec.IV, &rec.Timestamp, &rec.StoredAt); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error { return s.db.Close() }

var _ domain.AuditSink = (*SQLiteSink)(nil)
