package audit_test

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"parley/internal/audit"
	"parley/internal/domain"
)

func record(sender string, n int64) domain.AuditRecord {
	return domain.AuditRecord{
		Sender:     sender,
		Ciphertext: []byte("opaque ciphertext"),
		IV:         []byte("nonce-bytes!"),
		Timestamp:  n,
		StoredAt:   "2026-01-02T03:04:05Z",
	}
}

func TestMemorySink_AppendOrder(t *testing.T) {
	sink := audit.NewMemorySink()
	for i := int64(0); i < 3; i++ {
		if err := sink.Append(record("alice", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := sink.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, raw := range entries {
		var rec domain.AuditRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		if rec.Timestamp != int64(i) {
			t.Fatalf("entry %d out of order: %+v", i, rec)
		}
	}
}

func TestSealedSink_RoundTrip(t *testing.T) {
	key, err := audit.NewLogKey()
	if err != nil {
		t.Fatalf("NewLogKey: %v", err)
	}
	sink, err := audit.NewSealedSink(key)
	if err != nil {
		t.Fatalf("NewSealedSink: %v", err)
	}

	if err := sink.Append(record("bob", 9)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entries, err := sink.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	// Exported form carries only the sealing material, none of the record's
	// own fields.
	var exported map[string]json.RawMessage
	if err := json.Unmarshal(entries[0], &exported); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("sealed entry fields = %v", exported)
	}
	for _, field := range []string{"nonce", "ciphertext"} {
		if _, ok := exported[field]; !ok {
			t.Fatalf("sealed entry missing %q: %s", field, entries[0])
		}
	}

	recs, err := audit.Unseal(key, entries)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if len(recs) != 1 || recs[0].Sender != "bob" || recs[0].Timestamp != 9 {
		t.Fatalf("unsealed = %+v", recs)
	}
}

func TestSealedSink_WrongKeyFails(t *testing.T) {
	key, _ := audit.NewLogKey()
	other, _ := audit.NewLogKey()

	sink, err := audit.NewSealedSink(key)
	if err != nil {
		t.Fatalf("NewSealedSink: %v", err)
	}
	if err := sink.Append(record("bob", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entries, _ := sink.Entries()

	if _, err := audit.Unseal(other, entries); err == nil {
		t.Fatal("unseal with wrong key succeeded")
	}
}

func TestSealedSink_BadKeyLength(t *testing.T) {
	if _, err := audit.NewSealedSink([]byte("short")); !errors.Is(err, audit.ErrBadLogKey) {
		t.Fatalf("err = %v, want ErrBadLogKey", err)
	}
}

func TestSQLiteSink_AppendAndEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := audit.NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	defer sink.Close()

	if err := sink.Append(record("alice", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sink.Append(record("bob", 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := sink.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	var rec domain.AuditRecord
	if err := json.Unmarshal(entries[1], &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Sender != "bob" || rec.Timestamp != 2 {
		t.Fatalf("rec = %+v", rec)
	}
}
