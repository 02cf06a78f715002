package audit

import (
	"encoding/json"
	"sync"

	"parley/internal/domain"
)

// MemorySink is the default in-process audit log. Append-only; records are
// kept in arrival order and exported as plain JSON objects.
type MemorySink struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Append stores one record.
func (s *MemorySink) Append(rec domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Entries exports every record in append order.
func (s *MemorySink) Entries() ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]json.RawMessage, 0, len(s.records))
	for _, rec := range s.records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }

var _ domain.AuditSink = (*MemorySink)(nil)
