package memory

import (
	"context"
	"fmt"
	"sync"

	"famledger/internal/sheets"
)

var _ sheets.RowAppender = (*Store)(nil)

// Store keeps the mirrored journal in memory. It stands in for the
// spreadsheet when none is configured.
type Store struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
	refs map[string]string
}

func New() *Store {
	return &Store{refs: make(map[string]string)}
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, row sheets.LedgerRow) (string, error) {
	if row.EventID == "" {
		return "", fmt.Errorf("row has no event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[row.EventID]; ok {
		return ref, nil
	}
	s.rows = append(s.rows, row)
	ref := fmt.Sprintf("mem:%d", len(s.rows))
	s.refs[row.EventID] = ref
	return ref, nil
}

// Rows returns a copy of the journal in append order.
func (s *Store) Rows() []sheets.LedgerRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.LedgerRow(nil), s.rows...)
}
