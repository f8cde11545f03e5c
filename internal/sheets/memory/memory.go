// Package memory is an in-process RowAppender for tests. Like the Google
// client it appends each expense id at most once.
package memory

import (
	"context"
	"fmt"
	"sync"

	"expensehub/internal/core"
	ports "expensehub/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []core.ExportRow
	refs map[int64]string
}

var _ ports.RowAppender = (*Store)(nil)

func New() *Store {
	return &Store{refs: make(map[int64]string)}
}

func (s *Store) AppendExportRow(_ context.Context, row core.ExportRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[row.ID]; ok {
		return ref, nil
	}
	s.rows = append(s.rows, row)
	ref := fmt.Sprintf("mem:%d", len(s.rows))
	s.refs[row.ID] = ref
	return ref, nil
}

// Rows returns a copy of the appended rows in append order.
func (s *Store) Rows() []core.ExportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ExportRow(nil), s.rows...)
}
