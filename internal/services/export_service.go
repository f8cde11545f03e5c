package services

import (
	"context"
	"fmt"

	"expensehub/internal/core"
)

// ExportStore reads joined expenses for exports.
type ExportStore interface {
	ProjectExpenseDetails(ctx context.Context) ([]core.ExpenseDetail, error)
	ExpenseDetail(ctx context.Context, id int64) (core.ExpenseDetail, error)
}

type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

// ExportRows returns one row per expense that has a project, ordered by id.
func (s *ExportService) ExportRows(ctx context.Context) ([]core.ExportRow, error) {
	details, err := s.store.ProjectExpenseDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("load project expenses: %w", err)
	}
	rows := make([]core.ExportRow, len(details))
	for i, d := range details {
		rows[i] = core.NewExportRow(d)
	}
	return rows, nil
}

// ExportRow returns the row for a single expense. ok is false for personal
// expenses, which are never exported.
func (s *ExportService) ExportRow(ctx context.Context, id int64) (row core.ExportRow, ok bool, err error) {
	d, err := s.store.ExpenseDetail(ctx, id)
	if err != nil {
		return core.ExportRow{}, false, err
	}
	if d.ProjectID == 0 {
		return core.ExportRow{}, false, nil
	}
	return core.NewExportRow(d), true, nil
}
