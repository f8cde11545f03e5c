// Package worker turns expense-created events into spreadsheet rows.
package worker

import (
	"context"
	"fmt"

	"expensehub/internal/amqp"
	"expensehub/internal/core"
	"expensehub/internal/log"
	"expensehub/internal/metrics"
	"expensehub/internal/sheets"
)

// RowSource loads the export row of one expense. ok is false when the
// expense has no project.
type RowSource interface {
	ExportRow(ctx context.Context, id int64) (row core.ExportRow, ok bool, err error)
}

type ExportWorker struct {
	rows   RowSource
	sheet  sheets.RowAppender
	logger *log.Logger
}

func NewExportWorker(rows RowSource, sheet sheets.RowAppender, logger *log.Logger) *ExportWorker {
	return &ExportWorker{
		rows:   rows,
		sheet:  sheet,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleExpenseCreated appends the expense to the sheet. Personal expenses
// and expenses that no longer exist are acknowledged without writing.
func (w *ExportWorker) HandleExpenseCreated(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	row, ok, err := w.rows.ExportRow(ctx, msg.ID)
	if core.IsNotFound(err) {
		w.logger.WarnContext(ctx, "Expense from message not found, skipping", log.FieldExpenseID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load export row %d: %w", msg.ID, err)
	}
	if !ok {
		w.logger.DebugContext(ctx, "Personal expense, not exported", log.FieldExpenseID, msg.ID)
		return nil
	}

	ref, err := w.sheet.AppendExportRow(ctx, row)
	if err != nil {
		return fmt.Errorf("append expense %d: %w", msg.ID, err)
	}
	metrics.ObserveExportRows("sheets", 1)
	w.logger.InfoContext(ctx, "Expense exported",
		log.FieldExpenseID, msg.ID,
		log.FieldSource, msg.Source,
		log.FieldOperation, log.OpAppend,
		"ref", ref)
	return nil
}

// Consumer is the subscription side of the AMQP client.
type Consumer interface {
	ConsumeExpenseCreated(ctx context.Context, handler func(context.Context, *amqp.ExpenseCreatedMessage) error) error
}

// Run consumes until ctx is cancelled.
func (w *ExportWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Export worker started")
	err := consumer.ConsumeExpenseCreated(ctx, w.HandleExpenseCreated)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("consume expense events: %w", err)
	}
	w.logger.InfoContext(ctx, "Export worker stopped")
	return nil
}
