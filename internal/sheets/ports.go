// Package sheets defines the spreadsheet sink the export worker writes to.
package sheets

import (
	"context"

	"expensehub/internal/core"
)

// RowAppender appends export rows to a remote spreadsheet. Appending a row
// whose ID is already present returns the existing reference and writes
// nothing, so redelivered messages do not duplicate rows.
type RowAppender interface {
	AppendExportRow(ctx context.Context, row core.ExportRow) (rowRef string, err error)
}
