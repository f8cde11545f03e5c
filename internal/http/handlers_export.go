package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"expensehub/internal/export"
	"expensehub/internal/log"
	"expensehub/internal/metrics"
)

// handleExport downloads every project expense as xlsx (default) or csv.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := s.deps.Export.ExportRows(ctx)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		s.serverError(w, r, err)
		return
	}
	metrics.ObserveExportRows(string(format), len(rows))
	log.FromContext(ctx).WithComponent(log.ComponentExport).InfoContext(ctx, "Export generated",
		log.FieldOperation, log.OpExport,
		log.FieldRecords, len(rows),
		"format", format)

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
