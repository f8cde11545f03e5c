package http

import (
	"errors"
	"net/http"

	"expensehub/internal/log"
	"expensehub/internal/mobile"
	"expensehub/internal/services"
)

// The mobile app sends its fields either as query parameters or as a
// urlencoded body, and expects text/plain answers.

func (s *Server) handleMobileLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blob, err := s.deps.Sync.Login(ctx, r.FormValue("u"), r.FormValue("p"))
	if err != nil {
		s.writeMobileError(w, r, log.OpLogin, err)
		return
	}
	writeText(w, http.StatusOK, blob)
}

func (s *Server) handleMobileSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blob, err := s.deps.Sync.Sync(ctx, r.FormValue("token"))
	if err != nil {
		s.writeMobileError(w, r, log.OpSync, err)
		return
	}
	writeText(w, http.StatusOK, blob)
}

func (s *Server) handleMobileExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.deps.Expenses.IngestMobile(ctx, r.FormValue("q"))
	if err != nil {
		var ierr *services.IngestError
		if errors.As(err, &ierr) {
			w.Header().Set("X-Expenses-Saved", mobile.EncodeAck(ierr.Saved))
		}
		s.writeMobileError(w, r, log.OpIngest, err)
		return
	}
	log.FromContext(ctx).WithComponent(log.ComponentMobile).InfoContext(ctx, "Mobile expenses saved",
		log.FieldRecords, res.Saved,
		"mode", s.deps.Expenses.BatchMode())
	writeText(w, http.StatusOK, mobile.EncodeAck(res.Saved))
}

// writeMobileError maps not-found and bad credentials to 404, malformed
// input to 400 and everything else to 500.
func (s *Server) writeMobileError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err, http.StatusBadRequest)
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentMobile)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Mobile request failed", log.FieldOperation, op, log.FieldError, err)
		writeText(w, status, http.StatusText(status))
		return
	}
	logger.InfoContext(r.Context(), "Mobile request rejected",
		log.FieldOperation, op,
		log.FieldStatusCode, status,
		log.FieldError, err)
	writeText(w, status, err.Error())
}
