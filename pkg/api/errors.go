package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vulnforge/reportformats/pkg/reportformat"
)

type errorResponse struct {
	Error string `json:"error"`
	// Code is the operation's numeric result code, when it has one.
	Code int `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusOf maps a lifecycle error to an HTTP status.
func statusOf(err error) int {
	switch reportformat.KindOf(err) {
	case reportformat.KindPermission:
		return http.StatusForbidden
	case reportformat.KindNotFound:
		return http.StatusNotFound
	case reportformat.KindValidation:
		return http.StatusBadRequest
	case reportformat.KindConflict, reportformat.KindInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeOpError reports err from op. Errors outside the closed set are logged
// and answered with a generic message.
func writeOpError(w http.ResponseWriter, logger *slog.Logger, op reportformat.Operation, err error) {
	var rfErr *reportformat.Error
	if !errors.As(err, &rfErr) {
		logger.Error("report format operation failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rfErr.Kind == reportformat.KindInternal {
		logger.Error("report format operation failed", "op", op, "error", err)
	}
	resp := errorResponse{Error: rfErr.Reason}
	if code := reportformat.CodeOf(op, err); code > 0 {
		resp.Code = code
	}
	writeJSON(w, statusOf(err), resp)
}
