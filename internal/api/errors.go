package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/ryanbastic/go-structdata/internal/datamgmt"
)

// KindUnauthorized is reported when a request carries no usable user id.
const KindUnauthorized = "unauthorized"

// ErrorBody is the JSON error shape returned by every data operation. It
// satisfies huma.StatusError so handlers can return it directly.
type ErrorBody struct {
	Kind    string `json:"kind" doc:"Machine-readable error kind" example:"not_found"`
	Message string `json:"message" doc:"Human-readable message"`
	status  int
}

func (e *ErrorBody) Error() string  { return e.Message }
func (e *ErrorBody) GetStatus() int { return e.status }

var kindStatus = map[string]int{
	datamgmt.KindNotFound:           http.StatusNotFound,
	datamgmt.KindRowIndexOutOfRange: http.StatusNotFound,
	datamgmt.KindColumnNotFound:     http.StatusNotFound,
	datamgmt.KindForbidden:          http.StatusForbidden,
	datamgmt.KindInvalidFormat:      http.StatusUnprocessableEntity,
	datamgmt.KindColumnExists:       http.StatusConflict,
	datamgmt.KindConflict:           http.StatusConflict,
	datamgmt.KindPersistence:        http.StatusInternalServerError,
	KindUnauthorized:                http.StatusUnauthorized,
}

func statusFor(kind string) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// dataError classifies a facade error. Persistence failures are logged with
// attrs and their detail is withheld from the client.
func dataError(logger *slog.Logger, err error, attrs ...any) error {
	kind := datamgmt.Kind(err)
	msg := err.Error()
	if kind == datamgmt.KindPersistence {
		logger.Error("data operation failed", append(attrs, "error", err)...)
		msg = "internal error"
	}
	return &ErrorBody{Kind: kind, Message: msg, status: statusFor(kind)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := encodeJSON(w, v); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

func encodeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, kind, msg string) {
	writeJSON(w, statusFor(kind), ErrorBody{Kind: kind, Message: msg})
}
