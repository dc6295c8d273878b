package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/datamgmt"
)

// Header names.
const (
	RequestIDHeader = "X-Request-ID"
	// UserIDHeader carries the authenticated caller, resolved by the gateway
	// in front of this service.
	UserIDHeader = "X-User-ID"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// RequestID reuses an incoming X-Request-ID or generates one, echoes it on
// the response and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logging logs each request with method, path, status, duration and request id.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
				"request_id", requestIDFrom(r.Context()),
			)
		})
	}
}

// Recovery turns a panic into a 500 persistence error.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "request_id", requestIDFrom(r.Context()))
					writeError(w, datamgmt.KindPersistence, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RequireUser is a huma middleware rejecting requests without a valid
// X-User-ID header. The parsed id is available through userFrom.
func RequireUser(ctx huma.Context, next func(huma.Context)) {
	id, err := uuid.Parse(ctx.Header(UserIDHeader))
	if err != nil || id == uuid.Nil {
		ctx.SetHeader("Content-Type", "application/json")
		ctx.SetStatus(http.StatusUnauthorized)
		body := ErrorBody{Kind: KindUnauthorized, Message: "missing or invalid " + UserIDHeader + " header"}
		if err := encodeJSON(ctx.BodyWriter(), body); err != nil {
			slog.Default().Error("failed to encode JSON response", "error", err)
		}
		return
	}
	next(huma.WithValue(ctx, userIDKey, id))
}

func userFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}
