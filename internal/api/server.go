package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryanbastic/go-structdata/internal/datamgmt"
	"github.com/ryanbastic/go-structdata/internal/metrics"
	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/table"
	"github.com/ryanbastic/go-structdata/internal/trigger"
)

// DefaultRowsLimit is the page size of GET .../rows when neither the request
// nor Options set one.
const DefaultRowsLimit = 100

// DataService is the facade surface served over HTTP. *datamgmt.Service
// implements it.
type DataService interface {
	CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*storage.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]storage.Conversation, error)

	Create(ctx context.Context, userID uuid.UUID, in datamgmt.CreateInput) (*storage.Unit, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*storage.Unit, error)
	GetByMessageID(ctx context.Context, messageID string, userID uuid.UUID) (*storage.Unit, error)
	List(ctx context.Context, userID uuid.UUID, f storage.UnitFilter) ([]storage.Unit, error)
	Update(ctx context.Context, id, userID uuid.UUID, in datamgmt.UpdateInput) (*storage.Unit, error)
	Delete(ctx context.Context, id, userID uuid.UUID, soft bool) error

	Columns(ctx context.Context, id, userID uuid.UUID) ([]storage.Column, error)
	CreateColumn(ctx context.Context, id, userID uuid.UUID, spec datamgmt.ColumnSpec) (*storage.Column, error)
	UpdateColumn(ctx context.Context, id, userID uuid.UUID, name string, patch datamgmt.ColumnPatch) (*storage.Column, error)
	DeleteColumn(ctx context.Context, id, userID uuid.UUID, name string) error

	Rows(ctx context.Context, id, userID uuid.UUID, skip, limit int) (table.Page, error)
	AddRow(ctx context.Context, id, userID uuid.UUID, row table.Row) (table.Row, int, error)
	UpdateRow(ctx context.Context, id, userID uuid.UUID, index int, patch table.Row) (table.Row, error)
	DeleteRow(ctx context.Context, id, userID uuid.UUID, index int) (table.Row, error)
	UpdateCell(ctx context.Context, id, userID uuid.UUID, c datamgmt.CellUpdate) (*storage.HistoryEntry, error)

	History(ctx context.Context, id, userID uuid.UUID, limit, offset int) ([]storage.HistoryEntry, error)
}

var _ DataService = (*datamgmt.Service)(nil)

// Options tunes request defaults.
type Options struct {
	RowsDefaultLimit int
}

// NewServer creates the HTTP handler with all routes configured. Data and
// conversation operations require X-User-ID; plugins, probes, metrics and
// the OpenAPI document do not.
func NewServer(logger *slog.Logger, svc DataService, plugins *trigger.PluginRegistry, backends map[string]Pinger, opts Options) http.Handler {
	if opts.RowsDefaultLimit <= 0 {
		opts.RowsDefaultLimit = DefaultRowsLimit
	}

	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)

	health := NewHealthHandler(backends, logger)
	mux.Get("/v1/livez", health.Livez)
	mux.Get("/v1/readyz", health.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	api := humachi.New(mux, huma.DefaultConfig("Structured Data API", "1.0.0"))
	auth := huma.Middlewares{RequireUser}

	registerConversationRoutes(api, &ConversationHandler{svc: svc, logger: logger}, auth)
	registerDataRoutes(api, &DataHandler{svc: svc, logger: logger}, auth)
	registerColumnRoutes(api, &ColumnHandler{svc: svc, logger: logger}, auth)
	registerRowRoutes(api, &RowHandler{svc: svc, logger: logger, defaultLimit: opts.RowsDefaultLimit}, auth)
	registerHistoryRoutes(api, &HistoryHandler{svc: svc, logger: logger}, auth)
	registerPluginRoutes(api, NewPluginHandler(plugins, logger))

	return mux
}

// parseID converts a uuid path or query value. huma has already validated
// the format, so failures are rare.
func parseID(name, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, huma.Error400BadRequest("invalid " + name)
	}
	return id, nil
}
