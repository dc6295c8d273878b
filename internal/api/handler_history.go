package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

type ListHistoryInput struct {
	ID     string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Limit  int    `query:"limit" doc:"Maximum entries; server default when 0" minimum:"0" maximum:"1000"`
	Offset int    `query:"offset" doc:"Entries to skip" minimum:"0" default:"0"`
}

type ListHistoryOutput struct {
	Body []storage.HistoryEntry
}

type HistoryHandler struct {
	svc    DataService
	logger *slog.Logger
}

func registerHistoryRoutes(api huma.API, h *HistoryHandler, auth huma.Middlewares) {
	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/v1/structured-data/{id}/history",
		Summary:     "Change history, newest first",
		Description: "History stays readable after a soft delete.",
		Tags:        []string{"history"},
		Middlewares: auth,
	}, h.List)
}

func (h *HistoryHandler) List(ctx context.Context, input *ListHistoryInput) (*ListHistoryOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	entries, err := h.svc.History(ctx, id, user, input.Limit, input.Offset)
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user)
	}
	if entries == nil {
		entries = []storage.HistoryEntry{}
	}
	return &ListHistoryOutput{Body: entries}, nil
}
