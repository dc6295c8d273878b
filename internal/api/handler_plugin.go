package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/trigger"
)

// --- Huma Input/Output types ---

type RegisterPluginBody struct {
	Name              string   `json:"name" doc:"Unique plugin name" required:"true" minLength:"1"`
	Endpoint          string   `json:"endpoint" doc:"JSON-RPC endpoint URL" required:"true" minLength:"1" format:"uri"`
	SubscribedChanges []string `json:"subscribed_changes" doc:"Change types to receive, e.g. UPDATE_CELL" required:"true" minItems:"1"`
}

type RegisterPluginInput struct {
	Body RegisterPluginBody
}

type PluginResponse struct {
	ID                uuid.UUID `json:"id" doc:"Plugin UUID"`
	Name              string    `json:"name" doc:"Plugin name"`
	Endpoint          string    `json:"endpoint" doc:"JSON-RPC endpoint URL"`
	SubscribedChanges []string  `json:"subscribed_changes" doc:"Subscribed change types"`
	Status            string    `json:"status" doc:"Plugin status" example:"active"`
	CreatedAt         time.Time `json:"created_at" doc:"Creation timestamp"`
}

type PluginOutput struct {
	Body PluginResponse
}

type ListPluginsInput struct{}

type ListPluginsOutput struct {
	Body []PluginResponse
}

type PluginIDInput struct {
	PluginID string `path:"plugin_id" doc:"Plugin UUID" format:"uuid"`
}

// --- Handler ---

type PluginHandler struct {
	registry *trigger.PluginRegistry
	logger   *slog.Logger
}

func NewPluginHandler(registry *trigger.PluginRegistry, logger *slog.Logger) *PluginHandler {
	return &PluginHandler{registry: registry, logger: logger}
}

func registerPluginRoutes(api huma.API, h *PluginHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-plugin",
		Method:        http.MethodPost,
		Path:          "/v1/plugins",
		Summary:       "Register a change-notification plugin",
		Tags:          []string{"plugins"},
		DefaultStatus: http.StatusCreated,
	}, h.RegisterPlugin)

	huma.Register(api, huma.Operation{
		OperationID: "list-plugins",
		Method:      http.MethodGet,
		Path:        "/v1/plugins",
		Summary:     "List all plugins",
		Tags:        []string{"plugins"},
	}, h.ListPlugins)

	huma.Register(api, huma.Operation{
		OperationID: "get-plugin",
		Method:      http.MethodGet,
		Path:        "/v1/plugins/{plugin_id}",
		Summary:     "Get a plugin by ID",
		Tags:        []string{"plugins"},
	}, h.GetPlugin)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-plugin",
		Method:        http.MethodDelete,
		Path:          "/v1/plugins/{plugin_id}",
		Summary:       "Delete a plugin",
		Tags:          []string{"plugins"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeletePlugin)
}

func (h *PluginHandler) RegisterPlugin(ctx context.Context, input *RegisterPluginInput) (*PluginOutput, error) {
	changes := make([]storage.ChangeType, len(input.Body.SubscribedChanges))
	for i, c := range input.Body.SubscribedChanges {
		changes[i] = storage.ChangeType(c)
	}
	p := &trigger.Plugin{
		Name:              input.Body.Name,
		Endpoint:          input.Body.Endpoint,
		SubscribedChanges: changes,
	}

	if err := h.registry.Register(ctx, p); err != nil {
		switch {
		case errors.Is(err, trigger.ErrPluginExists):
			return nil, huma.Error409Conflict(err.Error())
		case errors.Is(err, trigger.ErrUnknownChangeType):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		h.logger.Error("plugin registration failed", "name", p.Name, "error", err)
		return nil, huma.Error500InternalServerError("plugin registration failed")
	}

	h.logger.Info("plugin registered", "id", p.ID, "name", p.Name, "endpoint", p.Endpoint)
	return &PluginOutput{Body: pluginToResponse(p)}, nil
}

func (h *PluginHandler) ListPlugins(ctx context.Context, _ *ListPluginsInput) (*ListPluginsOutput, error) {
	plugins := h.registry.List()
	resp := make([]PluginResponse, len(plugins))
	for i, p := range plugins {
		resp[i] = pluginToResponse(p)
	}
	return &ListPluginsOutput{Body: resp}, nil
}

func (h *PluginHandler) GetPlugin(ctx context.Context, input *PluginIDInput) (*PluginOutput, error) {
	id, err := parseID("plugin_id", input.PluginID)
	if err != nil {
		return nil, err
	}
	p, err := h.registry.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound("plugin not found")
	}
	return &PluginOutput{Body: pluginToResponse(p)}, nil
}

func (h *PluginHandler) DeletePlugin(ctx context.Context, input *PluginIDInput) (*struct{}, error) {
	id, err := parseID("plugin_id", input.PluginID)
	if err != nil {
		return nil, err
	}
	if err := h.registry.Delete(ctx, id); err != nil {
		if errors.Is(err, trigger.ErrPluginNotFound) {
			return nil, huma.Error404NotFound("plugin not found")
		}
		h.logger.Error("plugin deletion failed", "id", id, "error", err)
		return nil, huma.Error500InternalServerError("plugin deletion failed")
	}

	h.logger.Info("plugin deleted", "id", id)
	return nil, nil
}

func pluginToResponse(p *trigger.Plugin) PluginResponse {
	changes := make([]string, len(p.SubscribedChanges))
	for i, c := range p.SubscribedChanges {
		changes[i] = string(c)
	}
	return PluginResponse{
		ID:                p.ID,
		Name:              p.Name,
		Endpoint:          p.Endpoint,
		SubscribedChanges: changes,
		Status:            string(p.Status),
		CreatedAt:         p.CreatedAt,
	}
}
