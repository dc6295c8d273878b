package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/datamgmt"
	"github.com/ryanbastic/go-structdata/internal/storage"
)

// --- Huma Input/Output types ---

type CreateDataBody struct {
	ConversationID string         `json:"conversation_id" doc:"Owning conversation UUID" format:"uuid" required:"true"`
	DataType       string         `json:"data_type" doc:"Kind of payload" example:"table" required:"true" minLength:"1"`
	SchemaVersion  string         `json:"schema_version,omitempty" doc:"Payload schema version, default 1.0"`
	Data           map[string]any `json:"data,omitempty" doc:"Payload; row-based units use {rows, column_order}"`
	Metadata       map[string]any `json:"metadata,omitempty" doc:"Free-form metadata, e.g. message_id"`
}

type CreateDataInput struct {
	Body CreateDataBody
}

type UpdateDataBody struct {
	DataType      *string        `json:"data_type,omitempty" doc:"New data type" minLength:"1"`
	SchemaVersion *string        `json:"schema_version,omitempty" doc:"New schema version"`
	Data          map[string]any `json:"data,omitempty" doc:"Replacement payload"`
	Metadata      map[string]any `json:"metadata,omitempty" doc:"Replacement metadata"`
}

type UpdateDataInput struct {
	ID   string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Body UpdateDataBody
}

type DataOutput struct {
	Body storage.Unit
}

type ListDataInput struct {
	ConversationID string `query:"conversation_id" doc:"Only units of this conversation" format:"uuid"`
	DataType       string `query:"data_type" doc:"Only units of this data type"`
	Skip           int    `query:"skip" doc:"Units to skip" minimum:"0" default:"0"`
	Limit          int    `query:"limit" doc:"Maximum units to return" minimum:"1" maximum:"1000" default:"100"`
}

type ListDataOutput struct {
	Body []storage.Unit
}

type GetDataInput struct {
	ID string `path:"id" doc:"Structured data UUID" format:"uuid"`
}

type GetDataByMessageInput struct {
	MessageID string `path:"message_id" doc:"Chat message id stored in metadata.message_id"`
}

type DeleteDataInput struct {
	ID         string `path:"id" doc:"Structured data UUID" format:"uuid"`
	SoftDelete bool   `query:"soft_delete" doc:"Only mark the unit deleted" default:"true"`
}

// --- Handler ---

type DataHandler struct {
	svc    DataService
	logger *slog.Logger
}

func registerDataRoutes(api huma.API, h *DataHandler, auth huma.Middlewares) {
	tags := []string{"structured-data"}

	huma.Register(api, huma.Operation{
		OperationID: "list-structured-data",
		Method:      http.MethodGet,
		Path:        "/v1/structured-data",
		Summary:     "List the caller's structured data",
		Tags:        tags,
		Middlewares: auth,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "create-structured-data",
		Method:        http.MethodPost,
		Path:          "/v1/structured-data",
		Summary:       "Create structured data",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Middlewares:   auth,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "get-structured-data-by-message",
		Method:      http.MethodGet,
		Path:        "/v1/structured-data/by-message/{message_id}",
		Summary:     "Get structured data attached to a chat message",
		Tags:        tags,
		Middlewares: auth,
	}, h.GetByMessage)

	huma.Register(api, huma.Operation{
		OperationID: "get-structured-data",
		Method:      http.MethodGet,
		Path:        "/v1/structured-data/{id}",
		Summary:     "Get structured data with its columns",
		Tags:        tags,
		Middlewares: auth,
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "update-structured-data",
		Method:      http.MethodPut,
		Path:        "/v1/structured-data/{id}",
		Summary:     "Partially update structured data",
		Tags:        tags,
		Middlewares: auth,
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-structured-data",
		Method:        http.MethodDelete,
		Path:          "/v1/structured-data/{id}",
		Summary:       "Delete structured data",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
		Middlewares:   auth,
	}, h.Delete)
}

func (h *DataHandler) List(ctx context.Context, input *ListDataInput) (*ListDataOutput, error) {
	user := userFrom(ctx)
	f := storage.UnitFilter{DataType: input.DataType, Skip: input.Skip, Limit: input.Limit}
	if input.ConversationID != "" {
		conv, err := parseID("conversation_id", input.ConversationID)
		if err != nil {
			return nil, err
		}
		f.ConversationID = &conv
	}

	units, err := h.svc.List(ctx, user, f)
	if err != nil {
		return nil, dataError(h.logger, err, "user_id", user)
	}
	if units == nil {
		units = []storage.Unit{}
	}
	return &ListDataOutput{Body: units}, nil
}

func (h *DataHandler) Create(ctx context.Context, input *CreateDataInput) (*DataOutput, error) {
	user := userFrom(ctx)
	conv, err := parseID("conversation_id", input.Body.ConversationID)
	if err != nil {
		return nil, err
	}

	u, err := h.svc.Create(ctx, user, datamgmt.CreateInput{
		ConversationID: conv,
		DataType:       input.Body.DataType,
		SchemaVersion:  input.Body.SchemaVersion,
		Data:           input.Body.Data,
		Metadata:       input.Body.Metadata,
	})
	if err != nil {
		return nil, dataError(h.logger, err, "user_id", user, "conversation_id", conv)
	}
	h.logger.Info("structured data created", "unit_id", u.ID, "user_id", user, "data_type", u.DataType)
	return &DataOutput{Body: *u}, nil
}

func (h *DataHandler) Get(ctx context.Context, input *GetDataInput) (*DataOutput, error) {
	return h.withUnit(ctx, input.ID, func(id, user uuid.UUID) (*storage.Unit, error) {
		return h.svc.Get(ctx, id, user)
	})
}

func (h *DataHandler) GetByMessage(ctx context.Context, input *GetDataByMessageInput) (*DataOutput, error) {
	user := userFrom(ctx)
	u, err := h.svc.GetByMessageID(ctx, input.MessageID, user)
	if err != nil {
		return nil, dataError(h.logger, err, "user_id", user, "message_id", input.MessageID)
	}
	return &DataOutput{Body: *u}, nil
}

func (h *DataHandler) Update(ctx context.Context, input *UpdateDataInput) (*DataOutput, error) {
	return h.withUnit(ctx, input.ID, func(id, user uuid.UUID) (*storage.Unit, error) {
		return h.svc.Update(ctx, id, user, datamgmt.UpdateInput{
			DataType:      input.Body.DataType,
			SchemaVersion: input.Body.SchemaVersion,
			Data:          input.Body.Data,
			Metadata:      input.Body.Metadata,
		})
	})
}

func (h *DataHandler) Delete(ctx context.Context, input *DeleteDataInput) (*struct{}, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Delete(ctx, id, user, input.SoftDelete); err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user)
	}
	h.logger.Info("structured data deleted", "unit_id", id, "user_id", user, "soft", input.SoftDelete)
	return nil, nil
}

func (h *DataHandler) withUnit(ctx context.Context, rawID string, fn func(id, user uuid.UUID) (*storage.Unit, error)) (*DataOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", rawID)
	if err != nil {
		return nil, err
	}
	u, err := fn(id, user)
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user)
	}
	return &DataOutput{Body: *u}, nil
}
