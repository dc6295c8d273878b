package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-structdata/internal/datamgmt"
	"github.com/ryanbastic/go-structdata/internal/storage"
)

type CreateColumnBody struct {
	Name     string         `json:"name" doc:"Column name, unique within the unit" required:"true" minLength:"1"`
	DataType string         `json:"data_type" doc:"Column data type" example:"number" required:"true" minLength:"1"`
	Format   *string        `json:"format,omitempty" doc:"Display format"`
	Formula  *string        `json:"formula,omitempty" doc:"Formula expression"`
	Order    *int           `json:"order,omitempty" doc:"Display position; defaults to the end" minimum:"0"`
	IsActive *bool          `json:"is_active,omitempty" doc:"Defaults to true"`
	Metadata map[string]any `json:"metadata,omitempty" doc:"Free-form metadata"`
}

type CreateColumnInput struct {
	ID   string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Body CreateColumnBody
}

type UpdateColumnBody struct {
	Name     *string        `json:"name,omitempty" doc:"New column name" minLength:"1"`
	DataType *string        `json:"data_type,omitempty" doc:"New data type" minLength:"1"`
	Format   *string        `json:"format,omitempty" doc:"New display format"`
	Formula  *string        `json:"formula,omitempty" doc:"New formula"`
	Order    *int           `json:"order,omitempty" doc:"New display position" minimum:"0"`
	IsActive *bool          `json:"is_active,omitempty" doc:"New active flag"`
	Metadata map[string]any `json:"metadata,omitempty" doc:"Replacement metadata"`
}

type UpdateColumnInput struct {
	ID   string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Name string `path:"name" doc:"Current column name"`
	Body UpdateColumnBody
}

type ColumnOutput struct {
	Body storage.Column
}

type ListColumnsInput struct {
	ID string `path:"id" doc:"Structured data UUID" format:"uuid"`
}

type ListColumnsOutput struct {
	Body []storage.Column
}

type DeleteColumnInput struct {
	ID   string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Name string `path:"name" doc:"Column name"`
}

type ColumnHandler struct {
	svc    DataService
	logger *slog.Logger
}

func registerColumnRoutes(api huma.API, h *ColumnHandler, auth huma.Middlewares) {
	tags := []string{"columns"}

	huma.Register(api, huma.Operation{
		OperationID: "list-columns",
		Method:      http.MethodGet,
		Path:        "/v1/structured-data/{id}/columns",
		Summary:     "List column definitions",
		Tags:        tags,
		Middlewares: auth,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "create-column",
		Method:        http.MethodPost,
		Path:          "/v1/structured-data/{id}/columns",
		Summary:       "Add a column definition",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Middlewares:   auth,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "update-column",
		Method:      http.MethodPut,
		Path:        "/v1/structured-data/{id}/columns/{name}",
		Summary:     "Update a column definition",
		Tags:        tags,
		Middlewares: auth,
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-column",
		Method:        http.MethodDelete,
		Path:          "/v1/structured-data/{id}/columns/{name}",
		Summary:       "Remove a column definition",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
		Middlewares:   auth,
	}, h.Delete)
}

func (h *ColumnHandler) List(ctx context.Context, input *ListColumnsInput) (*ListColumnsOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	cols, err := h.svc.Columns(ctx, id, user)
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user)
	}
	return &ListColumnsOutput{Body: cols}, nil
}

func (h *ColumnHandler) Create(ctx context.Context, input *CreateColumnInput) (*ColumnOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	b := input.Body
	col, err := h.svc.CreateColumn(ctx, id, user, datamgmt.ColumnSpec{
		Name:     b.Name,
		DataType: b.DataType,
		Format:   b.Format,
		Formula:  b.Formula,
		Order:    b.Order,
		IsActive: b.IsActive,
		Metadata: b.Metadata,
	})
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user, "column", b.Name)
	}
	return &ColumnOutput{Body: *col}, nil
}

func (h *ColumnHandler) Update(ctx context.Context, input *UpdateColumnInput) (*ColumnOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	b := input.Body
	col, err := h.svc.UpdateColumn(ctx, id, user, input.Name, datamgmt.ColumnPatch{
		Name:     b.Name,
		DataType: b.DataType,
		Format:   b.Format,
		Formula:  b.Formula,
		Order:    b.Order,
		IsActive: b.IsActive,
		Metadata: b.Metadata,
	})
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user, "column", input.Name)
	}
	return &ColumnOutput{Body: *col}, nil
}

func (h *ColumnHandler) Delete(ctx context.Context, input *DeleteColumnInput) (*struct{}, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.svc.DeleteColumn(ctx, id, user, input.Name); err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user, "column", input.Name)
	}
	return nil, nil
}
