package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-structdata/internal/datamgmt"
	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/table"
)

type ListRowsInput struct {
	ID    string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Skip  int    `query:"skip" doc:"Rows to skip" minimum:"0" default:"0"`
	Limit int    `query:"limit" doc:"Maximum rows to return; server default when 0" minimum:"0" maximum:"10000"`
}

type ListRowsOutput struct {
	Body table.Page
}

type RowBody struct {
	RowData map[string]any `json:"row_data" doc:"Column name to value" required:"true"`
}

type AddRowInput struct {
	ID   string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Body RowBody
}

type UpdateRowInput struct {
	ID       string `path:"id" doc:"Structured data UUID" format:"uuid"`
	RowIndex int    `path:"row_index" doc:"Zero-based row position"`
	Body     RowBody
}

type DeleteRowInput struct {
	ID       string `path:"id" doc:"Structured data UUID" format:"uuid"`
	RowIndex int    `path:"row_index" doc:"Zero-based row position"`
}

type RowResponse struct {
	RowIndex int            `json:"row_index" doc:"Zero-based row position"`
	Row      map[string]any `json:"row" doc:"Row contents"`
}

type RowOutput struct {
	Body RowResponse
}

type UpdateCellBody struct {
	ColumnName string `json:"column_name" doc:"Column to set" required:"true" minLength:"1"`
	RowIndex   int    `json:"row_index" doc:"Zero-based row position" required:"true"`
	Value      any    `json:"value" doc:"New cell value" required:"false"`
}

type UpdateCellInput struct {
	ID   string `path:"id" doc:"Structured data UUID" format:"uuid"`
	Body UpdateCellBody
}

type UpdateCellOutput struct {
	Body storage.HistoryEntry
}

type RowHandler struct {
	svc          DataService
	logger       *slog.Logger
	defaultLimit int
}

func registerRowRoutes(api huma.API, h *RowHandler, auth huma.Middlewares) {
	tags := []string{"rows"}

	huma.Register(api, huma.Operation{
		OperationID: "list-rows",
		Method:      http.MethodGet,
		Path:        "/v1/structured-data/{id}/rows",
		Summary:     "Read a window of rows",
		Tags:        tags,
		Middlewares: auth,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "add-row",
		Method:        http.MethodPost,
		Path:          "/v1/structured-data/{id}/rows",
		Summary:       "Append a row",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Middlewares:   auth,
	}, h.Add)

	huma.Register(api, huma.Operation{
		OperationID: "update-row",
		Method:      http.MethodPut,
		Path:        "/v1/structured-data/{id}/rows/{row_index}",
		Summary:     "Merge values into a row",
		Tags:        tags,
		Middlewares: auth,
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "delete-row",
		Method:      http.MethodDelete,
		Path:        "/v1/structured-data/{id}/rows/{row_index}",
		Summary:     "Remove a row; later rows shift down",
		Tags:        tags,
		Middlewares: auth,
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "update-cell",
		Method:      http.MethodPut,
		Path:        "/v1/structured-data/{id}/cells",
		Summary:     "Set one cell",
		Tags:        tags,
		Middlewares: auth,
	}, h.UpdateCell)
}

func (h *RowHandler) List(ctx context.Context, input *ListRowsInput) (*ListRowsOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}
	page, err := h.svc.Rows(ctx, id, user, input.Skip, limit)
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user)
	}
	return &ListRowsOutput{Body: page}, nil
}

func (h *RowHandler) Add(ctx context.Context, input *AddRowInput) (*RowOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	row, idx, err := h.svc.AddRow(ctx, id, user, table.Row(input.Body.RowData))
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user)
	}
	return &RowOutput{Body: RowResponse{RowIndex: idx, Row: row}}, nil
}

func (h *RowHandler) Update(ctx context.Context, input *UpdateRowInput) (*RowOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	row, err := h.svc.UpdateRow(ctx, id, user, input.RowIndex, table.Row(input.Body.RowData))
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user, "row_index", input.RowIndex)
	}
	return &RowOutput{Body: RowResponse{RowIndex: input.RowIndex, Row: row}}, nil
}

// Delete responds with the removed row.
func (h *RowHandler) Delete(ctx context.Context, input *DeleteRowInput) (*RowOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	row, err := h.svc.DeleteRow(ctx, id, user, input.RowIndex)
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user, "row_index", input.RowIndex)
	}
	return &RowOutput{Body: RowResponse{RowIndex: input.RowIndex, Row: row}}, nil
}

// UpdateCell responds with the recorded history entry.
func (h *RowHandler) UpdateCell(ctx context.Context, input *UpdateCellInput) (*UpdateCellOutput, error) {
	user := userFrom(ctx)
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, err
	}
	b := input.Body
	entry, err := h.svc.UpdateCell(ctx, id, user, datamgmt.CellUpdate{
		ColumnName: b.ColumnName,
		RowIndex:   b.RowIndex,
		Value:      b.Value,
	})
	if err != nil {
		return nil, dataError(h.logger, err, "unit_id", id, "user_id", user, "column", b.ColumnName)
	}
	return &UpdateCellOutput{Body: *entry}, nil
}
