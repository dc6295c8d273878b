package datamgmt

import (
	"context"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/table"
)

// CellUpdate sets one cell of a row-based unit.
type CellUpdate struct {
	ColumnName string
	RowIndex   int
	Value      any
}

// Rows returns a window of the unit's rows with the total row count.
func (s *Service) Rows(ctx context.Context, id, userID uuid.UUID, skip, limit int) (table.Page, error) {
	u, err := s.Get(ctx, id, userID)
	if err != nil {
		return table.Page{}, err
	}
	t, err := table.Parse(u.Data)
	if err != nil {
		return table.Page{}, err
	}
	return t.Slice(skip, limit), nil
}

// AddRow appends row to the unit, initializing a row-based payload if the
// unit has none, and records ADD_ROW with the full row.
func (s *Service) AddRow(ctx context.Context, id, userID uuid.UUID, row table.Row) (table.Row, int, error) {
	var (
		stored table.Row
		index  int
	)
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		t, err := table.ParseOrInit(u.Data, row)
		if err != nil {
			return nil, err
		}
		stored = t.Append(row)
		index = len(t.Rows) - 1
		if err := saveTable(ctx, q, u, t); err != nil {
			return nil, err
		}
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeAddRow,
			RowIndex:   ptr(index),
			NewValue:   table.Stringify(map[string]any(stored)),
			Metadata:   map[string]any{"row_data": map[string]any(stored)},
		}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return stored, index, nil
}

// UpdateRow merges patch into the row at index and records UPDATE_ROW with
// the row before and after.
func (s *Service) UpdateRow(ctx context.Context, id, userID uuid.UUID, index int, patch table.Row) (table.Row, error) {
	var updated table.Row
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		t, err := table.Parse(u.Data)
		if err != nil {
			return nil, err
		}
		before, after, err := t.Merge(index, patch)
		if err != nil {
			return nil, err
		}
		if err := saveTable(ctx, q, u, t); err != nil {
			return nil, err
		}
		updated = after
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeUpdateRow,
			RowIndex:   ptr(index),
			OldValue:   table.Stringify(map[string]any(before)),
			NewValue:   table.Stringify(map[string]any(after)),
			Metadata: map[string]any{
				"old_data": map[string]any(before),
				"new_data": map[string]any(after),
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRow removes the row at index. Later rows shift down by one.
func (s *Service) DeleteRow(ctx context.Context, id, userID uuid.UUID, index int) (table.Row, error) {
	var removed table.Row
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		t, err := table.Parse(u.Data)
		if err != nil {
			return nil, err
		}
		removed, err = t.Remove(index)
		if err != nil {
			return nil, err
		}
		if err := saveTable(ctx, q, u, t); err != nil {
			return nil, err
		}
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeDeleteRow,
			RowIndex:   ptr(index),
			OldValue:   table.Stringify(map[string]any(removed)),
			Metadata:   map[string]any{"deleted_row": map[string]any(removed)},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// UpdateCell sets one cell and records UPDATE_CELL with the old and new
// values stringified.
func (s *Service) UpdateCell(ctx context.Context, id, userID uuid.UUID, c CellUpdate) (*storage.HistoryEntry, error) {
	return s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		t, err := table.Parse(u.Data)
		if err != nil {
			return nil, err
		}
		old, err := t.SetCell(c.RowIndex, c.ColumnName, c.Value)
		if err != nil {
			return nil, err
		}
		if err := saveTable(ctx, q, u, t); err != nil {
			return nil, err
		}
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeUpdateCell,
			ColumnName: ptr(c.ColumnName),
			RowIndex:   ptr(c.RowIndex),
			OldValue:   old,
			NewValue:   table.Stringify(c.Value),
			Metadata:   map[string]any{},
		}, nil
	})
}
