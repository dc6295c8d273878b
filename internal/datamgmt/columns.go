package datamgmt

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

// ColumnSpec describes a new column. Order defaults to the number of existing
// columns; IsActive defaults to true.
type ColumnSpec struct {
	Name     string
	DataType string
	Format   *string
	Formula  *string
	Order    *int
	IsActive *bool
	Metadata map[string]any
}

// ColumnPatch is a partial column update. Nil fields are left unchanged.
type ColumnPatch struct {
	Name     *string
	DataType *string
	Format   *string
	Formula  *string
	Order    *int
	IsActive *bool
	Metadata map[string]any
}

// Columns returns the unit's column definitions in storage order.
func (s *Service) Columns(ctx context.Context, id, userID uuid.UUID) ([]storage.Column, error) {
	u, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if u.Columns == nil {
		return []storage.Column{}, nil
	}
	return u.Columns, nil
}

// CreateColumn attaches a new column definition and records CREATE_COLUMN.
func (s *Service) CreateColumn(ctx context.Context, id, userID uuid.UUID, spec ColumnSpec) (*storage.Column, error) {
	var created *storage.Column
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		if findColumn(u.Columns, spec.Name) != nil {
			return nil, fmt.Errorf("%w: %q", ErrColumnExists, spec.Name)
		}
		c := &storage.Column{
			UnitID:   u.ID,
			Name:     spec.Name,
			DataType: spec.DataType,
			Format:   spec.Format,
			Formula:  spec.Formula,
			Order:    len(u.Columns),
			IsActive: true,
			Metadata: spec.Metadata,
		}
		if spec.Order != nil {
			c.Order = *spec.Order
		}
		if spec.IsActive != nil {
			c.IsActive = *spec.IsActive
		}
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		if err := q.InsertColumn(ctx, c); err != nil {
			return nil, persistence("create column", err)
		}
		if err := claimUnit(ctx, q, u); err != nil {
			return nil, err
		}
		created = c
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeCreateColumn,
			ColumnName: ptr(c.Name),
			Metadata:   map[string]any{"column": columnFields(c)},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateColumn applies patch to the column called name and records the old
// and new values of just the supplied fields.
func (s *Service) UpdateColumn(ctx context.Context, id, userID uuid.UUID, name string, patch ColumnPatch) (*storage.Column, error) {
	var updated *storage.Column
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		c := findColumn(u.Columns, name)
		if c == nil {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		if patch.Name != nil && *patch.Name != c.Name && findColumn(u.Columns, *patch.Name) != nil {
			return nil, fmt.Errorf("%w: %q", ErrColumnExists, *patch.Name)
		}

		before := columnFields(c)
		changed := []string{}
		if patch.Name != nil {
			c.Name = *patch.Name
			changed = append(changed, "name")
		}
		if patch.DataType != nil {
			c.DataType = *patch.DataType
			changed = append(changed, "data_type")
		}
		if patch.Format != nil {
			c.Format = patch.Format
			changed = append(changed, "format")
		}
		if patch.Formula != nil {
			c.Formula = patch.Formula
			changed = append(changed, "formula")
		}
		if patch.Order != nil {
			c.Order = *patch.Order
			changed = append(changed, "order")
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
			changed = append(changed, "is_active")
		}
		if patch.Metadata != nil {
			c.Metadata = patch.Metadata
			changed = append(changed, "metadata")
		}
		after := columnFields(c)

		oldValues := make(map[string]any, len(changed))
		newValues := make(map[string]any, len(changed))
		for _, f := range changed {
			oldValues[f] = before[f]
			newValues[f] = after[f]
		}

		if err := q.UpdateColumn(ctx, c); err != nil {
			return nil, persistence("update column", err)
		}
		if err := claimUnit(ctx, q, u); err != nil {
			return nil, err
		}
		updated = c
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeUpdateColumn,
			ColumnName: ptr(name),
			Metadata: map[string]any{
				"old_values": oldValues,
				"new_values": newValues,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteColumn removes the column definition called name. Row payloads keep
// any values stored under that key.
func (s *Service) DeleteColumn(ctx context.Context, id, userID uuid.UUID, name string) error {
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		c := findColumn(u.Columns, name)
		if c == nil {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		if err := q.DeleteColumn(ctx, c.ID); err != nil {
			return nil, persistence("delete column", err)
		}
		if err := claimUnit(ctx, q, u); err != nil {
			return nil, err
		}
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeDeleteColumn,
			ColumnName: ptr(name),
			Metadata:   map[string]any{"column": columnFields(c)},
		}, nil
	})
	return err
}

// findColumn returns the first column named name.
func findColumn(cols []storage.Column, name string) *storage.Column {
	for i := range cols {
		if cols[i].Name == name {
			return &cols[i]
		}
	}
	return nil
}

func columnFields(c *storage.Column) map[string]any {
	fields := map[string]any{
		"name":      c.Name,
		"data_type": c.DataType,
		"order":     c.Order,
		"is_active": c.IsActive,
		"metadata":  c.Metadata,
		"format":    nil,
		"formula":   nil,
	}
	if c.Format != nil {
		fields["format"] = *c.Format
	}
	if c.Formula != nil {
		fields["formula"] = *c.Formula
	}
	return fields
}
