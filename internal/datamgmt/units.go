package datamgmt

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/table"
)

// DefaultSchemaVersion is stored when a unit is created without one.
const DefaultSchemaVersion = "1.0"

// CreateInput describes a new unit.
type CreateInput struct {
	ConversationID uuid.UUID
	DataType       string
	SchemaVersion  string
	Data           map[string]any
	Metadata       map[string]any
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	DataType      *string
	SchemaVersion *string
	Data          map[string]any
	Metadata      map[string]any
}

// CreateConversation starts a conversation owned by userID.
func (s *Service) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*storage.Conversation, error) {
	c := &storage.Conversation{UserID: userID, Title: title}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, persistence("create conversation", err)
	}
	return c, nil
}

// ListConversations returns the caller's conversations.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]storage.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, persistence("list conversations", err)
	}
	return convs, nil
}

// Create stores a new unit in a conversation owned by userID and records
// CREATE_DATA with the initial payload. A row-based payload has its column
// order widened to cover every row key.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*storage.Unit, error) {
	u := &storage.Unit{
		ConversationID: in.ConversationID,
		DataType:       in.DataType,
		SchemaVersion:  in.SchemaVersion,
		Data:           table.Normalize(in.Data),
		Metadata:       in.Metadata,
	}
	if u.SchemaVersion == "" {
		u.SchemaVersion = DefaultSchemaVersion
	}
	if u.Data == nil {
		u.Data = map[string]any{}
	}
	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}

	var entry *storage.HistoryEntry
	err := s.inTx(ctx, func(q storage.Queries) error {
		conv, err := q.GetConversation(ctx, in.ConversationID)
		if err != nil {
			return persistence("load conversation", err)
		}
		if conv.UserID != userID {
			return ErrForbidden
		}
		if err := q.InsertUnit(ctx, u); err != nil {
			return persistence("create structured data", err)
		}
		u.OwnerID = userID
		entry = &storage.HistoryEntry{
			UnitID:     u.ID,
			UserID:     userID,
			ChangeType: storage.ChangeCreateData,
			Metadata: map[string]any{
				"data":           u.Data,
				"data_type":      u.DataType,
				"schema_version": u.SchemaVersion,
			},
		}
		if err := q.InsertHistory(ctx, entry); err != nil {
			return persistence("record change", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, *entry)
	return u, nil
}

// Get returns a live unit with its columns.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*storage.Unit, error) {
	return loadOwned(ctx, s.store, id, userID, false)
}

// GetByMessageID returns the caller's newest live unit tagged with messageID.
func (s *Service) GetByMessageID(ctx context.Context, messageID string, userID uuid.UUID) (*storage.Unit, error) {
	u, err := s.store.FindUnitByMessageID(ctx, userID, messageID)
	if err != nil {
		return nil, persistence("find structured data by message", err)
	}
	return u, nil
}

// List returns the caller's live units. Foreign units are excluded by the
// query itself.
func (s *Service) List(ctx context.Context, userID uuid.UUID, f storage.UnitFilter) ([]storage.Unit, error) {
	units, err := s.store.ListUnits(ctx, userID, f)
	if err != nil {
		return nil, persistence("list structured data", err)
	}
	return units, nil
}

// Update applies the supplied fields and records UPDATE_DATA with the names
// of the fields that were supplied.
func (s *Service) Update(ctx context.Context, id, userID uuid.UUID, in UpdateInput) (*storage.Unit, error) {
	var updated *storage.Unit
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		fields := []string{}
		if in.DataType != nil {
			u.DataType = *in.DataType
			fields = append(fields, "data_type")
		}
		if in.SchemaVersion != nil {
			u.SchemaVersion = *in.SchemaVersion
			fields = append(fields, "schema_version")
		}
		if in.Data != nil {
			u.Data = table.Normalize(in.Data)
			fields = append(fields, "data")
		}
		if in.Metadata != nil {
			u.Metadata = in.Metadata
			fields = append(fields, "metadata")
		}
		sort.Strings(fields)

		if len(fields) > 0 {
			if err := q.UpdateUnit(ctx, u); err != nil {
				return nil, persistence("update structured data", err)
			}
		}
		updated = u
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeUpdateData,
			Metadata:   map[string]any{"updated_fields": fields},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a unit. A soft delete only stamps deleted_at; a hard delete
// removes the unit and its columns. Both record DELETE_DATA, which outlives
// a hard-deleted unit.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID, soft bool) error {
	_, err := s.mutate(ctx, id, userID, func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error) {
		var err error
		if soft {
			err = q.SoftDeleteUnit(ctx, u.ID)
		} else {
			err = q.DeleteUnit(ctx, u.ID)
		}
		if err != nil {
			return nil, persistence("delete structured data", err)
		}
		return &storage.HistoryEntry{
			ChangeType: storage.ChangeDeleteData,
			Metadata:   map[string]any{"soft_delete": soft},
		}, nil
	})
	return err
}
