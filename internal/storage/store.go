package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup finds no matching row.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when a unit was modified after it was read.
	ErrVersionConflict = errors.New("structured data was modified concurrently")
)

// ChangeType tags a history entry with the mutation it describes.
type ChangeType string

const (
	ChangeCreateData   ChangeType = "CREATE_DATA"
	ChangeUpdateData   ChangeType = "UPDATE_DATA"
	ChangeDeleteData   ChangeType = "DELETE_DATA"
	ChangeCreateColumn ChangeType = "CREATE_COLUMN"
	ChangeUpdateColumn ChangeType = "UPDATE_COLUMN"
	ChangeDeleteColumn ChangeType = "DELETE_COLUMN"
	ChangeAddRow       ChangeType = "ADD_ROW"
	ChangeUpdateRow    ChangeType = "UPDATE_ROW"
	ChangeDeleteRow    ChangeType = "DELETE_ROW"
	ChangeUpdateCell   ChangeType = "UPDATE_CELL"
)

// ChangeTypes lists every change type in declaration order.
var ChangeTypes = []ChangeType{
	ChangeCreateData, ChangeUpdateData, ChangeDeleteData,
	ChangeCreateColumn, ChangeUpdateColumn, ChangeDeleteColumn,
	ChangeAddRow, ChangeUpdateRow, ChangeDeleteRow, ChangeUpdateCell,
}

// Conversation is the ownership parent of structured data.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Unit is one structured-data record. OwnerID is the user id of the parent
// conversation and is populated on every read.
type Unit struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	OwnerID        uuid.UUID      `json:"-"`
	DataType       string         `json:"data_type"`
	SchemaVersion  string         `json:"schema_version"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	Columns        []Column       `json:"columns,omitempty"`
}

// Column is a named, typed column definition attached to a unit.
type Column struct {
	ID        uuid.UUID      `json:"id"`
	UnitID    uuid.UUID      `json:"structured_data_id"`
	Name      string         `json:"name"`
	DataType  string         `json:"data_type"`
	Format    *string        `json:"format,omitempty"`
	Formula   *string        `json:"formula,omitempty"`
	Order     int            `json:"order"`
	IsActive  bool           `json:"is_active"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HistoryEntry is one immutable audit record.
type HistoryEntry struct {
	ID         uuid.UUID      `json:"id"`
	UnitID     uuid.UUID      `json:"structured_data_id"`
	UserID     uuid.UUID      `json:"user_id"`
	ChangeType ChangeType     `json:"change_type"`
	ColumnName *string        `json:"column_name,omitempty"`
	RowIndex   *int           `json:"row_index,omitempty"`
	OldValue   *string        `json:"old_value,omitempty"`
	NewValue   *string        `json:"new_value,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// UnitFilter narrows ListUnits. Zero values mean "no filter".
type UnitFilter struct {
	ConversationID *uuid.UUID
	DataType       string
	Skip           int
	Limit          int
}

// Queries is the set of reads and writes available both on the store and
// inside a transaction.
type Queries interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error)

	// InsertUnit stores a new unit. ID, Version and timestamps are assigned.
	InsertUnit(ctx context.Context, u *Unit) error

	// GetUnit returns a unit with its owner and columns. Soft-deleted units
	// are only returned when includeDeleted is set.
	GetUnit(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Unit, error)

	// ListUnits returns live units owned by userID, newest first.
	ListUnits(ctx context.Context, userID uuid.UUID, f UnitFilter) ([]Unit, error)

	// FindUnitByMessageID returns the newest live unit owned by userID whose
	// metadata.message_id equals messageID.
	FindUnitByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (*Unit, error)

	// UpdateUnit rewrites the unit's attributes and payload, conditional on
	// u.Version still matching. On success u.Version is incremented.
	UpdateUnit(ctx context.Context, u *Unit) error

	SoftDeleteUnit(ctx context.Context, id uuid.UUID) error
	DeleteUnit(ctx context.Context, id uuid.UUID) error

	ListColumns(ctx context.Context, unitID uuid.UUID) ([]Column, error)
	InsertColumn(ctx context.Context, c *Column) error
	UpdateColumn(ctx context.Context, c *Column) error
	DeleteColumn(ctx context.Context, id uuid.UUID) error

	// InsertHistory appends an entry. There is no update or delete.
	InsertHistory(ctx context.Context, e *HistoryEntry) error

	// ListHistory returns entries for a unit newest first.
	ListHistory(ctx context.Context, unitID uuid.UUID, limit, offset int) ([]HistoryEntry, error)
}

// Store is the primary storage interface.
type Store interface {
	Queries

	// InTx runs fn inside one transaction. The transaction commits only when
	// fn returns nil.
	InTx(ctx context.Context, fn func(q Queries) error) error
}
