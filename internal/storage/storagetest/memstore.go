// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

// Store is an in-memory storage.Store. Payloads are round-tripped through
// JSON on write, as they are in PostgreSQL, and InTx restores the previous
// state when fn fails. It is not safe for concurrent use.
type Store struct {
	convs   map[uuid.UUID]storage.Conversation
	units   map[uuid.UUID]storage.Unit
	cols    []storage.Column
	history []storage.HistoryEntry
	now     time.Time

	// FailHistory makes InsertHistory fail.
	FailHistory bool
	// ConflictNext makes the next UpdateUnit report a version conflict.
	ConflictNext bool
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		convs: make(map[uuid.UUID]storage.Conversation),
		units: make(map[uuid.UUID]storage.Unit),
		now:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *Store) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

// HasUnit reports whether a unit row exists, deleted or not.
func (m *Store) HasUnit(id uuid.UUID) bool {
	_, ok := m.units[id]
	return ok
}

// UnitCount returns the number of unit rows.
func (m *Store) UnitCount() int { return len(m.units) }

// ColumnCount returns the number of column rows across all units.
func (m *Store) ColumnCount() int { return len(m.cols) }

func (m *Store) InTx(_ context.Context, fn func(q storage.Queries) error) error {
	convs := maps.Clone(m.convs)
	units := maps.Clone(m.units)
	cols := slices.Clone(m.cols)
	history := slices.Clone(m.history)
	if err := fn(m); err != nil {
		m.convs, m.units, m.cols, m.history = convs, units, cols, history
		return err
	}
	return nil
}

func (m *Store) CreateConversation(_ context.Context, c *storage.Conversation) error {
	c.ID = uuid.New()
	c.CreatedAt = m.tick()
	m.convs[c.ID] = *c
	return nil
}

func (m *Store) GetConversation(_ context.Context, id uuid.UUID) (*storage.Conversation, error) {
	c, ok := m.convs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (m *Store) ListConversations(_ context.Context, userID uuid.UUID) ([]storage.Conversation, error) {
	out := []storage.Conversation{}
	for _, c := range m.convs {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) InsertUnit(_ context.Context, u *storage.Unit) error {
	u.ID = uuid.New()
	u.Version = 1
	u.CreatedAt = m.tick()
	u.UpdatedAt = u.CreatedAt
	m.units[u.ID] = m.clone(*u)
	return nil
}

func (m *Store) GetUnit(_ context.Context, id uuid.UUID, includeDeleted bool) (*storage.Unit, error) {
	u, ok := m.units[id]
	if !ok || (u.DeletedAt != nil && !includeDeleted) {
		return nil, storage.ErrNotFound
	}
	out := m.read(u)
	return &out, nil
}

func (m *Store) ListUnits(_ context.Context, userID uuid.UUID, f storage.UnitFilter) ([]storage.Unit, error) {
	out := []storage.Unit{}
	for _, u := range m.units {
		if u.DeletedAt != nil || m.convs[u.ConversationID].UserID != userID {
			continue
		}
		if f.ConversationID != nil && u.ConversationID != *f.ConversationID {
			continue
		}
		if f.DataType != "" && u.DataType != f.DataType {
			continue
		}
		out = append(out, m.read(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) FindUnitByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (*storage.Unit, error) {
	units, _ := m.ListUnits(ctx, userID, storage.UnitFilter{})
	for _, u := range units {
		if u.Metadata["message_id"] == messageID {
			return &u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *Store) UpdateUnit(_ context.Context, u *storage.Unit) error {
	cur, ok := m.units[u.ID]
	if !ok || cur.DeletedAt != nil {
		return storage.ErrVersionConflict
	}
	if m.ConflictNext {
		m.ConflictNext = false
		return storage.ErrVersionConflict
	}
	if cur.Version != u.Version {
		return storage.ErrVersionConflict
	}
	u.Version++
	u.UpdatedAt = m.tick()
	m.units[u.ID] = m.clone(*u)
	return nil
}

func (m *Store) SoftDeleteUnit(_ context.Context, id uuid.UUID) error {
	u, ok := m.units[id]
	if !ok || u.DeletedAt != nil {
		return storage.ErrNotFound
	}
	ts := m.tick()
	u.DeletedAt = &ts
	m.units[id] = u
	return nil
}

func (m *Store) DeleteUnit(_ context.Context, id uuid.UUID) error {
	if _, ok := m.units[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.units, id)
	m.cols = slices.DeleteFunc(m.cols, func(c storage.Column) bool { return c.UnitID == id })
	return nil
}

func (m *Store) ListColumns(_ context.Context, unitID uuid.UUID) ([]storage.Column, error) {
	out := []storage.Column{}
	for _, c := range m.cols {
		if c.UnitID == unitID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Store) InsertColumn(_ context.Context, c *storage.Column) error {
	c.ID = uuid.New()
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.cols = append(m.cols, *c)
	return nil
}

func (m *Store) UpdateColumn(_ context.Context, c *storage.Column) error {
	for i := range m.cols {
		if m.cols[i].ID == c.ID {
			c.UpdatedAt = m.tick()
			m.cols[i] = *c
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *Store) DeleteColumn(_ context.Context, id uuid.UUID) error {
	n := len(m.cols)
	m.cols = slices.DeleteFunc(m.cols, func(c storage.Column) bool { return c.ID == id })
	if len(m.cols) == n {
		return storage.ErrNotFound
	}
	return nil
}

func (m *Store) InsertHistory(_ context.Context, e *storage.HistoryEntry) error {
	if m.FailHistory {
		return errors.New("disk full")
	}
	e.ID = uuid.New()
	e.CreatedAt = m.tick()
	m.history = append(m.history, *e)
	return nil
}

func (m *Store) ListHistory(_ context.Context, unitID uuid.UUID, limit, offset int) ([]storage.HistoryEntry, error) {
	out := []storage.HistoryEntry{}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].UnitID == unitID {
			out = append(out, m.history[i])
		}
	}
	if offset >= len(out) {
		return []storage.HistoryEntry{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns every stored history entry for unitID, oldest first.
func (m *Store) Entries(unitID uuid.UUID) []storage.HistoryEntry {
	var out []storage.HistoryEntry
	for _, e := range m.history {
		if e.UnitID == unitID {
			out = append(out, e)
		}
	}
	return out
}

// read decorates a stored unit the way the SQL join does.
func (m *Store) read(u storage.Unit) storage.Unit {
	out := m.clone(u)
	out.OwnerID = m.convs[u.ConversationID].UserID
	out.Columns, _ = m.ListColumns(context.Background(), u.ID)
	return out
}

func (m *Store) clone(u storage.Unit) storage.Unit {
	u.Data = roundTrip(u.Data)
	u.Metadata = roundTrip(u.Metadata)
	u.Columns = nil
	return u
}

func roundTrip(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}
