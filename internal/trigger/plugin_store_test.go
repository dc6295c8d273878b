package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

// mockPluginStore is an in-memory implementation of PluginStore for testing.
type mockPluginStore struct {
	mu      sync.Mutex
	plugins map[uuid.UUID]*Plugin
	saveErr error
}

func newMockPluginStore() *mockPluginStore {
	return &mockPluginStore{plugins: make(map[uuid.UUID]*Plugin)}
}

func (m *mockPluginStore) SavePlugin(_ context.Context, p *Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.plugins[p.ID] = p
	return nil
}

func (m *mockPluginStore) DeletePlugin(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugins[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	delete(m.plugins, id)
	return nil
}

func (m *mockPluginStore) ListPlugins(_ context.Context) ([]*Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	return out, nil
}

func TestPluginRegistry_WithStore_RegisterPersists(t *testing.T) {
	store := newMockPluginStore()
	r := NewPluginRegistry(store)
	register(t, r, "persisted", storage.ChangeUpdateRow)

	stored, err := store.ListPlugins(context.Background())
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored plugin, got %d", len(stored))
	}
	if stored[0].Name != "persisted" {
		t.Errorf("stored name: got %q, want %q", stored[0].Name, "persisted")
	}
}

func TestPluginRegistry_WithStore_SaveFailureNotRegistered(t *testing.T) {
	store := newMockPluginStore()
	store.saveErr = errors.New("connection refused")
	r := NewPluginRegistry(store)

	err := r.Register(context.Background(), &Plugin{Name: "x", Endpoint: "http://x/rpc"})
	if err == nil {
		t.Fatal("expected save error")
	}
	if len(r.List()) != 0 {
		t.Error("plugin should not be registered when the store rejects it")
	}
}

func TestPluginRegistry_WithStore_DeleteRemovesFromStore(t *testing.T) {
	store := newMockPluginStore()
	r := NewPluginRegistry(store)
	p := register(t, r, "to-delete", storage.ChangeAddRow)

	if err := r.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	stored, err := store.ListPlugins(context.Background())
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("expected 0 stored plugins after delete, got %d", len(stored))
	}
}

func TestPluginRegistry_LoadAll(t *testing.T) {
	store := newMockPluginStore()
	existing := &Plugin{
		ID:                uuid.New(),
		Name:              "pre-existing",
		Endpoint:          "http://localhost:9000/rpc",
		SubscribedChanges: []storage.ChangeType{storage.ChangeDeleteRow},
		Status:            PluginStatusActive,
	}
	if err := store.SavePlugin(context.Background(), existing); err != nil {
		t.Fatalf("SavePlugin: %v", err)
	}

	r := NewPluginRegistry(store)
	if err := r.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	got, err := r.Get(existing.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "pre-existing" {
		t.Errorf("Name: got %q, want %q", got.Name, "pre-existing")
	}
	if len(r.ForChange(storage.ChangeDeleteRow)) != 1 {
		t.Error("loaded plugin should be subscribed to DELETE_ROW")
	}
}

func TestPluginRegistry_LoadAll_NoStore(t *testing.T) {
	r := NewPluginRegistry(nil)
	if err := r.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll without store should not error: %v", err)
	}
}

func TestChangeNames(t *testing.T) {
	got := changeNames([]storage.ChangeType{storage.ChangeAddRow, storage.ChangeUpdateCell})
	if len(got) != 2 || got[0] != "ADD_ROW" || got[1] != "UPDATE_CELL" {
		t.Errorf("changeNames: got %v", got)
	}
}
