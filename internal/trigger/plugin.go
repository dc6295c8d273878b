package trigger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

var (
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrPluginExists      = errors.New("plugin name already registered")
	ErrUnknownChangeType = errors.New("unknown change type")
)

// PluginStatus represents the activation state of a plugin.
type PluginStatus string

const (
	PluginStatusActive   PluginStatus = "active"
	PluginStatusInactive PluginStatus = "inactive"
)

// Plugin is an external JSON-RPC service that receives change notifications.
type Plugin struct {
	ID                uuid.UUID            `json:"id"`
	Name              string               `json:"name"`
	Endpoint          string               `json:"endpoint"`
	SubscribedChanges []storage.ChangeType `json:"subscribed_changes"`
	Status            PluginStatus         `json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
}

// Subscribes reports whether p is active and wants ct.
func (p *Plugin) Subscribes(ct storage.ChangeType) bool {
	return p.Status == PluginStatusActive && slices.Contains(p.SubscribedChanges, ct)
}

// ValidateChangeTypes rejects names that are not history change types.
func ValidateChangeTypes(types []storage.ChangeType) error {
	for _, ct := range types {
		if !slices.Contains(storage.ChangeTypes, ct) {
			return fmt.Errorf("%w: %q", ErrUnknownChangeType, ct)
		}
	}
	return nil
}

// PluginRegistry is a thread-safe set of registered plugins, optionally
// backed by a PluginStore.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[uuid.UUID]*Plugin
	store   PluginStore
}

// NewPluginRegistry creates an empty registry. A nil store keeps plugins in
// memory only.
func NewPluginRegistry(store PluginStore) *PluginRegistry {
	return &PluginRegistry{
		plugins: make(map[uuid.UUID]*Plugin),
		store:   store,
	}
}

// LoadAll replaces the in-memory set with the plugins held by the store.
func (r *PluginRegistry) LoadAll(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	plugins, err := r.store.ListPlugins(ctx)
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[uuid.UUID]*Plugin, len(plugins))
	for _, p := range plugins {
		r.plugins[p.ID] = p
	}
	return nil
}

// Register validates p, assigns its ID and creation time, and persists it.
func (r *PluginRegistry) Register(ctx context.Context, p *Plugin) error {
	if err := ValidateChangeTypes(p.SubscribedChanges); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.plugins {
		if existing.Name == p.Name {
			return fmt.Errorf("%w: %q", ErrPluginExists, p.Name)
		}
	}

	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = PluginStatusActive
	}
	if r.store != nil {
		if err := r.store.SavePlugin(ctx, p); err != nil {
			return err
		}
	}
	r.plugins[p.ID] = p
	return nil
}

// Get returns a plugin by ID.
func (r *PluginRegistry) Get(id uuid.UUID) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return p, nil
}

// List returns all registered plugins, oldest first.
func (r *PluginRegistry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Delete removes a plugin by ID.
func (r *PluginRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	if r.store != nil {
		if err := r.store.DeletePlugin(ctx, id); err != nil {
			return err
		}
	}
	delete(r.plugins, id)
	return nil
}

// ForChange returns the active plugins subscribed to ct.
func (r *PluginRegistry) ForChange(ct storage.ChangeType) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Plugin
	for _, p := range r.plugins {
		if p.Subscribes(ct) {
			out = append(out, p)
		}
	}
	return out
}
