// Package datamgmt is the data management facade. It owns the structured-data
// unit lifecycle, the column registry, row and cell editing, and the change
// history, and enforces ownership on every operation.
//
// Each mutation runs as one transaction: load and authorize the unit, apply
// the change, persist, then append exactly one history entry. Listeners are
// told about the entry only after the transaction commits.
package datamgmt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/table"
)

// DefaultHistoryLimit is the page size used when a history request gives none.
const DefaultHistoryLimit = 50

// ChangeListener is notified of every committed history entry.
// Implementations must not block.
type ChangeListener interface {
	ChangeRecorded(ctx context.Context, entry storage.HistoryEntry)
}

// Service implements the facade on top of a storage.Store.
type Service struct {
	store        storage.Store
	logger       *slog.Logger
	listeners    []ChangeListener
	historyLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithListener registers l to receive committed history entries.
func WithListener(l ChangeListener) Option {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithHistoryLimit overrides DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// NewService creates a facade backed by store.
func NewService(store storage.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:        store,
		logger:       logger,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutation is the body of a unit mutation. It receives the authorized unit
// and returns the history entry describing what it did.
type mutation func(q storage.Queries, u *storage.Unit) (*storage.HistoryEntry, error)

// mutate is the single read-mutate-write path for an existing unit.
func (s *Service) mutate(ctx context.Context, unitID, userID uuid.UUID, fn mutation) (*storage.HistoryEntry, error) {
	var recorded *storage.HistoryEntry
	err := s.inTx(ctx, func(q storage.Queries) error {
		u, err := loadOwned(ctx, q, unitID, userID, false)
		if err != nil {
			return err
		}
		entry, err := fn(q, u)
		if err != nil {
			return err
		}
		entry.UnitID = u.ID
		entry.UserID = userID
		if err := q.InsertHistory(ctx, entry); err != nil {
			return persistence("record change", err)
		}
		recorded = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, *recorded)
	return recorded, nil
}

// inTx runs fn in a transaction and classifies commit failures.
func (s *Service) inTx(ctx context.Context, fn func(q storage.Queries) error) error {
	err := s.store.InTx(ctx, fn)
	if err == nil || classified(err) {
		return err
	}
	return persistence("transaction", err)
}

func classified(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrForbidden, ErrInvalidFormat, ErrRowIndexOutOfRange,
		ErrColumnNotFound, ErrColumnExists, ErrConflict, ErrPersistence,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) notify(ctx context.Context, entry storage.HistoryEntry) {
	s.logger.Debug("change recorded",
		"unit_id", entry.UnitID,
		"user_id", entry.UserID,
		"change_type", entry.ChangeType,
	)
	for _, l := range s.listeners {
		l.ChangeRecorded(ctx, entry)
	}
}

// loadOwned fetches a unit and checks that userID owns its conversation.
func loadOwned(ctx context.Context, q storage.Queries, unitID, userID uuid.UUID, includeDeleted bool) (*storage.Unit, error) {
	u, err := q.GetUnit(ctx, unitID, includeDeleted)
	if err != nil {
		return nil, persistence("load structured data", err)
	}
	if u.OwnerID != userID {
		return nil, ErrForbidden
	}
	return u, nil
}

// saveTable writes t back into the unit payload and persists it.
func saveTable(ctx context.Context, q storage.Queries, u *storage.Unit, t *table.RowTable) error {
	u.Data = t.Data()
	if err := q.UpdateUnit(ctx, u); err != nil {
		return persistence("save structured data", err)
	}
	return nil
}

// claimUnit bumps the unit version. Column mutations of one unit therefore
// serialize on the unit row like payload writes do.
func claimUnit(ctx context.Context, q storage.Queries, u *storage.Unit) error {
	if err := q.UpdateUnit(ctx, u); err != nil {
		return persistence("claim structured data", err)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
