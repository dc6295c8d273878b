package datamgmt

import (
	"context"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

// History returns the unit's change history newest first. It stays readable
// by the owner after a soft delete. A non-positive limit selects the default
// page size.
func (s *Service) History(ctx context.Context, id, userID uuid.UUID, limit, offset int) ([]storage.HistoryEntry, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	offset = max(offset, 0)

	u, err := loadOwned(ctx, s.store, id, userID, true)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, u.ID, limit, offset)
	if err != nil {
		return nil, persistence("list change history", err)
	}
	return entries, nil
}
