package overlay

import (
	"context"
	"errors"

	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/repositories"
)

// Store keeps the overlay in the sale_soft_deletes table.
type Store struct {
	repo *repositories.SoftDeleteRepository
}

// NewStore creates a database-backed overlay.
func NewStore(repo *repositories.SoftDeleteRepository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Hide(ctx context.Context, saleID string, snapshot models.RawJSON, reason string) (string, error) {
	return s.repo.Upsert(ctx, newEntry(saleID, snapshot, reason))
}

func (s *Store) Restore(ctx context.Context, saleID string) (bool, error) {
	return s.repo.Delete(ctx, saleID)
}

func (s *Store) HiddenIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := s.repo.SaleIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Store) IsHidden(ctx context.Context, saleID string) (bool, error) {
	return s.repo.Exists(ctx, saleID)
}

func (s *Store) Get(ctx context.Context, saleID string) (*models.SoftDelete, error) {
	entry, err := s.repo.Get(ctx, saleID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}
