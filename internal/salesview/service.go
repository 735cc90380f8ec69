// Package salesview serves every read of mirrored sales to the back office.
// All reads go through the soft-delete overlay except Audit.
package salesview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/overlay"
	"github.com/mkoziy/contratos/crmsync/internal/repositories"
)

// MaxPageSize caps List results.
const MaxPageSize = 200

// Store reads the mirror.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Sale, error)
	List(ctx context.Context, f repositories.SaleFilter) ([]models.Sale, int, error)
}

// Filter narrows List.
type Filter struct {
	From          string `form:"from"`
	To            string `form:"to"`
	SalespersonID string `form:"salesperson_id"`
	Search        string `form:"q"`
	Limit         int    `form:"limit"`
	Offset        int    `form:"offset"`
}

// Page is one page of visible sales.
type Page struct {
	Items  []models.Sale `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// AuditView shows a mirror row together with its overlay entry, if any.
type AuditView struct {
	Sale   *models.Sale       `json:"sale"`
	Hidden *models.SoftDelete `json:"hidden,omitempty"`
}

// Service is the overlay-aware read side.
type Service struct {
	store   Store
	overlay overlay.Overlay
	log     *logger.Logger
}

// NewService creates the read service.
func NewService(store Store, ov overlay.Overlay, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{store: store, overlay: ov, log: log.WithComponent("salesview")}
}

// List returns visible sales matching f, newest sale date first.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	hidden, err := s.overlay.HiddenIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load hidden sales: %w", err)
	}
	exclude := make([]string, 0, len(hidden))
	for id := range hidden {
		exclude = append(exclude, id)
	}

	limit := f.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = 50
	}
	offset := max(f.Offset, 0)

	items, total, err := s.store.List(ctx, repositories.SaleFilter{
		From:          f.From,
		To:            f.To,
		SalespersonID: f.SalespersonID,
		Search:        f.Search,
		ExcludeIDs:    exclude,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	if items == nil {
		items = []models.Sale{}
	}
	return &Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Get returns a visible sale. Hidden sales are reported as not found.
func (s *Service) Get(ctx context.Context, id string) (*models.Sale, error) {
	hidden, err := s.overlay.IsHidden(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check hidden sale: %w", err)
	}
	if hidden {
		return nil, fmt.Errorf("sale %s: %w", id, repositories.ErrNotFound)
	}
	sale, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sale %s: %w", id, err)
	}
	return sale, nil
}

// Hide removes a sale from the working view, keeping a snapshot for undo.
func (s *Service) Hide(ctx context.Context, id, reason string) (string, error) {
	sale, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("sale %s: %w", id, err)
	}
	snapshot, err := json.Marshal(sale)
	if err != nil {
		return "", fmt.Errorf("snapshot sale %s: %w", id, err)
	}

	entryID, err := s.overlay.Hide(ctx, id, snapshot, reason)
	if err != nil {
		return "", fmt.Errorf("hide sale %s: %w", id, err)
	}
	s.log.Infow("sale hidden", "sale_id", id, "entry_id", entryID)
	return entryID, nil
}

// Restore makes a hidden sale visible again and reports whether it was hidden.
func (s *Service) Restore(ctx context.Context, id string) (bool, error) {
	ok, err := s.overlay.Restore(ctx, id)
	if err != nil {
		return false, fmt.Errorf("restore sale %s: %w", id, err)
	}
	if ok {
		s.log.Infow("sale restored", "sale_id", id)
	}
	return ok, nil
}

// Audit returns the mirror row regardless of the overlay.
func (s *Service) Audit(ctx context.Context, id string) (*AuditView, error) {
	sale, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sale %s: %w", id, err)
	}
	entry, err := s.overlay.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load overlay entry %s: %w", id, err)
	}
	return &AuditView{Sale: sale, Hidden: entry}, nil
}
