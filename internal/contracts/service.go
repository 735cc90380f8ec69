// Package contracts implements the contract drafting workflow:
// borrador → validacion → validado → enviado.
package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/notify"
)

// Store persists contracts.
type Store interface {
	Create(ctx context.Context, c *models.Contract) error
	Get(ctx context.Context, id int64) (*models.Contract, error)
	UpdateStatus(ctx context.Context, c *models.Contract, from models.ContractStatus) error
}

// SaleReader returns visible mirror rows.
type SaleReader interface {
	Get(ctx context.Context, id string) (*models.Sale, error)
}

// Result is a completed transition plus any non-fatal warnings.
type Result struct {
	Contract *models.Contract `json:"contract"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Service applies workflow transitions.
type Service struct {
	store     Store
	sales     SaleReader
	primary   notify.Notifier
	secondary notify.Notifier
	copyTo    string
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates the workflow service. secondary and copyTo configure
// the internal copy sent with each dispatched contract; both are optional.
func NewService(store Store, sales SaleReader, primary, secondary notify.Notifier, copyTo string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		store:     store,
		sales:     sales,
		primary:   primary,
		secondary: secondary,
		copyTo:    copyTo,
		log:       log.WithComponent("contracts"),
		now:       time.Now,
	}
}

// DraftFromSale creates a borrador contract owned by actor, prefilled from
// the visible mirror row of saleID.
func (s *Service) DraftFromSale(ctx context.Context, actor Actor, saleID string) (*models.Contract, error) {
	if !actor.CanDraft() {
		return nil, ErrForbidden
	}
	sale, err := s.sales.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}

	c := models.NewContractFromSale(sale, actor.ID)
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}
	s.log.Infow("contract drafted", "contract_id", c.ID, "sale_id", saleID, "owner", actor.ID)
	return c, nil
}

// Transition moves contract id to state to. Guards run before any side
// effect: role, workflow table, required fields for validado and customer
// email for enviado. An enviado transition is claimed in the store before
// the customer is emailed, so only one caller ever sends; a failed send
// moves the contract back to validado.
func (s *Service) Transition(ctx context.Context, actor Actor, id int64, to models.ContractStatus) (*Result, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("contract %d: %w", id, err)
	}
	if !actor.CanActOn(c) {
		return nil, ErrForbidden
	}

	from := c.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s → %s (allowed: %v)", ErrInvalidTransition, from, to, Next(from))
	}

	res := &Result{Contract: c}
	now := s.now().UTC()

	switch to {
	case models.ContractValidated:
		if missing := c.MissingFields(); len(missing) > 0 {
			return nil, &ValidationError{Missing: missing}
		}
		c.ValidatedAt = &now
	case models.ContractSent:
		if !c.HasCustomerEmail() {
			return nil, ErrNoCustomerEmail
		}
		c.SentAt = &now
	}

	c.Status = to
	if err := s.store.UpdateStatus(ctx, c, from); err != nil {
		return nil, fmt.Errorf("update contract %d: %w", id, err)
	}

	if to == models.ContractSent {
		if err := s.dispatch(ctx, c, from, res); err != nil {
			return nil, err
		}
	}

	s.log.Infow("contract transitioned", "contract_id", c.ID, "from", from, "to", to, "actor", actor.ID)
	return res, nil
}

// dispatch emails a contract already stored as enviado. When the customer
// send fails the contract is put back to from.
func (s *Service) dispatch(ctx context.Context, c *models.Contract, from models.ContractStatus, res *Result) error {
	if err := s.primary.Notify(ctx, s.customerMessage(c)); err != nil {
		s.log.Errorw("customer notification failed", "contract_id", c.ID, "error", err)
		c.Status, c.SentAt = from, nil
		if rerr := s.store.UpdateStatus(context.WithoutCancel(ctx), c, models.ContractSent); rerr != nil {
			s.log.Errorw("roll back unsent contract", "contract_id", c.ID, "error", rerr)
		}
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	if s.secondary != nil && s.copyTo != "" {
		if err := s.secondary.Notify(ctx, s.internalCopy(c)); err != nil {
			s.log.Warnw("internal copy failed", "contract_id", c.ID, "error", err)
			res.Warnings = append(res.Warnings, "No se pudo enviar la copia interna: "+err.Error())
		}
	}
	return nil
}

func (s *Service) customerMessage(c *models.Contract) notify.Message {
	return notify.Message{
		To:         c.CustomerEmail,
		Subject:    "Su contrato de construcción",
		Body:       fmt.Sprintf("Estimado(a) %s, adjuntamos su contrato para el modelo %s.", c.CustomerName, c.HouseModel),
		ContractID: c.ID,
	}
}

func (s *Service) internalCopy(c *models.Contract) notify.Message {
	return notify.Message{
		To:         s.copyTo,
		Subject:    fmt.Sprintf("Contrato %d enviado a %s", c.ID, c.CustomerName),
		Body:       fmt.Sprintf("Venta %s, valor total %d.", c.SaleID, c.TotalValue),
		ContractID: c.ID,
	}
}
