package contracts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/database/dbtest"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/notify"
	"github.com/mkoziy/contratos/crmsync/internal/repositories"
)

var (
	admin = Actor{ID: "u-admin", Role: RoleAdmin}
	owner = Actor{ID: "u-eje", Role: RoleEjecutivo}
	other = Actor{ID: "u-eje-2", Role: RoleEjecutivo}
)

type saleMap map[string]*models.Sale

func (m saleMap) Get(_ context.Context, id string) (*models.Sale, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, repositories.ErrNotFound
}

type recorder struct {
	sent []notify.Message
	err  error
}

func (r *recorder) Notify(_ context.Context, m notify.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

func completeSale() *models.Sale {
	day := "2026-12-01"
	return &models.Sale{
		ID:              "V-100",
		CustomerName:    "María Soto",
		CustomerRUT:     "12345678-5",
		CustomerEmail:   "maria@example.cl",
		DeliveryAddress: "Camino Los Robles 455, Puerto Varas",
		TotalValue:      18900000,
		HouseModel:      "Casa Roble 72",
		MaterialDetail:  "Paneles SIP",
		DeliveryDate:    &day,
	}
}

type fixture struct {
	db        *bun.DB
	svc       *Service
	repo      *repositories.ContractRepository
	primary   *recorder
	secondary *recorder
}

func newFixture(t *testing.T, sales saleMap) *fixture {
	db := dbtest.New(t)
	f := &fixture{
		db:        db,
		repo:      repositories.NewContractRepository(db),
		primary:   &recorder{},
		secondary: &recorder{},
	}
	f.svc = NewService(f.repo, sales, f.primary, f.secondary, "contratos@empresa.cl", logger.Nop())
	return f
}

func (f *fixture) draft(t *testing.T, s *models.Sale) *models.Contract {
	c, err := f.svc.DraftFromSale(context.Background(), owner, s.ID)
	require.NoError(t, err)
	return c
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(models.ContractDraft, models.ContractInReview))
	assert.True(t, CanTransition(models.ContractDraft, models.ContractValidated))
	assert.True(t, CanTransition(models.ContractInReview, models.ContractDraft))
	assert.True(t, CanTransition(models.ContractValidated, models.ContractSent))
	assert.False(t, CanTransition(models.ContractDraft, models.ContractSent))
	assert.False(t, CanTransition(models.ContractSent, models.ContractDraft))
	assert.False(t, CanTransition(models.ContractValidated, models.ContractDraft))
	assert.Empty(t, Next(models.ContractSent))
}

func TestInvalidTransitionListsAllowedStates(t *testing.T) {
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)

	_, err := f.svc.Transition(context.Background(), owner, c.ID, models.ContractSent)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorContains(t, err, "validacion")
}

func TestDraftFromSale(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})

	c := f.draft(t, s)
	assert.Equal(t, models.ContractDraft, c.Status)
	assert.Equal(t, owner.ID, c.OwnerID)
	assert.Equal(t, s.CustomerName, c.CustomerName)

	_, err := f.svc.DraftFromSale(ctx, Actor{ID: "x", Role: "viewer"}, s.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.DraftFromSale(ctx, admin, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestValidateListsMissingDeliveryAddress(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	s.DeliveryAddress = ""
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)

	_, err := f.svc.Transition(ctx, owner, c.ID, models.ContractValidated)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"Dirección de entrega"}, ve.Missing)

	stored, err := f.repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractDraft, stored.Status)
	assert.Nil(t, stored.ValidatedAt)
}

func TestFullWorkflow(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)

	_, err := f.svc.Transition(ctx, owner, c.ID, models.ContractInReview)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, owner, c.ID, models.ContractDraft)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, owner, c.ID, models.ContractValidated)
	require.NoError(t, err)

	res, err := f.svc.Transition(ctx, owner, c.ID, models.ContractSent)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, models.ContractSent, res.Contract.Status)
	require.Len(t, f.primary.sent, 1)
	assert.Equal(t, "maria@example.cl", f.primary.sent[0].To)
	require.Len(t, f.secondary.sent, 1)
	assert.Equal(t, "contratos@empresa.cl", f.secondary.sent[0].To)

	stored, err := f.repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractSent, stored.Status)
	assert.NotNil(t, stored.ValidatedAt)
	assert.NotNil(t, stored.SentAt)

	_, err = f.svc.Transition(ctx, admin, c.ID, models.ContractDraft)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSendRequiresCustomerEmail(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)

	_, err := f.svc.Transition(ctx, owner, c.ID, models.ContractValidated)
	require.NoError(t, err)

	// The email is cleared after validation, e.g. by a manual correction.
	c.CustomerEmail = ""
	_, err = f.db.NewUpdate().Model(c).Column("customer_email").WherePK().Exec(ctx)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, owner, c.ID, models.ContractSent)
	assert.ErrorIs(t, err, ErrNoCustomerEmail)
	assert.Empty(t, f.primary.sent)

	stored, err := f.repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractValidated, stored.Status)
}

func TestSendFailsWhenPrimaryNotificationFails(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)
	_, err := f.svc.Transition(ctx, owner, c.ID, models.ContractValidated)
	require.NoError(t, err)

	f.primary.err = errors.New("smtp 554")
	_, err = f.svc.Transition(ctx, owner, c.ID, models.ContractSent)
	assert.ErrorIs(t, err, ErrNotificationFailed)

	stored, err := f.repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractValidated, stored.Status)
	assert.Nil(t, stored.SentAt)

	// The rolled back contract can be sent once the mailer recovers.
	f.primary.err = nil
	res, err := f.svc.Transition(ctx, owner, c.ID, models.ContractSent)
	require.NoError(t, err)
	assert.Equal(t, models.ContractSent, res.Contract.Status)
	assert.Len(t, f.primary.sent, 1)
}

// staleReads serves contracts as if loaded before another writer moved them.
type staleReads struct {
	Store
	status models.ContractStatus
}

func (s staleReads) Get(ctx context.Context, id int64) (*models.Contract, error) {
	c, err := s.Store.Get(ctx, id)
	if c != nil {
		c.Status = s.status
	}
	return c, err
}

func TestStaleSendDoesNotEmailTwice(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)
	_, err := f.svc.Transition(ctx, owner, c.ID, models.ContractValidated)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, owner, c.ID, models.ContractSent)
	require.NoError(t, err)
	require.Len(t, f.primary.sent, 1)

	f.svc.store = staleReads{Store: f.repo, status: models.ContractValidated}
	_, err = f.svc.Transition(ctx, owner, c.ID, models.ContractSent)
	assert.ErrorIs(t, err, repositories.ErrStaleStatus)
	assert.Len(t, f.primary.sent, 1)
	assert.Len(t, f.secondary.sent, 1)
}

func TestSecondaryNotificationFailureIsWarning(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)
	_, err := f.svc.Transition(ctx, owner, c.ID, models.ContractValidated)
	require.NoError(t, err)

	f.secondary.err = errors.New("mailbox full")
	res, err := f.svc.Transition(ctx, owner, c.ID, models.ContractSent)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "mailbox full")
	assert.Equal(t, models.ContractSent, res.Contract.Status)
}

func TestRoleGate(t *testing.T) {
	ctx := context.Background()
	s := completeSale()
	f := newFixture(t, saleMap{s.ID: s})
	c := f.draft(t, s)

	_, err := f.svc.Transition(ctx, other, c.ID, models.ContractInReview)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Transition(ctx, Actor{ID: owner.ID, Role: "viewer"}, c.ID, models.ContractInReview)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Transition(ctx, admin, c.ID, models.ContractInReview)
	assert.NoError(t, err)
}

func TestTransitionUnknownContract(t *testing.T) {
	f := newFixture(t, saleMap{})
	_, err := f.svc.Transition(context.Background(), admin, 404, models.ContractInReview)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
