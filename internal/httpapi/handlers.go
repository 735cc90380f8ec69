// Package httpapi exposes sync triggers, the sales view and the contract
// workflow over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkoziy/contratos/crmsync/internal/apperror"
	"github.com/mkoziy/contratos/crmsync/internal/contracts"
	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/salesview"
	"github.com/mkoziy/contratos/crmsync/internal/syncer"
)

// Actor headers are set by the authenticating proxy in front of the API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Syncer runs and reports sync runs.
type Syncer interface {
	RunSync(ctx context.Context, req syncer.Request) (*syncer.Result, error)
	Status(ctx context.Context) (*syncer.Status, error)
}

// Sales serves the working sales view.
type Sales interface {
	List(ctx context.Context, f salesview.Filter) (*salesview.Page, error)
	Get(ctx context.Context, id string) (*models.Sale, error)
	Hide(ctx context.Context, id, reason string) (string, error)
	Restore(ctx context.Context, id string) (bool, error)
	Audit(ctx context.Context, id string) (*salesview.AuditView, error)
}

// Contracts drives the contract workflow.
type Contracts interface {
	DraftFromSale(ctx context.Context, actor contracts.Actor, saleID string) (*models.Contract, error)
	Transition(ctx context.Context, actor contracts.Actor, id int64, to models.ContractStatus) (*contracts.Result, error)
}

// Handler groups the API endpoints.
type Handler struct {
	sync      Syncer
	sales     Sales
	contracts Contracts
}

// NewHandler creates a Handler.
func NewHandler(s Syncer, sales Sales, c Contracts) *Handler {
	return &Handler{sync: s, sales: sales, contracts: c}
}

type syncRequest struct {
	Type  string `json:"type"`
	From  string `json:"from"`
	To    string `json:"to"`
	Force *bool  `json:"force"`
}

type hideRequest struct {
	Reason string `json:"reason"`
}

type transitionRequest struct {
	To models.ContractStatus `json:"to" binding:"required"`
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// RunSync handles POST /api/sync. The type defaults to manual, and manual
// runs are forced unless the body says otherwise.
func (h *Handler) RunSync(c *gin.Context) {
	var body syncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.fail(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
			return
		}
	}

	if body.Type == "" {
		body.Type = string(models.SyncManual)
	}
	syncType, err := models.ParseSyncType(body.Type)
	if err != nil {
		h.fail(c, apperror.NewInvalidInput("type", err.Error()))
		return
	}
	req := syncer.Request{Type: syncType, Force: syncType == models.SyncManual}
	if body.Force != nil {
		req.Force = *body.Force
	}
	if req.From, err = parseDay("from", body.From); err != nil {
		h.fail(c, err)
		return
	}
	if req.To, err = parseDay("to", body.To); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.sync.RunSync(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SyncStatus handles GET /api/sync/status.
func (h *Handler) SyncStatus(c *gin.Context) {
	st, err := h.sync.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListSales handles GET /api/sales.
func (h *Handler) ListSales(c *gin.Context) {
	var f salesview.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		h.fail(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return
	}
	page, err := h.sales.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetSale handles GET /api/sales/:id. With ?audit=true hidden sales are
// returned together with their overlay entry.
func (h *Handler) GetSale(c *gin.Context) {
	id := c.Param("id")
	if c.Query("audit") == "true" {
		view, err := h.sales.Audit(c.Request.Context(), id)
		if err != nil {
			h.fail(c, notFoundAs(err, "sale", id))
			return
		}
		c.JSON(http.StatusOK, view)
		return
	}

	sale, err := h.sales.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, notFoundAs(err, "sale", id))
		return
	}
	c.JSON(http.StatusOK, sale)
}

// HideSale handles DELETE /api/sales/:id.
func (h *Handler) HideSale(c *gin.Context) {
	var body hideRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.fail(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
			return
		}
	}
	id := c.Param("id")
	entryID, err := h.sales.Hide(c.Request.Context(), id, body.Reason)
	if err != nil {
		h.fail(c, notFoundAs(err, "sale", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": entryID, "sale_id": id})
}

// RestoreSale handles POST /api/sales/:id/restore.
func (h *Handler) RestoreSale(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.sales.Restore(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		h.fail(c, apperror.NewNotFound("soft delete", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sale_id": id})
}

// DraftContract handles POST /api/contracts/from-sale/:saleId.
func (h *Handler) DraftContract(c *gin.Context) {
	saleID := c.Param("saleId")
	contract, err := h.contracts.DraftFromSale(c.Request.Context(), actorFrom(c), saleID)
	if err != nil {
		h.fail(c, notFoundAs(err, "sale", saleID))
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// TransitionContract handles POST /api/contracts/:id/transition.
func (h *Handler) TransitionContract(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, apperror.NewInvalidInput("id", "contract id must be a positive integer"))
		return
	}
	var body transitionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return
	}

	res, err := h.contracts.Transition(c.Request.Context(), actorFrom(c), id, body.To)
	if err != nil {
		h.fail(c, notFoundAs(err, "contract", id))
		return
	}
	c.JSON(http.StatusOK, res)
}

func actorFrom(c *gin.Context) contracts.Actor {
	return contracts.Actor{
		ID:   c.GetHeader(HeaderUserID),
		Role: contracts.Role(c.GetHeader(HeaderUserRole)),
	}
}

func parseDay(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DayLayout, value)
	if err != nil {
		return nil, apperror.NewInvalidInput(field, "expected YYYY-MM-DD")
	}
	return &t, nil
}

// notFoundAs names the entity when err is a not-found or a lost-race error.
func notFoundAs(err error, entity string, id any) error {
	appErr := toAppError(err)
	switch {
	case apperror.IsNotFound(appErr):
		return apperror.NewNotFound(entity, id).WithCause(err)
	case appErr.Code == apperror.CodeConcurrentModification:
		return apperror.NewConcurrentModification(entity, id).WithCause(err)
	}
	return err
}
