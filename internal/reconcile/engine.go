// Package reconcile writes fetched CRM sales into the local mirror.
package reconcile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkoziy/contratos/crmsync/internal/batch"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/models"
)

const tracerName = "github.com/mkoziy/contratos/crmsync/internal/reconcile"

// Store is the mirror the engine writes to.
type Store interface {
	BulkLookup(ctx context.Context, ids []string) ([]models.SaleStamp, error)
	BulkUpsert(ctx context.Context, sales []*models.Sale) error
}

// Counts aggregates the outcome of one or more batches.
type Counts struct {
	Processed int `json:"processed"`
	New       int `json:"new"`
	Updated   int `json:"updated"`
}

// Add returns c plus o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Processed: c.Processed + o.Processed,
		New:       c.New + o.New,
		Updated:   c.Updated + o.Updated,
	}
}

// BatchError reports the batch that stopped a multi-batch reconciliation.
type BatchError struct {
	Index int
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d records): %v", e.Index, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Engine classifies and upserts batches of sales.
type Engine struct {
	store  Store
	log    *logger.Logger
	tracer trace.Tracer
}

// NewEngine creates an engine over store.
func NewEngine(store Store, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		store:  store,
		log:    log.WithComponent("reconcile"),
		tracer: otel.Tracer(tracerName),
	}
}

// Reconcile upserts one batch. Records are classified as new or updated
// from a single existence lookup taken before the write, then written with
// one bulk upsert. A failed upsert fails the whole batch.
func (e *Engine) Reconcile(ctx context.Context, records []*models.Sale) (Counts, error) {
	records = Dedupe(records)

	valid := records[:0:0]
	for _, r := range records {
		if err := r.Validate(); err != nil {
			e.log.Warnw("skipping invalid sale", "id", r.ID, "error", err)
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return Counts{}, nil
	}

	ids := make([]string, len(valid))
	for i, r := range valid {
		ids[i] = r.ID
	}

	stamps, err := e.store.BulkLookup(ctx, ids)
	if err != nil {
		return Counts{}, fmt.Errorf("lookup existing sales: %w", err)
	}
	existing := make(map[string]struct{}, len(stamps))
	for _, s := range stamps {
		existing[s.ID] = struct{}{}
	}

	counts := Counts{Processed: len(valid)}
	for _, r := range valid {
		if _, ok := existing[r.ID]; ok {
			counts.Updated++
		} else {
			counts.New++
		}
	}

	if err := e.store.BulkUpsert(ctx, valid); err != nil {
		return Counts{}, fmt.Errorf("upsert sales: %w", err)
	}
	return counts, nil
}

// ReconcileAll dedupes records, splits them into batches of batchSize and
// reconciles each in order. It stops at the first failing batch and returns
// the counts of the batches committed before it together with a *BatchError.
func (e *Engine) ReconcileAll(ctx context.Context, records []*models.Sale, batchSize int) (Counts, error) {
	var total Counts
	chunks := batch.Split(Dedupe(records), batchSize)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return total, &BatchError{Index: i, Size: len(chunk), Err: err}
		}

		bctx, span := e.tracer.Start(ctx, "reconcile.batch", trace.WithAttributes(
			attribute.Int("batch.index", i),
			attribute.Int("batch.size", len(chunk)),
		))
		counts, err := e.Reconcile(bctx, chunk)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			e.log.Errorw("batch failed", "batch", i, "batches", len(chunks), "error", err)
			return total, &BatchError{Index: i, Size: len(chunk), Err: err}
		}
		span.SetAttributes(attribute.Int("batch.new", counts.New), attribute.Int("batch.updated", counts.Updated))
		span.End()

		total = total.Add(counts)
		e.log.Debugw("batch committed", "batch", i, "batches", len(chunks), "new", counts.New, "updated", counts.Updated)
	}
	return total, nil
}

// Dedupe collapses records sharing an id. The last occurrence wins and
// keeps the position of the first.
func Dedupe(records []*models.Sale) []*models.Sale {
	pos := make(map[string]int, len(records))
	out := make([]*models.Sale, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
