package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// defaultMaxPages stops a CRM that keeps reporting more pages.
const defaultMaxPages = 500

// ErrTooManyPages is returned when the CRM still reports more pages after
// the fetcher's page limit.
var ErrTooManyPages = errors.New("crm: page limit reached with more pages pending")

// Fetcher pulls and coerces sales from the CRM.
type Fetcher struct {
	client   *Client
	log      *logger.Logger
	maxPages int
}

// NewFetcher creates a new CRM fetcher.
func NewFetcher(client *Client, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Default()
	}
	return &Fetcher{client: client, log: log.WithComponent("crm"), maxPages: defaultMaxPages}
}

// FetchSales returns every sale dated within [from, to] in CRM order.
// Records without an id or that fail to decode are skipped and logged.
// Duplicates are returned as received. A listing longer than the page
// limit fails with ErrTooManyPages rather than returning a partial window.
func (f *Fetcher) FetchSales(ctx context.Context, from, to time.Time) ([]*models.Sale, error) {
	fromDay, toDay := models.FormatDay(from), models.FormatDay(to)
	sales := make([]*models.Sale, 0)
	skipped := 0

	for page := 1; ; page++ {
		resp, err := f.client.ListSales(ctx, fromDay, toDay, page)
		if err != nil {
			return nil, fmt.Errorf("list sales page %d: %w", page, err)
		}

		for i, raw := range resp.Data {
			sale, err := MapSale(raw)
			if err != nil {
				skipped++
				if errors.Is(err, ErrMissingID) {
					f.log.Warnw("skipping sale without id", "page", page, "index", i)
				} else {
					f.log.Warnw("skipping undecodable sale", "page", page, "index", i, "error", err)
				}
				continue
			}
			sales = append(sales, sale)
		}

		if !resp.HasMore() {
			break
		}
		if page >= f.maxPages {
			f.log.Errorw("crm page limit reached", "from", fromDay, "to", toDay, "pages", page)
			return nil, fmt.Errorf("list sales after page %d: %w", page, ErrTooManyPages)
		}
	}

	f.log.Infow("fetched sales", "from", fromDay, "to", toDay, "count", len(sales), "skipped", skipped)
	return sales, nil
}
