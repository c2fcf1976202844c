package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/eshaffer321/ordersync-backend/internal/adapters/platform"
	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/domain/matcher"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// Data fetching functions for the sync orchestrator.
// These handle retrieving orders and catalog data before persistence.

// fetchOrders pages the platform listing and, when enabled, fills in line
// items for entries that came without them
func (o *Orchestrator) fetchOrders(ctx context.Context, account *storage.MerchantAccount, token string) (platform.FetchResult, error) {
	o.logger.Debug("Fetching orders", "account_id", account.ID)

	fetched, err := o.source.FetchAllOrders(ctx, account, token)
	if err != nil {
		return fetched, fmt.Errorf("failed to fetch orders: %w", err)
	}

	o.logger.Debug("Fetched orders",
		"account_id", account.ID,
		"count", len(fetched.Orders),
		"pages", fetched.Pages,
	)

	if o.opts.EnrichItems {
		o.enrichItems(ctx, account, fetched.AccessToken, fetched.Orders)
	}
	return fetched, nil
}

// enrichItems replaces item-less listing entries with their detail payload.
// Detail failures leave the listing entry as is. A token refreshed by one
// detail call is used for the rest; an authentication failure ends
// enrichment since every later call would fail the same way.
func (o *Orchestrator) enrichItems(ctx context.Context, account *storage.MerchantAccount, token string, orders []platform.RawOrder) {
	enriched := 0
	for i, order := range orders {
		if order.HasItems() || order.ID() == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		detail, err := o.source.FetchOrderDetail(ctx, account, order.ID(), token)
		if detail.AccessToken != "" {
			token = detail.AccessToken
		}
		if err != nil {
			var authErr *errs.AuthError
			if errors.As(err, &authErr) {
				o.logger.Warn("Order detail enrichment stopped",
					"account_id", account.ID,
					"order_id", order.ID(),
					"error", err,
				)
				break
			}
			o.logger.Debug("Order detail unavailable, keeping summary",
				"order_id", order.ID(),
				"error", err,
			)
			continue
		}
		orders[i] = detail.Order
		enriched++
	}

	if enriched > 0 {
		o.logger.Debug("Enriched orders with detail", "count", enriched)
	}
}

// loadProducts returns the active catalog in matcher form
func (o *Orchestrator) loadProducts(ctx context.Context) ([]matcher.Product, error) {
	products, err := o.repo.ListActiveProducts(ctx)
	if err != nil {
		return nil, &errs.PersistenceError{Op: "load products", Err: err}
	}
	return toMatchable(products), nil
}
