package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/eshaffer321/ordersync-backend/internal/domain/inventory"
	"github.com/eshaffer321/ordersync-backend/internal/domain/matcher"
	"github.com/eshaffer321/ordersync-backend/internal/domain/status"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/telemetry"
)

// ErrAlreadyProcessed means another writer marked the order processed first
var ErrAlreadyProcessed = errors.New("order already processed")

// ReconcileResult reports what reconciliation did to one order
type ReconcileResult struct {
	Processed     bool // order is processed after the call
	Deducted      bool // this call wrote the stock exits
	ItemsDeducted int
	Unmatched     int

	// AwaitingItems is set for an eligible order that arrived without line
	// items. It stays unprocessed so a later sync carrying the items deducts.
	AwaitingItems bool
}

// Reconciler turns eligible orders into stock exits, at most once per order.
//
// The processed flag only ever moves false->true here. An order that leaves
// an eligible status and comes back is not deducted again.
type Reconciler struct {
	matcher *matcher.Matcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a reconciler using m for line-item matching
func NewReconciler(m *matcher.Matcher, logger *slog.Logger) *Reconciler {
	if m == nil {
		m = matcher.NewMatcher(matcher.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		matcher: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile applies the processing state machine to a saved order inside tx:
//
//	processed  eligible(after)  action
//	false      false            none
//	false      true             deduct every matched item, mark processed
//	true       any              none
//
// An eligible order without items is left unprocessed.
func (r *Reconciler) Reconcile(ctx context.Context, tx storage.Tx, order *storage.ExternalOrder, products []matcher.Product, statusBefore, statusAfter string) (ReconcileResult, error) {
	if order.Processed {
		return ReconcileResult{Processed: true}, nil
	}
	if !status.IsEligible(statusAfter) {
		return ReconcileResult{}, nil
	}
	if len(order.Items) == 0 {
		r.logger.Warn("Eligible order has no items, deduction deferred",
			"order_id", order.ID,
			"order_number", order.OrderNumber,
			"status", statusAfter,
		)
		return ReconcileResult{AwaitingItems: true}, nil
	}

	if statusBefore != statusAfter {
		r.logger.Debug("Order entered eligible status",
			"order_id", order.ID,
			"order_number", order.OrderNumber,
			"from", statusBefore,
			"to", statusAfter,
		)
	}

	ctx, span := telemetry.StartSpan(ctx, "sync.Deduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	var result ReconcileResult
	err := tx.Savepoint(ctx, fmt.Sprintf("deduct_%d", order.ID), func() error {
		result = ReconcileResult{}
		return r.deduct(ctx, tx, order, products, statusAfter, &result)
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		r.logger.Info("Order processed concurrently, skipping deduction", "order_id", order.ID)
		order.Processed = true
		return ReconcileResult{Processed: true}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return ReconcileResult{}, err
	}

	telemetry.StockMovementsTotal.WithLabelValues(string(inventory.Exit)).Add(float64(result.ItemsDeducted))
	telemetry.UnmatchedItemsTotal.Add(float64(result.Unmatched))

	r.logger.Info("Stock deducted",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"status", statusAfter,
		"items_deducted", result.ItemsDeducted,
		"unmatched", result.Unmatched,
	)
	return result, nil
}

func (r *Reconciler) deduct(ctx context.Context, tx storage.Tx, order *storage.ExternalOrder, products []matcher.Product, statusLabel string, result *ReconcileResult) error {
	reason := fmt.Sprintf("Pedido %s - %s", order.OrderNumber, statusLabel)
	orderID := order.ID

	for _, item := range order.Items {
		match := r.matcher.FindMatch(matcher.Item{SKU: item.SKU, EAN: item.EAN, Name: item.Name}, products)
		if match == nil {
			result.Unmatched++
			r.logger.Warn("No product matches order item",
				"order_number", order.OrderNumber,
				"sku", item.SKU,
				"ean", item.EAN,
				"name", item.Name,
			)
			continue
		}

		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}

		movement := &storage.InventoryMovement{
			ProductID:  match.Product.ID,
			Type:       inventory.Exit,
			Quantity:   qty,
			Reason:     reason,
			UserID:     order.UserID,
			SyncStatus: storage.MovementSynced,
			OrderID:    &orderID,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		result.ItemsDeducted++

		r.logger.Debug("Item matched",
			"order_number", order.OrderNumber,
			"product_id", match.Product.ID,
			"strategy", match.Strategy,
			"quantity", qty,
		)
	}

	at := r.now().UTC()
	ok, err := tx.MarkProcessed(ctx, order.ID, at)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyProcessed
	}

	order.Processed = true
	order.ProcessedAt = &at
	result.Processed = true
	result.Deducted = true
	return nil
}

// toMatchable converts catalog rows into the matcher's view
func toMatchable(products []storage.Product) []matcher.Product {
	out := make([]matcher.Product, 0, len(products))
	for _, p := range products {
		out = append(out, matcher.Product{
			ID:           p.ID,
			SKU:          p.SKU,
			InternalCode: p.InternalCode,
			EAN:          p.EAN,
			Name:         p.Name,
		})
	}
	return out
}
