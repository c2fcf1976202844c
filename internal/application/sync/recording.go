package sync

import (
	"context"
	"time"

	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/events"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// Recording and audit trail functions for the sync orchestrator.
// These handle sync run rows and the events emitted after a batch commits.

// startRun records the start of a sync run. Tracking failures are logged
// and never block the sync.
func (o *Orchestrator) startRun(ctx context.Context, accountID int64) int64 {
	runID, err := o.repo.StartSyncRun(ctx, accountID)
	if err != nil {
		o.logger.Warn("Failed to start sync run tracking", "account_id", accountID, "error", err)
		return 0
	}
	return runID
}

// completeRun writes the final counters of a run
func (o *Orchestrator) completeRun(ctx context.Context, result *SyncResult, syncErr error) {
	if result.RunID == 0 {
		return
	}

	run := storage.SyncRunResult{
		OrdersFound:         result.Fetched,
		OrdersImported:      result.Imported,
		OrdersAutoProcessed: result.AutoProcessed,
		OrdersErrored:       len(result.Errors),
		OrdersAwaitingItems: result.AwaitingItems,
		Status:              storage.RunCompleted,
		Warning:             result.Warning,
	}
	if syncErr != nil {
		run.Status = storage.RunFailed
		run.Warning = syncErr.Error()
	}

	// The sync context may be cancelled already; the run row should still close.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.repo.CompleteSyncRun(writeCtx, result.RunID, run); err != nil {
		o.logger.Warn("Failed to complete sync run", "run_id", result.RunID, "error", err)
	}
}

// orderOutcome is what one committed order produced
type orderOutcome struct {
	order     *storage.ExternalOrder
	created   bool
	reconcile ReconcileResult
}

// publish emits the events of a committed batch in one write. Publishing
// is best effort.
func (o *Orchestrator) publish(ctx context.Context, outcomes []orderOutcome) {
	var batch events.Batch
	for _, out := range outcomes {
		batch.OrdersSynced = append(batch.OrdersSynced, events.OrderSyncedEvent{
			AccountID:       out.order.AccountID,
			OrderID:         out.order.ID,
			ExternalOrderID: out.order.ExternalOrderID,
			Status:          out.order.Status,
			Created:         out.created,
		})
		if out.reconcile.Deducted {
			batch.StockDeducted = append(batch.StockDeducted, stockEvent(out))
		}
	}
	o.send(ctx, batch)
}

// publishStock announces the deduction of a manually processed order
func (o *Orchestrator) publishStock(ctx context.Context, out orderOutcome) {
	if !out.reconcile.Deducted {
		return
	}
	o.send(ctx, events.Batch{StockDeducted: []events.StockDeductedEvent{stockEvent(out)}})
}

func stockEvent(out orderOutcome) events.StockDeductedEvent {
	return events.StockDeductedEvent{
		AccountID:     out.order.AccountID,
		OrderID:       out.order.ID,
		OrderNumber:   out.order.OrderNumber,
		ItemsDeducted: out.reconcile.ItemsDeducted,
		Unmatched:     out.reconcile.Unmatched,
	}
}

func (o *Orchestrator) send(ctx context.Context, batch events.Batch) {
	if batch.Len() == 0 {
		return
	}
	if err := o.events.Publish(ctx, batch); err != nil {
		o.logger.Warn("Failed to publish events",
			"orders", len(batch.OrdersSynced),
			"deductions", len(batch.StockDeducted),
			"error", err,
		)
	}
}
