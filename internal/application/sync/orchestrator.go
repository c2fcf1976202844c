package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/eshaffer321/ordersync-backend/internal/adapters/platform"
	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/domain/matcher"
	"github.com/eshaffer321/ordersync-backend/internal/domain/status"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/events"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/kv"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/telemetry"
)

// Orchestrator runs the sync process: token, fetch, resolve, persist and
// reconcile, one account at a time.
type Orchestrator struct {
	repo       storage.Repository
	tokens     TokenProvider
	source     OrderSource
	resolver   *status.Resolver
	reconciler *Reconciler
	events     events.Publisher
	locker     kv.Locker
	opts       Options
	logger     *slog.Logger
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithResolver replaces the default status resolver
func WithResolver(r *status.Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithReconciler replaces the default reconciler
func WithReconciler(r *Reconciler) Option {
	return func(o *Orchestrator) { o.reconciler = r }
}

// WithPublisher sets the event sink
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithLocker sets the per-account lock used to keep syncs from overlapping
func WithLocker(l kv.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// NewOrchestrator creates a new sync orchestrator
func NewOrchestrator(
	repo storage.Repository,
	tokens TokenProvider,
	source OrderSource,
	opts Options,
	logger *slog.Logger,
	options ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		repo:   repo,
		tokens: tokens,
		source: source,
		opts:   opts.withDefaults(),
		logger: logger,
	}
	for _, opt := range options {
		opt(o)
	}

	if o.resolver == nil {
		o.resolver = status.NewResolver()
	}
	if o.reconciler == nil {
		o.reconciler = NewReconciler(matcher.NewMatcher(matcher.DefaultConfig()), logger)
	}
	if o.events == nil {
		o.events = events.Noop{}
	}
	if o.locker == nil {
		o.locker = kv.NewMemoryLocker()
	}
	return o
}

func lockKey(accountID int64) string {
	return fmt.Sprintf("sync:account:%d", accountID)
}

// SyncAccountByID loads an account and syncs it
func (o *Orchestrator) SyncAccountByID(ctx context.Context, accountID int64) (*SyncResult, error) {
	account, err := o.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, &errs.ValidationError{Field: "account", Message: fmt.Sprintf("account %d is inactive", accountID)}
	}
	return o.SyncAccount(ctx, account)
}

// SyncAccount pulls the account's orders and persists them in bounded
// batches. Per-order and per-batch failures are collected in the result;
// the returned error is reserved for failures that end the whole pass
// (authentication, a busy account, cancellation, an unreadable catalog).
func (o *Orchestrator) SyncAccount(ctx context.Context, account *storage.MerchantAccount) (result *SyncResult, err error) {
	release, ok, err := o.locker.TryLock(ctx, lockKey(account.ID), o.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account lock: %w", err)
	}
	if !ok {
		return nil, &errs.ConflictError{Message: fmt.Sprintf("sync already running for account %d", account.ID)}
	}
	defer release()

	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "sync.SyncAccount")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", account.ID))

	result = &SyncResult{AccountID: account.ID, Errors: []string{}, Orders: []storage.ExternalOrder{}}
	result.RunID = o.startRun(ctx, account.ID)
	if result.RunID > 0 {
		ctx = platform.WithRunID(ctx, result.RunID)
	}

	o.logger.Info("Starting account sync", "account_id", account.ID, "account", account.Name, "run_id", result.RunID)

	defer func() {
		o.completeRun(ctx, result, err)

		outcome := "ok"
		switch {
		case err != nil:
			outcome = "failed"
		case result.Warning != "" || len(result.Errors) > 0:
			outcome = "partial"
		}
		telemetry.SyncRunsTotal.WithLabelValues(outcome).Inc()
		telemetry.SyncDuration.Observe(time.Since(started).Seconds())
		telemetry.RecordError(span, err)
	}()

	token, err := o.tokens.EnsureValidToken(ctx, account)
	if err != nil {
		o.handleAuthFailure(ctx, account, err)
		return result, err
	}

	fetched, err := o.fetchOrders(ctx, account, token)
	result.Fetched = len(fetched.Orders)
	result.Warning = fetched.Warning
	if err != nil {
		o.handleAuthFailure(ctx, account, err)
		return result, err
	}
	if fetched.Warning != "" {
		o.logger.Warn("Fetch ended early, continuing with partial results",
			"account_id", account.ID,
			"fetched", result.Fetched,
			"warning", fetched.Warning,
		)
	}

	products, err := o.loadProducts(ctx)
	if err != nil {
		return result, err
	}

	orders := fetched.Orders
	for from, batchNo := 0, 1; from < len(orders); from, batchNo = from+o.opts.BatchSize, batchNo+1 {
		to := min(from+o.opts.BatchSize, len(orders))
		o.processBatch(ctx, account, batchNo, orders[from:to], products, result)
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}

	recent, err := o.repo.ListRecentOrders(ctx, account.ID, o.opts.RecentLimit)
	if err != nil {
		return result, &errs.PersistenceError{Op: "list recent orders", Err: err}
	}
	result.Orders = recent

	if err := o.repo.TouchLastSync(ctx, account.ID, time.Now()); err != nil {
		o.logger.Warn("Failed to update last sync time", "account_id", account.ID, "error", err)
	}

	o.logger.Info("Account sync finished",
		"account_id", account.ID,
		"fetched", result.Fetched,
		"imported", result.Imported,
		"auto_processed", result.AutoProcessed,
		"errors", len(result.Errors),
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return result, nil
}

// handleAuthFailure marks the account disconnected when its credentials
// can no longer be refreshed
func (o *Orchestrator) handleAuthFailure(ctx context.Context, account *storage.MerchantAccount, err error) {
	var authErr *errs.AuthError
	if !errors.As(err, &authErr) {
		return
	}

	o.logger.Error("Account needs to be reconnected", "account_id", account.ID, "error", err)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if setErr := o.repo.SetAccountStatus(writeCtx, account.ID, storage.AccountDisconnected); setErr != nil {
		o.logger.Warn("Failed to mark account disconnected", "account_id", account.ID, "error", setErr)
		return
	}
	account.Status = storage.AccountDisconnected
}

// processBatch persists one batch in a single transaction bounded by the
// batch timeout. Each order runs in its own savepoint so one bad order does
// not undo the others; a failed commit or timeout undoes the whole batch.
func (o *Orchestrator) processBatch(ctx context.Context, account *storage.MerchantAccount, batchNo int, batch []platform.RawOrder, products []matcher.Product, result *SyncResult) {
	batchCtx, cancel := context.WithTimeout(ctx, o.opts.BatchTimeout)
	defer cancel()

	var (
		outcomes  []orderOutcome
		orderErrs []string
	)

	err := o.repo.InTx(batchCtx, func(tx storage.Tx) error {
		for i, raw := range batch {
			if err := batchCtx.Err(); err != nil {
				return err
			}

			out, err := o.saveOrder(batchCtx, tx, account, raw, products, i)
			if err != nil {
				if batchCtx.Err() != nil {
					return err
				}

				stage := "upsert"
				var ve *errs.ValidationError
				if errors.As(err, &ve) {
					stage = "validation"
				}
				telemetry.OrderErrorsTotal.WithLabelValues(stage).Inc()
				o.logger.Warn("Skipping order", "account_id", account.ID, "order_id", raw.ID(), "stage", stage, "error", err)
				orderErrs = append(orderErrs, fmt.Sprintf("order %s: %v", raw.ID(), err))
				continue
			}
			outcomes = append(outcomes, out)
		}
		return nil
	})
	if err != nil {
		batchErr := &errs.PersistenceError{Op: fmt.Sprintf("order batch %d", batchNo), Err: err}
		telemetry.OrderErrorsTotal.WithLabelValues("batch").Inc()
		o.logger.Error("Batch rolled back",
			"account_id", account.ID,
			"batch", batchNo,
			"orders", len(batch),
			"error", err,
		)
		result.Errors = append(result.Errors, batchErr.Error())
		return
	}

	result.Errors = append(result.Errors, orderErrs...)
	deducted := 0
	for _, out := range outcomes {
		if out.reconcile.Deducted {
			deducted++
		}
		if out.reconcile.AwaitingItems {
			result.AwaitingItems++
		}
	}
	result.Imported += len(outcomes)
	result.AutoProcessed += deducted
	telemetry.OrdersImportedTotal.Add(float64(len(outcomes)))
	telemetry.OrdersAutoProcessedTotal.Add(float64(deducted))

	o.logger.Debug("Batch committed", "account_id", account.ID, "batch", batchNo, "orders", len(outcomes), "deducted", deducted)
	o.publish(ctx, outcomes)
}

// saveOrder resolves, normalizes, upserts and reconciles one order
func (o *Orchestrator) saveOrder(ctx context.Context, tx storage.Tx, account *storage.MerchantAccount, raw platform.RawOrder, products []matcher.Product, idx int) (orderOutcome, error) {
	label := o.resolver.Resolve(raw)

	order, err := platform.ToExternalOrder(raw, account.ID, account.UserID, label)
	if err != nil {
		return orderOutcome{}, err
	}

	var out orderOutcome
	err = tx.Savepoint(ctx, fmt.Sprintf("order_%d", idx), func() error {
		prev, err := tx.UpsertOrder(ctx, order)
		if err != nil {
			return err
		}

		before := ""
		if prev != nil {
			before = prev.Status
		}

		rec, err := o.reconciler.Reconcile(ctx, tx, order, products, before, order.Status)
		if err != nil {
			return err
		}
		out = orderOutcome{order: order, created: prev == nil, reconcile: rec}
		return nil
	})
	return out, err
}

// SyncAll syncs every active, connected account in turn. One account's
// failure is recorded in its entry and never stops the others. progress may
// be nil.
func (o *Orchestrator) SyncAll(ctx context.Context, progress ProgressFunc) ([]AccountResult, error) {
	if progress == nil {
		progress = func(ProgressUpdate) {}
	}

	accounts, err := o.repo.ListActiveAccounts(ctx)
	if err != nil {
		return nil, &errs.PersistenceError{Op: "list accounts", Err: err}
	}

	connected := make([]*storage.MerchantAccount, 0, len(accounts))
	for i := range accounts {
		if accounts[i].Status != storage.AccountConnected {
			o.logger.Debug("Skipping disconnected account", "account_id", accounts[i].ID)
			continue
		}
		connected = append(connected, &accounts[i])
	}

	update := ProgressUpdate{Phase: "syncing_accounts", TotalAccounts: len(connected)}
	progress(update)

	results := make([]AccountResult, 0, len(connected))
	for _, account := range connected {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := o.SyncAccount(ctx, account)
		entry := AccountResult{AccountID: account.ID, Name: account.Name, Result: res}
		if err != nil {
			o.logger.Error("Account sync failed", "account_id", account.ID, "error", err)
			entry.Error = err.Error()
			update.FailedAccounts++
		}
		results = append(results, entry)

		update.CompletedAccounts++
		progress(update)
	}
	return results, nil
}

// ProcessResult is the outcome of a manual processing request
type ProcessResult struct {
	Order  *storage.ExternalOrder `json:"order"`
	Result ReconcileResult        `json:"result"`
}

// ProcessOrder deducts stock for one stored order on request. An order that
// is already processed is refused unless reprocess is set, in which case its
// flag is cleared and the deduction runs again in the same transaction.
func (o *Orchestrator) ProcessOrder(ctx context.Context, orderID int64, reprocess bool) (*ProcessResult, error) {
	products, err := o.loadProducts(ctx)
	if err != nil {
		return nil, err
	}

	var (
		order *storage.ExternalOrder
		rec   ReconcileResult
	)
	err = o.repo.InTx(ctx, func(tx storage.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		if !status.IsEligible(order.Status) {
			return &errs.ValidationError{
				Field:   "status",
				Message: fmt.Sprintf("status %q does not allow stock deduction", order.Status),
			}
		}

		if order.Processed {
			if !reprocess {
				return &errs.ConflictError{Message: fmt.Sprintf("order %d already processed", orderID)}
			}
			if err := tx.ResetProcessed(ctx, orderID); err != nil {
				return err
			}
			order.Processed = false
			order.ProcessedAt = nil
			o.logger.Info("Reprocessing order", "order_id", orderID)
		}

		rec, err = o.reconciler.Reconcile(ctx, tx, order, products, order.Status, order.Status)
		if err != nil {
			return err
		}
		if rec.AwaitingItems {
			return &errs.ValidationError{
				Field:   "items",
				Message: fmt.Sprintf("order %d has no line items yet, sync it again before processing", orderID),
			}
		}
		if !rec.Deducted {
			return &errs.ConflictError{Message: fmt.Sprintf("order %d processed concurrently", orderID)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.publishStock(ctx, orderOutcome{order: order, reconcile: rec})
	return &ProcessResult{Order: order, Result: rec}, nil
}

// ListVerified returns the account's orders in an eligible status that have
// not been processed yet
func (o *Orchestrator) ListVerified(ctx context.Context, accountID int64) ([]storage.ExternalOrder, error) {
	return o.repo.ListEligibleUnprocessed(ctx, accountID, status.EligibleLabels())
}
