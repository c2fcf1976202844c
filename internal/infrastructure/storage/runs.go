package storage

import (
	"context"
	"fmt"
	"time"
)

const syncRunColumns = `id, account_id, started_at, completed_at, orders_found, orders_imported,
	orders_auto_processed, orders_errored, orders_awaiting_items, status, warning`

// StartSyncRun records the start of a sync run and returns the run ID
func (s *Storage) StartSyncRun(ctx context.Context, accountID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
	INSERT INTO sync_runs (account_id, started_at, status) VALUES (?, ?, ?)
	RETURNING id`), accountID, time.Now().UTC(), RunRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start sync run: %w", err)
	}
	return id, nil
}

// CompleteSyncRun records the completion of a sync run
func (s *Storage) CompleteSyncRun(ctx context.Context, runID int64, r SyncRunResult) error {
	if r.Status == "" {
		r.Status = RunCompleted
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
	UPDATE sync_runs
	SET completed_at = ?, orders_found = ?, orders_imported = ?, orders_auto_processed = ?,
	    orders_errored = ?, orders_awaiting_items = ?, status = ?, warning = ?
	WHERE id = ?`),
		time.Now().UTC(), r.OrdersFound, r.OrdersImported, r.OrdersAutoProcessed,
		r.OrdersErrored, r.OrdersAwaitingItems, r.Status, r.Warning, runID)
	if err != nil {
		return fmt.Errorf("failed to complete sync run %d: %w", runID, err)
	}
	return expectRow(res, "sync run", runID)
}

// ListSyncRuns returns recent sync runs, newest first
func (s *Storage) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []SyncRun{}
	err := s.db.SelectContext(ctx, &runs, s.db.Rebind(
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}

// GetSyncRun retrieves a sync run by ID
func (s *Storage) GetSyncRun(ctx context.Context, runID int64) (*SyncRun, error) {
	var run SyncRun
	err := s.db.GetContext(ctx, &run, s.db.Rebind(`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`), runID)
	if err != nil {
		return nil, notFound(err, "sync run", runID)
	}
	return &run, nil
}

// LogAPICall records one platform request
func (s *Storage) LogAPICall(ctx context.Context, call *APICall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
	INSERT INTO api_calls (run_id, account_id, method, endpoint, status_code, error, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`),
		call.RunID, call.AccountID, call.Method, call.Endpoint, call.StatusCode, call.Error,
		call.DurationMs, call.CreatedAt.UTC(),
	).Scan(&call.ID)
	if err != nil {
		return fmt.Errorf("failed to log api call: %w", err)
	}
	return nil
}

// GetAPICallsByRunID retrieves all API calls for a specific sync run
func (s *Storage) GetAPICallsByRunID(ctx context.Context, runID int64) ([]APICall, error) {
	calls := []APICall{}
	err := s.db.SelectContext(ctx, &calls, s.db.Rebind(`
	SELECT id, run_id, account_id, method, endpoint, status_code, error, duration_ms, created_at
	FROM api_calls WHERE run_id = ? ORDER BY id`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api calls: %w", err)
	}
	return calls, nil
}
