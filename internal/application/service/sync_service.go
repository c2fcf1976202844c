package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	appsync "github.com/eshaffer321/ordersync-backend/internal/application/sync"
	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// SyncStatus represents the current state of a sync job.
type SyncStatus string

const (
	StatusPending   SyncStatus = "pending"
	StatusRunning   SyncStatus = "running"
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
	StatusCancelled SyncStatus = "cancelled"
)

// Job staleness thresholds
const (
	// DefaultJobStaleThreshold is how long a job can go without progress updates
	// before being considered stale.
	DefaultJobStaleThreshold = 30 * time.Minute

	// DefaultJobMaxDuration is the maximum time a job can run before being
	// forcefully marked as failed.
	DefaultJobMaxDuration = 2 * time.Hour
)

// Syncer is the part of the orchestrator the service drives
type Syncer interface {
	SyncAccountByID(ctx context.Context, accountID int64) (*appsync.SyncResult, error)
	SyncAll(ctx context.Context, progress appsync.ProgressFunc) ([]appsync.AccountResult, error)
	ProcessOrder(ctx context.Context, orderID int64, reprocess bool) (*appsync.ProcessResult, error)
	ListVerified(ctx context.Context, accountID int64) ([]storage.ExternalOrder, error)
}

// SyncRequest holds parameters for starting a background sync.
type SyncRequest struct {
	AccountID int64 // 0 syncs every active, connected account
}

func (r SyncRequest) scope() string {
	if r.AccountID == 0 {
		return "all"
	}
	return fmt.Sprintf("account-%d", r.AccountID)
}

// SyncProgress holds real-time progress information.
type SyncProgress struct {
	CurrentPhase      string // "pending", "initializing", "syncing_accounts", "completed", "failed", "cancelled"
	TotalAccounts     int
	CompletedAccounts int
	FailedAccounts    int
	LastUpdate        time.Time
}

// SyncJob represents a running or completed sync job.
type SyncJob struct {
	ID          string
	Scope       string
	Status      SyncStatus
	Request     SyncRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    SyncProgress
	Results     []appsync.AccountResult
	Error       error
	cancelFunc  context.CancelFunc
}

// SyncService manages sync operations: synchronous account syncs, manual
// order processing and background jobs.
type SyncService struct {
	syncer Syncer
	logger *slog.Logger

	// Job management. running maps a scope to the job currently holding it.
	jobs      map[string]*SyncJob
	running   map[string]string
	jobsMutex sync.RWMutex

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewSyncService creates a new sync service.
func NewSyncService(syncer Syncer, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		syncer:  syncer,
		logger:  logger,
		jobs:    make(map[string]*SyncJob),
		running: make(map[string]string),
	}
}

// SyncAccount runs one account sync and waits for it.
func (s *SyncService) SyncAccount(ctx context.Context, accountID int64) (*appsync.SyncResult, error) {
	return s.syncer.SyncAccountByID(ctx, accountID)
}

// ProcessOrder deducts stock for one stored order on request.
func (s *SyncService) ProcessOrder(ctx context.Context, orderID int64, reprocess bool) (*appsync.ProcessResult, error) {
	return s.syncer.ProcessOrder(ctx, orderID, reprocess)
}

// ListVerified returns an account's eligible orders still waiting for deduction.
func (s *SyncService) ListVerified(ctx context.Context, accountID int64) ([]storage.ExternalOrder, error) {
	return s.syncer.ListVerified(ctx, accountID)
}

// StartSync starts a new sync job asynchronously.
// The passed context is NOT used as the parent for the background job, so
// the job outlives the HTTP request. Use CancelSync to cancel it.
func (s *SyncService) StartSync(_ context.Context, req SyncRequest) (string, error) {
	if req.AccountID < 0 {
		return "", &errs.ValidationError{Field: "account_id", Message: "must be positive"}
	}

	jobID := uuid.NewString()
	scope := req.scope()

	s.jobsMutex.Lock()
	if holder, busy := s.running[scope]; busy {
		s.jobsMutex.Unlock()
		return "", &errs.ConflictError{Message: fmt.Sprintf("sync already running for %s (job %s)", scope, holder)}
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job := &SyncJob{
		ID:         jobID,
		Scope:      scope,
		Status:     StatusPending,
		Request:    req,
		StartedAt:  now,
		cancelFunc: cancel,
		Progress:   SyncProgress{CurrentPhase: "pending", LastUpdate: now},
	}
	s.jobs[jobID] = job
	s.running[scope] = jobID
	s.jobsMutex.Unlock()

	go s.runSyncJob(jobCtx, job)

	s.logger.Info("sync job started", "job_id", jobID, "scope", scope)
	return jobID, nil
}

// GetSyncJob retrieves a snapshot of a sync job by ID.
func (s *SyncService) GetSyncJob(jobID string) (*SyncJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, &errs.NotFoundError{Resource: "sync job", ID: jobID}
	}
	snapshot := *job
	return &snapshot, nil
}

// ListActiveSyncJobs returns all running or pending jobs.
func (s *SyncService) ListActiveSyncJobs() []*SyncJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	var active []*SyncJob
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			snapshot := *job
			active = append(active, &snapshot)
		}
	}
	return active
}

// ListAllSyncJobs returns all jobs (for debugging/monitoring).
func (s *SyncService) ListAllSyncJobs() []*SyncJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// CancelSync cancels a running sync job.
func (s *SyncService) CancelSync(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return &errs.NotFoundError{Resource: "sync job", ID: jobID}
	}

	if job.Status != StatusPending && job.Status != StatusRunning {
		return &errs.ConflictError{Message: fmt.Sprintf("job cannot be cancelled: status=%s", job.Status)}
	}

	job.cancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	job.Progress.CurrentPhase = "cancelled"
	job.Progress.LastUpdate = now
	s.releaseScopeLocked(job)

	s.logger.Info("sync job cancelled", "job_id", jobID)
	return nil
}

// runSyncJob executes the sync job in a background goroutine.
func (s *SyncService) runSyncJob(ctx context.Context, job *SyncJob) {
	s.updateJobStatus(job.ID, StatusRunning, SyncProgress{
		CurrentPhase: "initializing",
		LastUpdate:   time.Now(),
	})

	var (
		results []appsync.AccountResult
		err     error
	)
	if job.Request.AccountID != 0 {
		s.updateJobProgress(job.ID, appsync.ProgressUpdate{Phase: "syncing_accounts", TotalAccounts: 1})

		var res *appsync.SyncResult
		res, err = s.syncer.SyncAccountByID(ctx, job.Request.AccountID)
		if err == nil {
			results = []appsync.AccountResult{{AccountID: job.Request.AccountID, Result: res}}
			s.updateJobProgress(job.ID, appsync.ProgressUpdate{Phase: "syncing_accounts", TotalAccounts: 1, CompletedAccounts: 1})
		}
	} else {
		results, err = s.syncer.SyncAll(ctx, func(update appsync.ProgressUpdate) {
			s.updateJobProgress(job.ID, update)
		})
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Already marked as cancelled in CancelSync or as stale
			return
		}
		s.failJob(job.ID, err)
		return
	}

	s.completeJob(job.ID, results)
}

// updateJobStatus updates a job's status and progress.
func (s *SyncService) updateJobStatus(jobID string, status SyncStatus, progress SyncProgress) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists && job.Status == StatusPending {
		job.Status = status
		job.Progress = progress
	}
}

// updateJobProgress updates job progress from orchestrator callback.
func (s *SyncService) updateJobProgress(jobID string, update appsync.ProgressUpdate) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists && job.Status == StatusRunning {
		job.Progress.CurrentPhase = update.Phase
		job.Progress.TotalAccounts = update.TotalAccounts
		job.Progress.CompletedAccounts = update.CompletedAccounts
		job.Progress.FailedAccounts = update.FailedAccounts
		job.Progress.LastUpdate = time.Now()
	}
}

// completeJob marks a job as completed with results.
func (s *SyncService) completeJob(jobID string, results []appsync.AccountResult) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != StatusRunning {
		return
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Results = results
	job.Progress.CurrentPhase = "completed"
	job.Progress.LastUpdate = now
	s.releaseScopeLocked(job)

	s.logger.Info("sync job completed",
		"job_id", jobID,
		"accounts", len(results),
		"failed", job.Progress.FailedAccounts,
	)
}

// failJob marks a job as failed with an error.
func (s *SyncService) failJob(jobID string, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != StatusRunning {
		return
	}

	now := time.Now()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Error = err
	job.Progress.CurrentPhase = "failed"
	job.Progress.LastUpdate = now
	s.releaseScopeLocked(job)

	s.logger.Error("sync job failed", "job_id", jobID, "error", err)
}

// releaseScopeLocked frees the job's scope if the job still holds it.
// Callers hold jobsMutex.
func (s *SyncService) releaseScopeLocked(job *SyncJob) {
	if s.running[job.Scope] == job.ID {
		delete(s.running, job.Scope)
	}
}

// CleanupOldJobs removes completed jobs older than the specified duration.
func (s *SyncService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, job := range s.jobs {
		if job.Status == StatusCompleted || job.Status == StatusFailed || job.Status == StatusCancelled {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old sync jobs", "removed", removed)
	}
	return removed
}

// MarkStaleJobsAsFailed finds jobs that appear to be stuck and marks them as failed.
// A job is considered stale if it has been running longer than maxDuration,
// or its Progress.LastUpdate is older than staleThreshold.
func (s *SyncService) MarkStaleJobsAsFailed(staleThreshold, maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	marked := 0

	for id, job := range s.jobs {
		if job.Status != StatusRunning && job.Status != StatusPending {
			continue
		}

		reason := ""
		switch {
		case now.Sub(job.StartedAt) > maxDuration:
			reason = fmt.Sprintf("exceeded max duration of %v (started %v ago)", maxDuration, now.Sub(job.StartedAt).Round(time.Second))
		case now.Sub(job.Progress.LastUpdate) > staleThreshold:
			reason = fmt.Sprintf("no progress update for %v (threshold: %v)", now.Sub(job.Progress.LastUpdate).Round(time.Second), staleThreshold)
		default:
			continue
		}

		if job.cancelFunc != nil {
			job.cancelFunc()
		}

		lastUpdate := job.Progress.LastUpdate
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = fmt.Errorf("job marked as stale: %s", reason)
		job.Progress.CurrentPhase = "failed"
		job.Progress.LastUpdate = now
		s.releaseScopeLocked(job)

		s.logger.Warn("marked stale job as failed",
			"job_id", id,
			"scope", job.Scope,
			"reason", reason,
			"started_at", job.StartedAt,
			"last_update", lastUpdate,
		)
		marked++
	}

	return marked
}

// IsJobStale checks if a specific job is considered stale.
func (s *SyncService) IsJobStale(jobID string, staleThreshold, maxDuration time.Duration) bool {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false
	}
	if job.Status != StatusRunning && job.Status != StatusPending {
		return false
	}

	now := time.Now()
	return now.Sub(job.StartedAt) > maxDuration || now.Sub(job.Progress.LastUpdate) > staleThreshold
}

// StartBackgroundCleanup starts a goroutine that periodically marks stale
// jobs as failed and drops completed jobs older than a day.
// Call StopBackgroundCleanup to stop it.
func (s *SyncService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		s.logger.Info("background job cleanup started",
			"check_interval", checkInterval,
			"stale_threshold", DefaultJobStaleThreshold,
			"max_duration", DefaultJobMaxDuration,
		)

		for {
			select {
			case <-s.cleanupStop:
				s.logger.Info("background job cleanup stopped")
				return
			case <-ticker.C:
				if marked := s.MarkStaleJobsAsFailed(DefaultJobStaleThreshold, DefaultJobMaxDuration); marked > 0 {
					s.logger.Info("marked stale jobs as failed", "count", marked)
				}
				if cleaned := s.CleanupOldJobs(24 * time.Hour); cleaned > 0 {
					s.logger.Debug("cleaned up old jobs", "count", cleaned)
				}
			}
		}
	}()
}

// StopBackgroundCleanup stops the background cleanup goroutine.
// This method blocks until the cleanup goroutine has fully stopped.
func (s *SyncService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}

	close(s.cleanupStop)
	<-s.cleanupDone
	s.cleanupStop = nil
}
