package dto

import (
	appsync "github.com/eshaffer321/ordersync-backend/internal/application/sync"
)

// StartSyncRequest is the optional request body for starting a background sync.
type StartSyncRequest struct {
	AccountID int64 `json:"account_id"` // 0 = every active, connected account
}

// StartSyncResponse is returned when a sync is started.
type StartSyncResponse struct {
	JobID  string `json:"job_id"`
	Scope  string `json:"scope"`
	Status string `json:"status"`
}

// SyncJobResponse represents a sync job's status.
type SyncJobResponse struct {
	JobID       string                  `json:"job_id"`
	Scope       string                  `json:"scope"`
	Status      string                  `json:"status"`
	StartedAt   string                  `json:"started_at"`
	CompletedAt *string                 `json:"completed_at,omitempty"`
	Progress    SyncProgressResponse    `json:"progress"`
	Results     []appsync.AccountResult `json:"results,omitempty"`
	Error       *string                 `json:"error,omitempty"`
}

// SyncProgressResponse represents real-time progress.
type SyncProgressResponse struct {
	CurrentPhase      string `json:"current_phase"`
	TotalAccounts     int    `json:"total_accounts"`
	CompletedAccounts int    `json:"completed_accounts"`
	FailedAccounts    int    `json:"failed_accounts"`
	LastUpdate        string `json:"last_update"`
}

// SyncJobsResponse lists sync jobs.
type SyncJobsResponse struct {
	Jobs  []SyncJobResponse `json:"jobs"`
	Count int               `json:"count"`
}

// SyncAccountResponse wraps a synchronous account sync.
type SyncAccountResponse struct {
	Success bool                `json:"success"`
	Result  *appsync.SyncResult `json:"result"`
}

// ProcessOrderResponse wraps a manual processing outcome.
type ProcessOrderResponse struct {
	Success bool                   `json:"success"`
	Result  *appsync.ProcessResult `json:"result"`
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
