package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/ordersync-backend/internal/api/dto"
	"github.com/eshaffer321/ordersync-backend/internal/application/service"
)

// SyncHandler handles sync-related HTTP requests.
type SyncHandler struct {
	*Base
	syncService *service.SyncService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncService *service.SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		Base:        NewBase(nil, logger),
		syncService: syncService,
	}
}

// SyncAccount handles POST /api/sync/:accountId - syncs one account and
// waits for the result.
func (h *SyncHandler) SyncAccount(c *gin.Context) {
	accountID, ok := h.ParseIDParam(c, "accountId")
	if !ok {
		return
	}

	result, err := h.syncService.SyncAccount(c.Request.Context(), accountID)
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.SyncAccountResponse{Success: true, Result: result})
}

// StartSync handles POST /api/sync - starts a background sync job.
// The body is optional; without one every connected account is synced.
func (h *SyncHandler) StartSync(c *gin.Context) {
	var req dto.StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	jobID, err := h.syncService.StartSync(c.Request.Context(), service.SyncRequest{AccountID: req.AccountID})
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	job, err := h.syncService.GetSyncJob(jobID)
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusAccepted, dto.StartSyncResponse{
		JobID:  jobID,
		Scope:  job.Scope,
		Status: string(job.Status),
	})
}

// ListJobs handles GET /api/sync/jobs - lists jobs, ?active=true for
// running ones only.
func (h *SyncHandler) ListJobs(c *gin.Context) {
	jobs := h.syncService.ListAllSyncJobs()
	if ParseBoolQuery(c, "active", false) {
		jobs = h.syncService.ListActiveSyncJobs()
	}

	response := dto.SyncJobsResponse{
		Jobs:  make([]dto.SyncJobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toSyncJobResponse(job))
	}

	h.WriteJSON(c, http.StatusOK, response)
}

// GetJob handles GET /api/sync/jobs/:jobId - returns a job's status.
func (h *SyncHandler) GetJob(c *gin.Context) {
	job, err := h.syncService.GetSyncJob(c.Param("jobId"))
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusOK, toSyncJobResponse(job))
}

// CancelJob handles DELETE /api/sync/jobs/:jobId - cancels a running job.
func (h *SyncHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := h.syncService.CancelSync(jobID); err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.MessageResponse{Success: true, Message: "sync job cancelled"})
}

// toSyncJobResponse converts a service job to an API response.
func toSyncJobResponse(job *service.SyncJob) dto.SyncJobResponse {
	response := dto.SyncJobResponse{
		JobID:     job.ID,
		Scope:     job.Scope,
		Status:    string(job.Status),
		StartedAt: job.StartedAt.Format(time.RFC3339),
		Progress: dto.SyncProgressResponse{
			CurrentPhase:      job.Progress.CurrentPhase,
			TotalAccounts:     job.Progress.TotalAccounts,
			CompletedAccounts: job.Progress.CompletedAccounts,
			FailedAccounts:    job.Progress.FailedAccounts,
			LastUpdate:        job.Progress.LastUpdate.Format(time.RFC3339),
		},
		Results: job.Results,
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format(time.RFC3339)
		response.CompletedAt = &completed
	}
	if job.Error != nil {
		msg := job.Error.Error()
		response.Error = &msg
	}
	return response
}
