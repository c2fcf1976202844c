package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/ordersync-backend/internal/api/dto"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// RunsHandler handles sync run-related HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo, logger),
	}
}

// List handles GET /api/runs - returns recent sync runs, newest first.
func (h *RunsHandler) List(c *gin.Context) {
	limit := ParseIntQuery(c, "limit", 20)

	runs, err := h.repo.ListSyncRuns(c.Request.Context(), limit)
	if err != nil {
		h.WriteErr(c, err)
		return
	}
	if runs == nil {
		runs = []storage.SyncRun{}
	}

	h.WriteJSON(c, http.StatusOK, dto.SyncRunListResponse{Runs: runs, Count: len(runs)})
}

// Get handles GET /api/runs/:id - returns one run with its platform calls.
func (h *RunsHandler) Get(c *gin.Context) {
	id, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	run, err := h.repo.GetSyncRun(c.Request.Context(), id)
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	calls, err := h.repo.GetAPICallsByRunID(c.Request.Context(), id)
	if err != nil {
		h.WriteErr(c, err)
		return
	}
	if calls == nil {
		calls = []storage.APICall{}
	}

	h.WriteJSON(c, http.StatusOK, dto.SyncRunDetailResponse{Run: run, APICalls: calls})
}
