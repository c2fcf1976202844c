package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/ordersync-backend/internal/api/dto"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// Base provides shared functionality for all handlers.
type Base struct {
	repo   storage.Repository
	logger *slog.Logger
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{repo: repo, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, body dto.ErrorResponse) {
	c.AbortWithStatusJSON(status, body)
}

// WriteErr maps err to a status and failure body. Server-side failures are
// logged since their message is not returned to the caller.
func (b *Base) WriteErr(c *gin.Context, err error) {
	status, body := dto.FromError(err)
	if status >= http.StatusInternalServerError {
		b.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	b.WriteError(c, status, body)
}

// ParseIDParam reads a positive integer path parameter. It writes a 400 and
// returns false when the value is missing or malformed.
func (b *Base) ParseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid "+name))
		return 0, false
	}
	return id, true
}

// ParseIntQuery parses an integer query parameter with a default value.
func ParseIntQuery(c *gin.Context, name string, defaultVal int) int {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolQuery parses a boolean query parameter with a default value.
func ParseBoolQuery(c *gin.Context, name string, defaultVal bool) bool {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
