package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/ordersync-backend/internal/api/dto"
	"github.com/eshaffer321/ordersync-backend/internal/application/service"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// OrdersHandler handles order-related HTTP requests.
type OrdersHandler struct {
	*Base
	syncService *service.SyncService
}

// NewOrdersHandler creates a new orders handler.
func NewOrdersHandler(repo storage.Repository, syncService *service.SyncService, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		Base:        NewBase(repo, logger),
		syncService: syncService,
	}
}

// List handles GET /api/orders - returns paginated list of orders.
func (h *OrdersHandler) List(c *gin.Context) {
	filters := storage.OrderFilters{
		Status: c.Query("status"),
		Limit:  ParseIntQuery(c, "limit", 50),
		Offset: ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid account_id"))
			return
		}
		filters.AccountID = id
	}
	if raw := c.Query("processed"); raw != "" {
		processed := ParseBoolQuery(c, "processed", false)
		filters.Processed = &processed
	}

	result, err := h.repo.ListOrders(c.Request.Context(), filters)
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	orders := result.Orders
	if orders == nil {
		orders = []storage.ExternalOrder{}
	}
	h.WriteJSON(c, http.StatusOK, dto.OrderListResponse{
		Orders:     orders,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get handles GET /api/orders/:orderId - returns an order and its movements.
func (h *OrdersHandler) Get(c *gin.Context) {
	id, ok := h.ParseIDParam(c, "orderId")
	if !ok {
		return
	}

	order, err := h.repo.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	movements, err := h.repo.ListMovementsByOrder(c.Request.Context(), id)
	if err != nil {
		h.WriteErr(c, err)
		return
	}
	if movements == nil {
		movements = []storage.InventoryMovement{}
	}

	h.WriteJSON(c, http.StatusOK, dto.OrderDetailResponse{Order: order, Movements: movements})
}

// Process handles POST /api/orders/:orderId/process - deducts stock for one
// order. ?reprocess=true deducts again for an order already processed.
func (h *OrdersHandler) Process(c *gin.Context) {
	id, ok := h.ParseIDParam(c, "orderId")
	if !ok {
		return
	}

	result, err := h.syncService.ProcessOrder(c.Request.Context(), id, ParseBoolQuery(c, "reprocess", false))
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.ProcessOrderResponse{Success: true, Result: result})
}

// Verified handles GET /api/orders/verified/:accountId - lists eligible
// orders that have not been deducted yet.
func (h *OrdersHandler) Verified(c *gin.Context) {
	accountID, ok := h.ParseIDParam(c, "accountId")
	if !ok {
		return
	}

	orders, err := h.syncService.ListVerified(c.Request.Context(), accountID)
	if err != nil {
		h.WriteErr(c, err)
		return
	}
	if orders == nil {
		orders = []storage.ExternalOrder{}
	}

	h.WriteJSON(c, http.StatusOK, dto.VerifiedOrdersResponse{Success: true, Orders: orders, Count: len(orders)})
}
