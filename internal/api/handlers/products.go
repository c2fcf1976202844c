package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/ordersync-backend/internal/api/dto"
	"github.com/eshaffer321/ordersync-backend/internal/application/service"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// ProductsHandler handles catalog import and stock queries.
type ProductsHandler struct {
	*Base
	catalog *service.CatalogService
}

// NewProductsHandler creates a new products handler.
func NewProductsHandler(catalog *service.CatalogService, logger *slog.Logger) *ProductsHandler {
	return &ProductsHandler{
		Base:    NewBase(nil, logger),
		catalog: catalog,
	}
}

// Import handles POST /api/accounts/:accountId/products/import.
func (h *ProductsHandler) Import(c *gin.Context) {
	accountID, ok := h.ParseIDParam(c, "accountId")
	if !ok {
		return
	}

	result, err := h.catalog.ImportProducts(c.Request.Context(), accountID)
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.ImportProductsResponse{Success: true, Result: result})
}

// Stock handles GET /api/products/:productId/stock.
func (h *ProductsHandler) Stock(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	view, err := h.catalog.Stock(c.Request.Context(), productID)
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusOK, view)
}

// Movements handles GET /api/products/:productId/movements.
func (h *ProductsHandler) Movements(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	movements, err := h.catalog.Movements(c.Request.Context(), productID)
	if err != nil {
		h.WriteErr(c, err)
		return
	}
	if movements == nil {
		movements = []storage.InventoryMovement{}
	}

	h.WriteJSON(c, http.StatusOK, dto.MovementsResponse{ProductID: productID, Movements: movements, Count: len(movements)})
}
