package dto

import (
	"time"

	"github.com/eshaffer321/ordersync-backend/internal/application/service"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a healthy response stamped with the current time.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// OrderListResponse is a page of stored orders.
type OrderListResponse struct {
	Orders     []storage.ExternalOrder `json:"orders"`
	TotalCount int                     `json:"total_count"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
}

// OrderDetailResponse is one order with the movements it produced.
type OrderDetailResponse struct {
	Order     *storage.ExternalOrder      `json:"order"`
	Movements []storage.InventoryMovement `json:"movements"`
}

// VerifiedOrdersResponse lists orders waiting for a stock deduction.
type VerifiedOrdersResponse struct {
	Success bool                    `json:"success"`
	Orders  []storage.ExternalOrder `json:"orders"`
	Count   int                     `json:"count"`
}

// SyncRunListResponse lists sync runs.
type SyncRunListResponse struct {
	Runs  []storage.SyncRun `json:"runs"`
	Count int               `json:"count"`
}

// SyncRunDetailResponse is one run with its platform call audit.
type SyncRunDetailResponse struct {
	Run      *storage.SyncRun  `json:"run"`
	APICalls []storage.APICall `json:"api_calls"`
}

// ConnectResponse carries the URL the user must visit to authorize an account.
type ConnectResponse struct {
	Success          bool   `json:"success"`
	AuthorizationURL string `json:"authorization_url"`
}

// CallbackResponse confirms a completed authorization.
type CallbackResponse struct {
	Success   bool   `json:"success"`
	AccountID int64  `json:"account_id"`
	Status    string `json:"status"`
}

// ImportProductsResponse wraps a product import.
type ImportProductsResponse struct {
	Success bool                  `json:"success"`
	Result  *service.ImportResult `json:"result"`
}

// MovementsResponse lists a product's ledger.
type MovementsResponse struct {
	ProductID int64                       `json:"product_id"`
	Movements []storage.InventoryMovement `json:"movements"`
	Count     int                         `json:"count"`
}
