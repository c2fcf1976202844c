package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ordersync-backend/internal/domain/inventory"
)

// Account connection states
const (
	AccountDisconnected = "disconnected"
	AccountConnected    = "connected"
)

// MerchantAccount is one platform credential set owned by a user
type MerchantAccount struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Name           string     `db:"name" json:"name"`
	ClientID       string     `db:"client_id" json:"-"`
	ClientSecret   string     `db:"client_secret" json:"-"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	Status         string     `db:"status" json:"status"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	LastSyncAt     *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Product is a local catalog entry
type Product struct {
	ID           int64           `db:"id" json:"id"`
	SKU          string          `db:"sku" json:"sku"`
	InternalCode string          `db:"internal_code" json:"internal_code,omitempty"`
	EAN          string          `db:"ean" json:"ean,omitempty"`
	Name         string          `db:"name" json:"name"`
	SalePrice    decimal.Decimal `db:"sale_price" json:"sale_price"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductMapping links a platform product to a local product per account
type ProductMapping struct {
	ID                int64     `db:"id" json:"id"`
	ProductID         int64     `db:"product_id" json:"product_id"`
	AccountID         int64     `db:"account_id" json:"account_id"`
	ExternalProductID string    `db:"external_product_id" json:"external_product_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Movement sync states
const (
	MovementSynced  = "synced"
	MovementPending = "pending"
)

// InventoryMovement is an append-only stock ledger entry
type InventoryMovement struct {
	ID         int64                  `db:"id" json:"id"`
	ProductID  int64                  `db:"product_id" json:"product_id"`
	Type       inventory.MovementType `db:"type" json:"type"`
	Quantity   int                    `db:"quantity" json:"quantity"`
	Reason     string                 `db:"reason" json:"reason"`
	UserID     int64                  `db:"user_id" json:"user_id"`
	SyncStatus string                 `db:"sync_status" json:"sync_status"`
	OrderID    *int64                 `db:"order_id" json:"order_id,omitempty"`
	CreatedAt  time.Time              `db:"created_at" json:"created_at"`
}

// ToDomain strips the ledger row down to what stock derivation needs
func (m InventoryMovement) ToDomain() inventory.Movement {
	return inventory.Movement{
		ID:        m.ID,
		Type:      m.Type,
		Quantity:  m.Quantity,
		CreatedAt: m.CreatedAt,
	}
}

// OrderItem is one normalized order line
type OrderItem struct {
	ExternalProductID string          `json:"external_product_id,omitempty"`
	SKU               string          `json:"sku,omitempty"`
	EAN               string          `json:"ean,omitempty"`
	Name              string          `json:"name"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

// ExternalOrder mirrors one platform order.
// (ExternalOrderID, AccountID) is unique.
type ExternalOrder struct {
	ID                int64           `db:"id" json:"id"`
	ExternalOrderID   string          `db:"external_order_id" json:"external_order_id"`
	AccountID         int64           `db:"account_id" json:"account_id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	OrderNumber       string          `db:"order_number" json:"order_number"`
	Status            string          `db:"status" json:"status"`
	CustomerName      string          `db:"customer_name" json:"customer_name"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	ItemsJSON         string          `db:"items_json" json:"-"`
	Processed         bool            `db:"processed" json:"processed"`
	ProcessedAt       *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	PlatformCreatedAt *time.Time      `db:"platform_created_at" json:"platform_created_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`

	// Populated from ItemsJSON
	Items []OrderItem `db:"-" json:"items"`
}

// Sync run states
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// SyncRun represents a sync run record
type SyncRun struct {
	ID                  int64      `db:"id" json:"id"`
	AccountID           int64      `db:"account_id" json:"account_id"`
	StartedAt           time.Time  `db:"started_at" json:"started_at"`
	CompletedAt         *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	OrdersFound         int        `db:"orders_found" json:"orders_found"`
	OrdersImported      int        `db:"orders_imported" json:"orders_imported"`
	OrdersAutoProcessed int        `db:"orders_auto_processed" json:"orders_auto_processed"`
	OrdersErrored       int        `db:"orders_errored" json:"orders_errored"`
	OrdersAwaitingItems int        `db:"orders_awaiting_items" json:"orders_awaiting_items"`
	Status              string     `db:"status" json:"status"`
	Warning             string     `db:"warning" json:"warning,omitempty"`
}

// SyncRunResult holds the counters written when a run completes
type SyncRunResult struct {
	OrdersFound         int
	OrdersImported      int
	OrdersAutoProcessed int
	OrdersErrored       int
	OrdersAwaitingItems int
	Status              string
	Warning             string
}

// APICall is an audit row for one platform request
type APICall struct {
	ID         int64     `db:"id" json:"id"`
	RunID      *int64    `db:"run_id" json:"run_id,omitempty"`
	AccountID  int64     `db:"account_id" json:"account_id"`
	Method     string    `db:"method" json:"method"`
	Endpoint   string    `db:"endpoint" json:"endpoint"`
	StatusCode int       `db:"status_code" json:"status_code"`
	Error      string    `db:"error" json:"error,omitempty"`
	DurationMs int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
