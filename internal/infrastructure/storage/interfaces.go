package storage

import (
	"context"
	"time"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with fakes straightforward.
type Repository interface {
	AccountRepository
	ProductRepository
	MovementRepository
	OrderRepository
	SyncRunRepository
	APICallRepository

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise, including on panic.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the write set that must be atomic: order upserts, stock movements
// and the processed flag.
type Tx interface {
	// UpsertOrder inserts or updates by (external_order_id, account_id).
	// Status, items, totals and customer are always overwritten; processed is
	// never touched. Returns the row as it was before the write (nil if new).
	UpsertOrder(ctx context.Context, order *ExternalOrder) (*ExternalOrder, error)

	GetOrder(ctx context.Context, id int64) (*ExternalOrder, error)

	InsertMovement(ctx context.Context, m *InventoryMovement) error

	// MarkProcessed flips processed false->true. Returns false when the
	// order was already processed, in which case nothing was changed.
	MarkProcessed(ctx context.Context, orderID int64, at time.Time) (bool, error)

	// ResetProcessed clears the processed flag for an explicit re-process
	ResetProcessed(ctx context.Context, orderID int64) error

	// Savepoint runs fn so that its writes can be undone without aborting
	// the surrounding transaction.
	Savepoint(ctx context.Context, name string, fn func() error) error
}

// AccountRepository handles merchant accounts
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *MerchantAccount) error
	GetAccount(ctx context.Context, id int64) (*MerchantAccount, error)

	// ListActiveAccounts returns active accounts ordered by id
	ListActiveAccounts(ctx context.Context) ([]MerchantAccount, error)

	// UpdateTokens stores a new token set and marks the account connected
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error

	SetAccountStatus(ctx context.Context, id int64, status string) error
	TouchLastSync(ctx context.Context, id int64, at time.Time) error
}

// ProductRepository handles the local catalog and platform mappings
type ProductRepository interface {
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*Product, error)
	ListActiveProducts(ctx context.Context) ([]Product, error)

	GetMapping(ctx context.Context, accountID int64, externalProductID string) (*ProductMapping, error)
	SaveMapping(ctx context.Context, m *ProductMapping) error
}

// MovementRepository handles the stock ledger
type MovementRepository interface {
	AddMovement(ctx context.Context, m *InventoryMovement) error

	// ListMovements returns a product's movements oldest first
	ListMovements(ctx context.Context, productID int64) ([]InventoryMovement, error)

	// ListMovementsByOrder returns the movements an order produced
	ListMovementsByOrder(ctx context.Context, orderID int64) ([]InventoryMovement, error)

	// GetStock derives current stock from the ledger
	GetStock(ctx context.Context, productID int64) (int, error)
}

// OrderRepository handles external order reads
type OrderRepository interface {
	GetOrder(ctx context.Context, id int64) (*ExternalOrder, error)
	GetOrderByExternalID(ctx context.Context, accountID int64, externalOrderID string) (*ExternalOrder, error)

	// ListRecentOrders returns the newest orders of an account
	ListRecentOrders(ctx context.Context, accountID int64, limit int) ([]ExternalOrder, error)

	// ListOrders returns orders matching the given filters with pagination
	ListOrders(ctx context.Context, filters OrderFilters) (*OrderListResult, error)

	// ListEligibleUnprocessed returns unprocessed orders whose status is one
	// of labels (compared lower-cased and trimmed)
	ListEligibleUnprocessed(ctx context.Context, accountID int64, labels []string) ([]ExternalOrder, error)
}

// OrderFilters defines filters for listing orders
type OrderFilters struct {
	AccountID int64  // 0 = all accounts
	Status    string // exact canonical status (empty = all)
	Processed *bool  // nil = both
	Limit     int    // Max results (0 = default 50)
	Offset    int    // Pagination offset
}

// OrderListResult contains paginated order results
type OrderListResult struct {
	Orders     []ExternalOrder `json:"orders"`
	TotalCount int             `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}

// SyncRunRepository handles sync run tracking
type SyncRunRepository interface {
	// StartSyncRun records the start of a sync run and returns the run ID
	StartSyncRun(ctx context.Context, accountID int64) (int64, error)

	// CompleteSyncRun records the completion of a sync run
	CompleteSyncRun(ctx context.Context, runID int64, result SyncRunResult) error

	// ListSyncRuns returns recent sync runs, newest first
	ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error)

	GetSyncRun(ctx context.Context, runID int64) (*SyncRun, error)
}

// APICallRepository handles platform call auditing
type APICallRepository interface {
	LogAPICall(ctx context.Context, call *APICall) error
	GetAPICallsByRunID(ctx context.Context, runID int64) ([]APICall, error)
}
