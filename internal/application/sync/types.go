package sync

import (
	"context"
	"time"

	"github.com/eshaffer321/ordersync-backend/internal/adapters/platform"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// Options holds sync configuration
type Options struct {
	BatchSize    int           // orders per persistence transaction
	BatchTimeout time.Duration // deadline for one batch transaction
	RecentLimit  int           // orders re-read and returned after a sync
	EnrichItems  bool          // fetch detail for listing entries without items
	LockTTL      time.Duration // bound on a crashed holder's account lock
}

// OptionsFromConfig builds Options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:    cfg.Sync.BatchSize,
		BatchTimeout: cfg.Sync.BatchTimeout.Std(),
		RecentLimit:  cfg.Sync.RecentLimit,
		EnrichItems:  cfg.Platform.EnrichItems,
		LockTTL:      cfg.Sync.LockTTL.Std(),
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 15 * time.Second
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = 100
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Minute
	}
	return o
}

// SyncResult holds the outcome of syncing one account
type SyncResult struct {
	RunID         int64                   `json:"run_id,omitempty"`
	AccountID     int64                   `json:"account_id"`
	Fetched       int                     `json:"fetched"`
	Imported      int                     `json:"imported"`
	AutoProcessed int                     `json:"auto_processed"`
	AwaitingItems int                     `json:"awaiting_items"`
	Errors        []string                `json:"errors"`
	Warning       string                  `json:"warning,omitempty"`
	Orders        []storage.ExternalOrder `json:"orders"`
}

// AccountResult is one account's entry in a SyncAll pass
type AccountResult struct {
	AccountID int64       `json:"account_id"`
	Name      string      `json:"name"`
	Result    *SyncResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ProgressUpdate reports how far a multi-account pass has come
type ProgressUpdate struct {
	Phase             string
	TotalAccounts     int
	CompletedAccounts int
	FailedAccounts    int
}

// ProgressFunc receives progress updates during SyncAll
type ProgressFunc func(ProgressUpdate)

// TokenProvider yields a usable access token for an account
type TokenProvider interface {
	EnsureValidToken(ctx context.Context, account *storage.MerchantAccount) (string, error)
}

// OrderSource lists orders on the platform
type OrderSource interface {
	FetchAllOrders(ctx context.Context, account *storage.MerchantAccount, accessToken string) (platform.FetchResult, error)
	FetchOrderDetail(ctx context.Context, account *storage.MerchantAccount, orderID, accessToken string) (platform.DetailResult, error)
}
