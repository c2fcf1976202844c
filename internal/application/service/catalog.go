package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/ordersync-backend/internal/adapters/platform"
	appsync "github.com/eshaffer321/ordersync-backend/internal/application/sync"
	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// ProductSource lists the platform catalog of an account
type ProductSource interface {
	FetchProducts(ctx context.Context, account *storage.MerchantAccount, accessToken string) (platform.ProductResult, error)
}

// ImportResult counts what a product import changed
type ImportResult struct {
	Fetched int      `json:"fetched"`
	Created int      `json:"created"`
	Linked  int      `json:"linked"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
	Warning string   `json:"warning,omitempty"`
}

// StockView is a product with its derived stock
type StockView struct {
	Product *storage.Product `json:"product"`
	Stock   int              `json:"stock"`
}

// CatalogService imports platform products and answers stock queries
type CatalogService struct {
	repo   storage.Repository
	tokens appsync.TokenProvider
	source ProductSource
	logger *slog.Logger
}

// NewCatalogService creates a catalog service
func NewCatalogService(repo storage.Repository, tokens appsync.TokenProvider, source ProductSource, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{repo: repo, tokens: tokens, source: source, logger: logger}
}

// ImportProducts pulls the account's platform catalog into local products.
// For each platform product: an existing mapping updates the mapped
// product, a local product with the same SKU gets linked, and anything
// else is created and linked. A failed product is recorded and skipped.
func (s *CatalogService) ImportProducts(ctx context.Context, accountID int64) (*ImportResult, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.EnsureValidToken(ctx, account)
	if err != nil {
		return nil, err
	}

	fetched, err := s.source.FetchProducts(ctx, account, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	result := &ImportResult{Fetched: len(fetched.Products), Errors: []string{}, Warning: fetched.Warning}
	for _, raw := range fetched.Products {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if raw.ID() == "" || raw.SKU() == "" {
			result.Skipped++
			continue
		}
		if err := s.importOne(ctx, account.ID, raw, result); err != nil {
			s.logger.Warn("product import failed", "account_id", account.ID, "external_id", raw.ID(), "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("product %s: %v", raw.ID(), err))
		}
	}

	s.logger.Info("products imported",
		"account_id", account.ID,
		"fetched", result.Fetched,
		"created", result.Created,
		"linked", result.Linked,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *CatalogService) importOne(ctx context.Context, accountID int64, raw platform.RawProduct, result *ImportResult) error {
	mapping, err := s.repo.GetMapping(ctx, accountID, raw.ID())
	switch {
	case err == nil:
		product, err := s.repo.GetProduct(ctx, mapping.ProductID)
		if err != nil {
			return err
		}
		applyRaw(product, raw)
		if err := s.repo.UpdateProduct(ctx, product); err != nil {
			return err
		}
		result.Updated++
		return nil
	case !storage.IsNotFound(err):
		return err
	}

	product, err := s.repo.GetProductBySKU(ctx, raw.SKU())
	switch {
	case err == nil:
		result.Linked++
	case storage.IsNotFound(err):
		product = &storage.Product{IsActive: true}
		applyRaw(product, raw)
		if err := s.repo.CreateProduct(ctx, product); err != nil {
			return err
		}
		result.Created++
	default:
		return err
	}

	return s.repo.SaveMapping(ctx, &storage.ProductMapping{
		ProductID:         product.ID,
		AccountID:         accountID,
		ExternalProductID: raw.ID(),
	})
}

// applyRaw copies platform fields onto a local product, keeping local
// values the platform left empty
func applyRaw(p *storage.Product, raw platform.RawProduct) {
	p.SKU = raw.SKU()
	if name := raw.Name(); name != "" {
		p.Name = name
	}
	if ean := raw.EAN(); ean != "" {
		p.EAN = ean
	}
	if price := raw.Price(); !price.IsZero() {
		p.SalePrice = price
	}
}

// Stock returns a product and its stock derived from the movement ledger
func (s *CatalogService) Stock(ctx context.Context, productID int64) (*StockView, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	stock, err := s.repo.GetStock(ctx, productID)
	if err != nil {
		return nil, &errs.PersistenceError{Op: "derive stock", Err: err}
	}
	return &StockView{Product: product, Stock: stock}, nil
}

// Movements returns a product's ledger, oldest first
func (s *CatalogService) Movements(ctx context.Context, productID int64) ([]storage.InventoryMovement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, productID)
}
