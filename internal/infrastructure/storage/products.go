package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
)

const productColumns = `id, sku, internal_code, ean, name, sale_price, is_active, created_at, updated_at`

// CreateProduct inserts a product and sets its ID
func (s *Storage) CreateProduct(ctx context.Context, p *Product) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
	INSERT INTO products (sku, internal_code, ean, name, sale_price, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`),
		p.SKU, p.InternalCode, p.EAN, p.Name, p.SalePrice, p.IsActive, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create product %s: %w", p.SKU, err)
	}
	return nil
}

// UpdateProduct overwrites the mutable product fields
func (s *Storage) UpdateProduct(ctx context.Context, p *Product) error {
	p.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
	UPDATE products SET sku = ?, internal_code = ?, ean = ?, name = ?, sale_price = ?, is_active = ?, updated_at = ?
	WHERE id = ?`),
		p.SKU, p.InternalCode, p.EAN, p.Name, p.SalePrice, p.IsActive, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", p.ID, err)
	}
	return expectRow(res, "product", p.ID)
}

// GetProduct retrieves a product by ID
func (s *Storage) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

// GetProductBySKU retrieves a product by SKU
func (s *Storage) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	var p Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE sku = ?`), sku)
	if err != nil {
		return nil, notFound(err, "product", sku)
	}
	return &p, nil
}

// ListActiveProducts returns the active catalog ordered by id
func (s *Storage) ListActiveProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := s.db.SelectContext(ctx, &products, s.db.Rebind(
		`SELECT `+productColumns+` FROM products WHERE is_active = ? ORDER BY id`), true)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetMapping finds the local product linked to a platform product
func (s *Storage) GetMapping(ctx context.Context, accountID int64, externalProductID string) (*ProductMapping, error) {
	var m ProductMapping
	err := s.db.GetContext(ctx, &m, s.db.Rebind(`
	SELECT id, product_id, account_id, external_product_id, created_at
	FROM product_mappings WHERE account_id = ? AND external_product_id = ?`),
		accountID, externalProductID)
	if err != nil {
		return nil, notFound(err, "product mapping", externalProductID)
	}
	return &m, nil
}

// SaveMapping links a platform product to a local product, replacing any
// previous link for the same (account, external product).
func (s *Storage) SaveMapping(ctx context.Context, m *ProductMapping) error {
	m.CreatedAt = time.Now().UTC()

	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
	INSERT INTO product_mappings (product_id, account_id, external_product_id, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (account_id, external_product_id) DO UPDATE SET product_id = excluded.product_id
	RETURNING id`),
		m.ProductID, m.AccountID, m.ExternalProductID, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to save mapping %s: %w", m.ExternalProductID, err)
	}
	return nil
}

// expectRow turns a zero-row update into a NotFoundError
func expectRow(res sql.Result, resource string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &errs.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}

// IsNotFound reports whether err is a missing-row error
func IsNotFound(err error) bool {
	var nf *errs.NotFoundError
	return errors.As(err, &nf)
}
