package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/domain/inventory"
)

const movementColumns = `id, product_id, type, quantity, reason, user_id, sync_status, order_id, created_at`

// AddMovement appends a ledger entry outside any order transaction
func (s *Storage) AddMovement(ctx context.Context, m *InventoryMovement) error {
	return insertMovement(ctx, s.db, m)
}

func insertMovement(ctx context.Context, q queryer, m *InventoryMovement) error {
	if !m.Type.Valid() {
		return &errs.ValidationError{Field: "type", Message: fmt.Sprintf("unknown movement type %q", m.Type)}
	}
	if m.Quantity <= 0 {
		return &errs.ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.SyncStatus == "" {
		m.SyncStatus = MovementPending
	}

	err := q.QueryRowxContext(ctx, q.Rebind(`
	INSERT INTO inventory_movements (product_id, type, quantity, reason, user_id, sync_status, order_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`),
		m.ProductID, string(m.Type), m.Quantity, m.Reason, m.UserID, m.SyncStatus, m.OrderID, m.CreatedAt.UTC(),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to insert movement for product %d: %w", m.ProductID, err)
	}
	return nil
}

// ListMovements returns a product's movements oldest first
func (s *Storage) ListMovements(ctx context.Context, productID int64) ([]InventoryMovement, error) {
	var movements []InventoryMovement
	err := s.db.SelectContext(ctx, &movements, s.db.Rebind(`
	SELECT `+movementColumns+` FROM inventory_movements
	WHERE product_id = ? ORDER BY created_at, id`), productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return movements, nil
}

// ListMovementsByOrder returns the movements an order produced
func (s *Storage) ListMovementsByOrder(ctx context.Context, orderID int64) ([]InventoryMovement, error) {
	var movements []InventoryMovement
	err := s.db.SelectContext(ctx, &movements, s.db.Rebind(`
	SELECT `+movementColumns+` FROM inventory_movements
	WHERE order_id = ? ORDER BY id`), orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order movements: %w", err)
	}
	return movements, nil
}

// GetStock derives current stock by folding the product's ledger
func (s *Storage) GetStock(ctx context.Context, productID int64) (int, error) {
	movements, err := s.ListMovements(ctx, productID)
	if err != nil {
		return 0, err
	}

	domain := make([]inventory.Movement, len(movements))
	for i, m := range movements {
		domain[i] = m.ToDomain()
	}
	return inventory.DeriveStock(domain), nil
}
