package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, external_order_id, account_id, user_id, order_number, status, customer_name,
	total_amount, items_json, processed, processed_at, platform_created_at, created_at, updated_at`

func upsertOrder(ctx context.Context, q queryer, o *ExternalOrder) (*ExternalOrder, error) {
	prev, err := getOrderByExternalID(ctx, q, o.AccountID, o.ExternalOrderID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load order %s: %w", o.ExternalOrderID, err)
	}

	items := o.Items
	if items == nil {
		items = []OrderItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode items of order %s: %w", o.ExternalOrderID, err)
	}
	o.ItemsJSON = string(itemsJSON)

	now := time.Now().UTC()
	query := q.Rebind(`
	INSERT INTO external_orders
	(external_order_id, account_id, user_id, order_number, status, customer_name,
	 total_amount, items_json, processed, platform_created_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (external_order_id, account_id) DO UPDATE SET
		order_number = excluded.order_number,
		status = excluded.status,
		customer_name = excluded.customer_name,
		total_amount = excluded.total_amount,
		items_json = excluded.items_json,
		platform_created_at = excluded.platform_created_at,
		updated_at = excluded.updated_at
	RETURNING id`)

	err = q.QueryRowxContext(ctx, query,
		o.ExternalOrderID, o.AccountID, o.UserID, o.OrderNumber, o.Status, o.CustomerName,
		o.TotalAmount, o.ItemsJSON, false, utcPtr(o.PlatformCreatedAt), now, now,
	).Scan(&o.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert order %s: %w", o.ExternalOrderID, err)
	}

	o.UpdatedAt = now
	if prev == nil {
		o.CreatedAt = now
		o.Processed = false
		o.ProcessedAt = nil
	} else {
		o.CreatedAt = prev.CreatedAt
		o.Processed = prev.Processed
		o.ProcessedAt = prev.ProcessedAt
	}

	return prev, nil
}

func getOrder(ctx context.Context, q queryer, id int64) (*ExternalOrder, error) {
	var o ExternalOrder
	if err := q.GetContext(ctx, &o, q.Rebind(`SELECT `+orderColumns+` FROM external_orders WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "order", id)
	}
	return &o, decodeItems(&o)
}

// getOrderByExternalID returns sql.ErrNoRows unchanged when missing
func getOrderByExternalID(ctx context.Context, q queryer, accountID int64, externalID string) (*ExternalOrder, error) {
	var o ExternalOrder
	err := q.GetContext(ctx, &o, q.Rebind(`
	SELECT `+orderColumns+` FROM external_orders WHERE account_id = ? AND external_order_id = ?`),
		accountID, externalID)
	if err != nil {
		return nil, err
	}
	return &o, decodeItems(&o)
}

func decodeItems(o *ExternalOrder) error {
	o.Items = []OrderItem{}
	if o.ItemsJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(o.ItemsJSON), &o.Items); err != nil {
		return fmt.Errorf("failed to decode items of order %d: %w", o.ID, err)
	}
	return nil
}

func decodeAll(orders []ExternalOrder) error {
	for i := range orders {
		if err := decodeItems(&orders[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetOrder retrieves an order by local ID
func (s *Storage) GetOrder(ctx context.Context, id int64) (*ExternalOrder, error) {
	return getOrder(ctx, s.db, id)
}

// GetOrderByExternalID retrieves an order by its platform ID within an account
func (s *Storage) GetOrderByExternalID(ctx context.Context, accountID int64, externalOrderID string) (*ExternalOrder, error) {
	o, err := getOrderByExternalID(ctx, s.db, accountID, externalOrderID)
	if err != nil {
		return nil, notFound(err, "order", externalOrderID)
	}
	return o, nil
}

// ListRecentOrders returns the newest orders of an account
func (s *Storage) ListRecentOrders(ctx context.Context, accountID int64, limit int) ([]ExternalOrder, error) {
	if limit <= 0 {
		limit = 100
	}

	orders := []ExternalOrder{}
	err := s.db.SelectContext(ctx, &orders, s.db.Rebind(`
	SELECT `+orderColumns+` FROM external_orders
	WHERE account_id = ?
	ORDER BY COALESCE(platform_created_at, created_at) DESC, id DESC
	LIMIT ?`), accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}
	return orders, decodeAll(orders)
}

// ListOrders returns orders matching the given filters with pagination
func (s *Storage) ListOrders(ctx context.Context, filters OrderFilters) (*OrderListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	where := " WHERE 1=1"
	var args []interface{}
	if filters.AccountID != 0 {
		where += " AND account_id = ?"
		args = append(args, filters.AccountID)
	}
	if filters.Status != "" {
		where += " AND status = ?"
		args = append(args, filters.Status)
	}
	if filters.Processed != nil {
		where += " AND processed = ?"
		args = append(args, *filters.Processed)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM external_orders`+where), args...); err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	orders := []ExternalOrder{}
	pageArgs := append(append([]interface{}{}, args...), filters.Limit, filters.Offset)
	err := s.db.SelectContext(ctx, &orders, s.db.Rebind(`SELECT `+orderColumns+` FROM external_orders`+where+
		` ORDER BY COALESCE(platform_created_at, created_at) DESC, id DESC LIMIT ? OFFSET ?`), pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if err := decodeAll(orders); err != nil {
		return nil, err
	}

	return &OrderListResult{
		Orders:     orders,
		TotalCount: total,
		Limit:      filters.Limit,
		Offset:     filters.Offset,
	}, nil
}

// ListEligibleUnprocessed returns unprocessed orders in one of the labels
func (s *Storage) ListEligibleUnprocessed(ctx context.Context, accountID int64, labels []string) ([]ExternalOrder, error) {
	orders := []ExternalOrder{}
	if len(labels) == 0 {
		return orders, nil
	}

	query, args, err := sqlx.In(`
	SELECT `+orderColumns+` FROM external_orders
	WHERE account_id = ? AND processed = ? AND LOWER(TRIM(status)) IN (?)
	ORDER BY COALESCE(platform_created_at, created_at) DESC, id DESC`,
		accountID, false, labels)
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &orders, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list eligible orders: %w", err)
	}
	return orders, decodeAll(orders)
}
