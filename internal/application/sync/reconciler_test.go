package sync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ordersync-backend/internal/domain/matcher"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

func storedOrder(accountID int64, externalID, label string, items ...storage.OrderItem) *storage.ExternalOrder {
	return &storage.ExternalOrder{
		ExternalOrderID: externalID,
		AccountID:       accountID,
		UserID:          1,
		OrderNumber:     "N" + externalID,
		Status:          label,
		TotalAmount:     decimal.NewFromInt(10),
		ItemsJSON:       "[]",
		Items:           items,
	}
}

// upsertIn saves order inside tx and returns the stored row id
func upsertIn(t *testing.T, ctx context.Context, tx storage.Tx, order *storage.ExternalOrder) {
	t.Helper()
	_, err := tx.UpsertOrder(ctx, order)
	require.NoError(t, err)
	require.NotZero(t, order.ID)
}

func TestReconcile_StateMachine(t *testing.T) {
	tests := []struct {
		name         string
		processed    bool
		label        string
		wantDeducted bool
		wantStock    int
	}{
		{"unprocessed and eligible deducts", false, "Verificado", true, 8},
		{"unprocessed and not eligible waits", false, "Em aberto", false, 10},
		{"processed and eligible is a no-op", true, "Verificado", false, 10},
		{"processed and not eligible is a no-op", true, "Cancelado", false, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStorage(t)
			account := seedAccount(t, store, "Loja")
			mug := seedProduct(t, store, "SKU-1", "", "Caneca", 10)
			products := toMatchable([]storage.Product{*mug})
			r := NewReconciler(nil, logging.Discard())
			ctx := context.Background()

			var result ReconcileResult
			err := store.InTx(ctx, func(tx storage.Tx) error {
				order := storedOrder(account.ID, "1", tt.label, storage.OrderItem{SKU: "SKU-1", Name: "Caneca", Quantity: 2})
				upsertIn(t, ctx, tx, order)
				if tt.processed {
					ok, err := tx.MarkProcessed(ctx, order.ID, time.Now())
					require.NoError(t, err)
					require.True(t, ok)
					order.Processed = true
				}

				var err error
				result, err = r.Reconcile(ctx, tx, order, products, "", tt.label)
				return err
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantDeducted, result.Deducted)
			assert.Equal(t, tt.wantStock, stockOf(t, store, mug.ID))
		})
	}
}

func TestReconcile_DefaultsQuantityToOne(t *testing.T) {
	store := newTestStorage(t)
	account := seedAccount(t, store, "Loja")
	mug := seedProduct(t, store, "SKU-1", "", "Caneca", 10)
	r := NewReconciler(nil, logging.Discard())
	ctx := context.Background()

	var result ReconcileResult
	err := store.InTx(ctx, func(tx storage.Tx) error {
		order := storedOrder(account.ID, "1", "Verificado", storage.OrderItem{SKU: "SKU-1", Name: "Caneca", Quantity: 0})
		upsertIn(t, ctx, tx, order)
		var err error
		result, err = r.Reconcile(ctx, tx, order, toMatchable([]storage.Product{*mug}), "Em aberto", "Verificado")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ItemsDeducted)
	assert.Equal(t, 9, stockOf(t, store, mug.ID))
}

func TestReconcile_UnmatchedItemsStillMarkProcessed(t *testing.T) {
	store := newTestStorage(t)
	account := seedAccount(t, store, "Loja")
	mug := seedProduct(t, store, "SKU-1", "", "Caneca", 10)
	r := NewReconciler(nil, logging.Discard())
	ctx := context.Background()

	var (
		result ReconcileResult
		order  *storage.ExternalOrder
	)
	err := store.InTx(ctx, func(tx storage.Tx) error {
		order = storedOrder(account.ID, "1", "Verificado",
			storage.OrderItem{SKU: "SKU-1", Name: "Caneca", Quantity: 1},
			storage.OrderItem{SKU: "ZZZ-9", Name: "Item sem cadastro", Quantity: 1},
		)
		upsertIn(t, ctx, tx, order)
		var err error
		result, err = r.Reconcile(ctx, tx, order, toMatchable([]storage.Product{*mug}), "", "Verificado")
		return err
	})
	require.NoError(t, err)

	assert.True(t, result.Deducted)
	assert.Equal(t, 1, result.ItemsDeducted)
	assert.Equal(t, 1, result.Unmatched)

	stored, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
}

func TestReconcile_EligibleWithoutItemsStaysUnprocessed(t *testing.T) {
	store := newTestStorage(t)
	account := seedAccount(t, store, "Loja")
	r := NewReconciler(nil, logging.Discard())
	ctx := context.Background()

	var (
		result ReconcileResult
		order  *storage.ExternalOrder
	)
	err := store.InTx(ctx, func(tx storage.Tx) error {
		order = storedOrder(account.ID, "1", "Verificado")
		upsertIn(t, ctx, tx, order)
		var err error
		result, err = r.Reconcile(ctx, tx, order, nil, "", "Verificado")
		return err
	})
	require.NoError(t, err)

	assert.True(t, result.AwaitingItems)
	assert.False(t, result.Deducted)
	assert.False(t, result.Processed)

	stored, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.Processed)

	movements, err := store.ListMovementsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestReconcile_LostRaceWritesNothing(t *testing.T) {
	store := newTestStorage(t)
	account := seedAccount(t, store, "Loja")
	mug := seedProduct(t, store, "SKU-1", "", "Caneca", 10)
	r := NewReconciler(matcher.NewMatcher(matcher.DefaultConfig()), logging.Discard())
	ctx := context.Background()

	var (
		result ReconcileResult
		order  *storage.ExternalOrder
	)
	err := store.InTx(ctx, func(tx storage.Tx) error {
		order = storedOrder(account.ID, "1", "Verificado", storage.OrderItem{SKU: "SKU-1", Name: "Caneca", Quantity: 3})
		upsertIn(t, ctx, tx, order)

		// another writer flips the flag after our copy was read
		ok, err := tx.MarkProcessed(ctx, order.ID, time.Now())
		require.NoError(t, err)
		require.True(t, ok)

		result, err = r.Reconcile(ctx, tx, order, toMatchable([]storage.Product{*mug}), "", "Verificado")
		return err
	})
	require.NoError(t, err)

	assert.True(t, result.Processed)
	assert.False(t, result.Deducted)
	assert.Equal(t, 10, stockOf(t, store, mug.ID))

	movements, err := store.ListMovementsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestToMatchable(t *testing.T) {
	out := toMatchable([]storage.Product{
		{ID: 1, SKU: "A", InternalCode: "INT-1", EAN: "789", Name: "Caneca"},
		{ID: 2, SKU: "B", Name: "Prato"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, matcher.Product{ID: 1, SKU: "A", InternalCode: "INT-1", EAN: "789", Name: "Caneca"}, out[0])
	assert.Equal(t, int64(2), out[1].ID)
}
