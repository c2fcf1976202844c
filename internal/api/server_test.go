package api_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ordersync-backend/internal/adapters/platform"
	"github.com/eshaffer321/ordersync-backend/internal/api"
	"github.com/eshaffer321/ordersync-backend/internal/api/dto"
	"github.com/eshaffer321/ordersync-backend/internal/application/service"
	appsync "github.com/eshaffer321/ordersync-backend/internal/application/sync"
	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/domain/inventory"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/kv"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	f, err := os.CreateTemp("", "api_test_*.db")
	require.NoError(t, err)
	f.Close()

	store, err := storage.NewStorage(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = os.Remove(f.Name())
	})
	return store
}

// stubSyncer answers without touching the platform
type stubSyncer struct {
	processErr error
}

func (s *stubSyncer) SyncAccountByID(_ context.Context, accountID int64) (*appsync.SyncResult, error) {
	if accountID == 404 {
		return nil, &errs.NotFoundError{Resource: "account", ID: "404"}
	}
	return &appsync.SyncResult{AccountID: accountID, Fetched: 2, Imported: 2}, nil
}

func (s *stubSyncer) SyncAll(_ context.Context, progress appsync.ProgressFunc) ([]appsync.AccountResult, error) {
	if progress != nil {
		progress(appsync.ProgressUpdate{Phase: "syncing_accounts", TotalAccounts: 1, CompletedAccounts: 1})
	}
	return []appsync.AccountResult{{AccountID: 1, Name: "Loja"}}, nil
}

func (s *stubSyncer) ProcessOrder(_ context.Context, orderID int64, _ bool) (*appsync.ProcessResult, error) {
	if s.processErr != nil {
		return nil, s.processErr
	}
	return &appsync.ProcessResult{Order: &storage.ExternalOrder{ID: orderID}}, nil
}

func (s *stubSyncer) ListVerified(_ context.Context, accountID int64) ([]storage.ExternalOrder, error) {
	return []storage.ExternalOrder{{ID: 7, AccountID: accountID, Status: "Verificado"}}, nil
}

type staticTokens struct{}

func (staticTokens) EnsureValidToken(context.Context, *storage.MerchantAccount) (string, error) {
	return "tok", nil
}

type staticProducts struct{}

func (staticProducts) FetchProducts(context.Context, *storage.MerchantAccount, string) (platform.ProductResult, error) {
	return platform.ProductResult{Products: []platform.RawProduct{
		{"id": "10", "codigo": "SKU-1", "nome": "Caneca"},
	}}, nil
}

type urlAuthorizer struct{}

func (urlAuthorizer) AuthorizationURL(account *storage.MerchantAccount, state, redirectURI string) string {
	q := url.Values{"client_id": {account.ClientID}, "state": {state}, "redirect_uri": {redirectURI}}
	return "https://platform.test/oauth/authorize?" + q.Encode()
}

func (urlAuthorizer) ExchangeCode(context.Context, *storage.MerchantAccount, string, string) error {
	return nil
}

type fixture struct {
	server  *api.Server
	store   *storage.Storage
	syncer  *stubSyncer
	account *storage.MerchantAccount
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newTestStorage(t)
	logger := testLogger()

	account := &storage.MerchantAccount{UserID: 1, Name: "Loja", ClientID: "cid", ClientSecret: "secret", IsActive: true}
	require.NoError(t, store.CreateAccount(context.Background(), account))

	syncer := &stubSyncer{}
	syncService := service.NewSyncService(syncer, logger)
	t.Cleanup(syncService.StopBackgroundCleanup)

	services := api.Services{
		Sync:    syncService,
		Connect: service.NewConnectService(store, urlAuthorizer{}, kv.NewMemoryStateStore(), "", logger),
		Catalog: service.NewCatalogService(store, staticTokens{}, staticProducts{}, logger),
	}

	return &fixture{
		server:  api.NewServer(api.DefaultConfig(), store, services, logger),
		store:   store,
		syncer:  syncer,
		account: account,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedOrder(t *testing.T, externalID, status string, processed bool) *storage.ExternalOrder {
	t.Helper()
	ctx := context.Background()
	order := &storage.ExternalOrder{
		ExternalOrderID: externalID,
		AccountID:       f.account.ID,
		UserID:          1,
		OrderNumber:     externalID,
		Status:          status,
		TotalAmount:     decimal.RequireFromString("10.50"),
		Items:           []storage.OrderItem{{SKU: "SKU-1", Name: "Caneca", Quantity: 1}},
	}
	require.NoError(t, f.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.UpsertOrder(ctx, order); err != nil {
			return err
		}
		if processed {
			_, err := tx.MarkProcessed(ctx, order.ID, time.Now())
			return err
		}
		return nil
	}))
	return order
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestServer_HealthEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	decode(t, rec, &response)
	assert.Equal(t, "ok", response.Status)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_OrdersEndpoints(t *testing.T) {
	t.Run("GET /api/orders filters and paginates", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "1001", "Verificado", true)
		f.seedOrder(t, "1002", "Em aberto", false)
		f.seedOrder(t, "1003", "Verificado", false)

		rec := f.do(t, http.MethodGet, "/api/orders", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var all dto.OrderListResponse
		decode(t, rec, &all)
		assert.Equal(t, 3, all.TotalCount)

		rec = f.do(t, http.MethodGet, "/api/orders?status=Verificado&processed=false", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var filtered dto.OrderListResponse
		decode(t, rec, &filtered)
		require.Equal(t, 1, filtered.TotalCount)
		assert.Equal(t, "1003", filtered.Orders[0].ExternalOrderID)

		rec = f.do(t, http.MethodGet, "/api/orders?limit=1&offset=1", "")
		var page dto.OrderListResponse
		decode(t, rec, &page)
		assert.Len(t, page.Orders, 1)
		assert.Equal(t, 3, page.TotalCount)
		assert.Equal(t, 1, page.Offset)
	})

	t.Run("GET /api/orders with empty store returns empty list", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/orders", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"orders":[]`)
	})

	t.Run("GET /api/orders rejects a malformed account filter", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/orders?account_id=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GET /api/orders/:orderId returns order with movements", func(t *testing.T) {
		f := newFixture(t)
		order := f.seedOrder(t, "2001", "Verificado", false)
		ctx := context.Background()

		product := &storage.Product{SKU: "SKU-1", Name: "Caneca", IsActive: true}
		require.NoError(t, f.store.CreateProduct(ctx, product))
		require.NoError(t, f.store.AddMovement(ctx, &storage.InventoryMovement{
			ProductID: product.ID, Type: inventory.Exit, Quantity: 1,
			Reason: "Pedido 2001 - Verificado", UserID: 1, SyncStatus: storage.MovementSynced, OrderID: &order.ID,
		}))

		rec := f.do(t, http.MethodGet, "/api/orders/"+itoa(order.ID), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var response dto.OrderDetailResponse
		decode(t, rec, &response)
		assert.Equal(t, "2001", response.Order.ExternalOrderID)
		require.Len(t, response.Order.Items, 1)
		require.Len(t, response.Movements, 1)
		assert.Equal(t, inventory.Exit, response.Movements[0].Type)
	})

	t.Run("GET /api/orders/:orderId returns 404 for missing order", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/orders/9999", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var response dto.ErrorResponse
		decode(t, rec, &response)
		assert.False(t, response.Success)
		assert.Equal(t, dto.ErrCodeNotFound, response.Code)
	})

	t.Run("GET /api/orders/:orderId rejects non-numeric id", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/orders/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("POST /api/orders/:orderId/process maps errors", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/orders/5/process", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		f.syncer.processErr = &errs.ConflictError{Message: "order 5 already processed"}
		rec = f.do(t, http.MethodPost, "/api/orders/5/process", "")
		assert.Equal(t, http.StatusConflict, rec.Code)

		f.syncer.processErr = &errs.ValidationError{Field: "status", Message: "not eligible"}
		rec = f.do(t, http.MethodPost, "/api/orders/5/process", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GET /api/orders/verified/:accountId lists pending deductions", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/orders/verified/3", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var response dto.VerifiedOrdersResponse
		decode(t, rec, &response)
		assert.True(t, response.Success)
		assert.Equal(t, 1, response.Count)
		assert.Equal(t, int64(3), response.Orders[0].AccountID)
	})
}

func TestServer_RunsEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	runID, err := f.store.StartSyncRun(ctx, f.account.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.LogAPICall(ctx, &storage.APICall{
		RunID: &runID, AccountID: f.account.ID, Method: http.MethodGet, Endpoint: "/pedidos/vendas", StatusCode: 200,
	}))
	require.NoError(t, f.store.CompleteSyncRun(ctx, runID, storage.SyncRunResult{OrdersFound: 2, OrdersImported: 2, Status: storage.RunCompleted}))

	t.Run("GET /api/runs lists runs", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/runs", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var response dto.SyncRunListResponse
		decode(t, rec, &response)
		require.Equal(t, 1, response.Count)
		assert.Equal(t, storage.RunCompleted, response.Runs[0].Status)
	})

	t.Run("GET /api/runs/:id includes api calls", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/runs/"+itoa(runID), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var response dto.SyncRunDetailResponse
		decode(t, rec, &response)
		assert.Equal(t, 2, response.Run.OrdersImported)
		require.Len(t, response.APICalls, 1)
		assert.Equal(t, "/pedidos/vendas", response.APICalls[0].Endpoint)
	})

	t.Run("GET /api/runs/:id returns 404 for missing run", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/runs/999", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_SyncEndpoints(t *testing.T) {
	t.Run("POST /api/sync/:accountId returns the result", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/sync/1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var response dto.SyncAccountResponse
		decode(t, rec, &response)
		assert.True(t, response.Success)
		assert.Equal(t, 2, response.Result.Imported)
	})

	t.Run("POST /api/sync/:accountId maps unknown account to 404", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/sync/404", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("POST /api/sync starts a job without a body", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/sync", "")
		require.Equal(t, http.StatusAccepted, rec.Code)

		var started dto.StartSyncResponse
		decode(t, rec, &started)
		assert.NotEmpty(t, started.JobID)
		assert.Equal(t, "all", started.Scope)

		assert.Eventually(t, func() bool {
			rec := f.do(t, http.MethodGet, "/api/sync/jobs/"+started.JobID, "")
			var job dto.SyncJobResponse
			if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
				return false
			}
			return job.Status == string(service.StatusCompleted) && len(job.Results) == 1
		}, 2*time.Second, 10*time.Millisecond)

		rec = f.do(t, http.MethodGet, "/api/sync/jobs", "")
		var jobs dto.SyncJobsResponse
		decode(t, rec, &jobs)
		assert.Equal(t, 1, jobs.Count)
	})

	t.Run("POST /api/sync scopes the job to an account", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/sync", `{"account_id": 1}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var started dto.StartSyncResponse
		decode(t, rec, &started)
		assert.Equal(t, "account-1", started.Scope)
	})

	t.Run("POST /api/sync rejects malformed body", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/sync", `{"account_id": "x"`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("GET and DELETE unknown job return 404", func(t *testing.T) {
		f := newFixture(t)

		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sync/jobs/nope", "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/sync/jobs/nope", "").Code)
	})
}

func TestServer_AccountsEndpoints(t *testing.T) {
	t.Run("connect returns an authorization URL", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/accounts/"+itoa(f.account.ID)+"/connect", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var response dto.ConnectResponse
		decode(t, rec, &response)
		assert.Contains(t, response.AuthorizationURL, "client_id=cid")
		assert.Contains(t, response.AuthorizationURL, url.QueryEscape("http://example.com/oauth/callback"))
	})

	t.Run("connect can redirect", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/accounts/"+itoa(f.account.ID)+"/connect?redirect=true", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://platform.test/oauth/authorize"))
	})

	t.Run("callback without state is rejected", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/oauth/callback?code=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("callback with unknown state is rejected", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/oauth/callback?code=abc&state=forged", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var response dto.ErrorResponse
		decode(t, rec, &response)
		assert.Equal(t, dto.ErrCodeValidation, response.Code)
	})

	t.Run("callback reports a denied authorization", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/oauth/callback?error=access_denied", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var response dto.ErrorResponse
		decode(t, rec, &response)
		assert.Equal(t, dto.ErrCodeAuth, response.Code)
	})
}

func TestServer_ProductsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/accounts/"+itoa(f.account.ID)+"/products/import", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var imported dto.ImportProductsResponse
	decode(t, rec, &imported)
	assert.Equal(t, 1, imported.Result.Created)

	product, err := f.store.GetProductBySKU(context.Background(), "SKU-1")
	require.NoError(t, err)
	require.NoError(t, f.store.AddMovement(context.Background(), &storage.InventoryMovement{
		ProductID: product.ID, Type: inventory.Entry, Quantity: 4, Reason: "initial", UserID: 1, SyncStatus: storage.MovementSynced,
	}))

	rec = f.do(t, http.MethodGet, "/api/products/"+itoa(product.ID)+"/stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stock service.StockView
	decode(t, rec, &stock)
	assert.Equal(t, 4, stock.Stock)

	rec = f.do(t, http.MethodGet, "/api/products/"+itoa(product.ID)+"/movements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var movements dto.MovementsResponse
	decode(t, rec, &movements)
	assert.Equal(t, 1, movements.Count)

	rec = f.do(t, http.MethodGet, "/api/products/999/stock", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_OptionalServices(t *testing.T) {
	store := newTestStorage(t)
	server := api.NewServer(api.DefaultConfig(), store, api.Services{}, testLogger())

	for _, target := range []string{"/api/sync/jobs", "/oauth/callback", "/api/products/1/stock"} {
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()

	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestConfigFromServer(t *testing.T) {
	cfg := api.DefaultConfig()
	assert.Equal(t, 3001, cfg.Port)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
