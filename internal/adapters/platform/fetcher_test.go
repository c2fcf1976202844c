package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type fakeRefresher struct {
	token string
	err   error
	calls int
}

func (r *fakeRefresher) ForceRefresh(_ context.Context, account *storage.MerchantAccount) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	account.AccessToken = r.token
	return r.token, nil
}

type callRecorder struct {
	mu    sync.Mutex
	calls []storage.APICall
}

func (c *callRecorder) LogAPICall(_ context.Context, call *storage.APICall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, *call)
	return nil
}

func testPlatformConfig(baseURL string) config.PlatformConfig {
	cfg := config.Defaults().Platform
	cfg.BaseURL = baseURL
	cfg.RequestTimeout = config.Duration(5 * time.Second)
	return cfg
}

type fetcherFixture struct {
	fetcher   *OrderFetcher
	sleeps    *sleepRecorder
	refresher *fakeRefresher
	calls     *callRecorder
	account   *storage.MerchantAccount
}

func newFixture(t *testing.T, handler http.HandlerFunc, tweak func(*config.PlatformConfig)) *fetcherFixture {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testPlatformConfig(server.URL)
	if tweak != nil {
		tweak(&cfg)
	}

	calls := &callRecorder{}
	refresher := &fakeRefresher{token: "new-token"}
	sleeps := &sleepRecorder{}

	f := NewOrderFetcher(NewClient(cfg, calls, logging.Discard()), refresher, cfg, logging.Discard())
	f.sleep = sleeps.sleep

	return &fetcherFixture{
		fetcher:   f,
		sleeps:    sleeps,
		refresher: refresher,
		calls:     calls,
		account:   &storage.MerchantAccount{ID: 7, AccessToken: "old-token"},
	}
}

func makeOrders(start, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		id := start + i
		out = append(out, map[string]any{
			"id":       id,
			"numero":   strconv.Itoa(1000 + id),
			"situacao": map[string]any{"id": 6},
		})
	}
	return out
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func TestFetchAllOrders_Pagination(t *testing.T) {
	var requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/pedidos/vendas", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limite"))
		assert.Equal(t, "Bearer old-token", r.Header.Get("Authorization"))

		page, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		switch page {
		case 1:
			writeData(w, makeOrders(1, 100))
		case 2:
			writeData(w, makeOrders(101, 100))
		case 3:
			writeData(w, makeOrders(201, 50))
		default:
			t.Errorf("unexpected page %d", page)
			writeData(w, []any{})
		}
	}, nil)

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)

	assert.Len(t, result.Orders, 250)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.Empty(t, result.Warning)
	assert.Equal(t, "201", result.Orders[200].ID())

	// Delay between pages only, not before the first
	assert.Len(t, fx.sleeps.waits, 2)
	assert.Len(t, fx.calls.calls, 3)
}

func TestFetchAllOrders_PageCap(t *testing.T) {
	var requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		writeData(w, makeOrders(int(n), 1))
	}, func(c *config.PlatformConfig) {
		c.PageSize = 1
		c.MaxPages = 3
	})

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Len(t, result.Orders, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestFetchAllOrders_RateLimitRetriesSamePage(t *testing.T) {
	var requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		assert.Equal(t, "1", r.URL.Query().Get("pagina"))
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeData(w, makeOrders(1, 10))
	}, nil)

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Len(t, result.Orders, 10)
	assert.Empty(t, result.Warning)
	require.Len(t, fx.sleeps.waits, 1)
	assert.Equal(t, 2*time.Second, fx.sleeps.waits[0])
}

func TestFetchAllOrders_RateLimitHonoursRetryAfter(t *testing.T) {
	var requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeData(w, makeOrders(1, 1))
	}, nil)

	_, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, fx.sleeps.waits)
}

func TestFetchAllOrders_RateLimitExhausted(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(c *config.PlatformConfig) {
		c.MaxRateLimitRetries = 2
	})

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Empty(t, result.Orders)
	assert.Contains(t, result.Warning, "rate limited after 3 attempts")
	assert.Len(t, fx.sleeps.waits, 2)
}

func TestFetchAllOrders_UnauthorizedOnceRefreshes(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeData(w, makeOrders(1, 5))
	}, nil)

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Len(t, result.Orders, 5)
	assert.Equal(t, 1, fx.refresher.calls)
	assert.Equal(t, "new-token", result.AccessToken)
}

func TestFetchAllOrders_UnauthorizedTwiceIsAuthError(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)

	_, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.Error(t, err)

	var authErr *errs.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, int64(7), authErr.AccountID)
	assert.Equal(t, 1, fx.refresher.calls)
}

func TestFetchAllOrders_RefreshFailureIsAuthError(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)
	fx.refresher.err = &errs.AuthError{AccountID: 7, Reason: "token refresh failed"}

	_, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	var authErr *errs.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestFetchAllOrders_UnauthorizedKeepsEarlierPages(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pagina") == "1" {
			writeData(w, makeOrders(1, 2))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}, func(c *config.PlatformConfig) {
		c.PageSize = 2
	})

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Len(t, result.Orders, 2)
}

func TestFetchAllOrders_TransientRetriedOnce(t *testing.T) {
	var requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeData(w, makeOrders(1, 3))
	}, nil)

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Len(t, result.Orders, 3)
	assert.Empty(t, result.Warning)
	assert.Equal(t, []time.Duration{time.Second}, fx.sleeps.waits)
}

func TestFetchAllOrders_PartialResultsOnRepeatedFailure(t *testing.T) {
	var page2Requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pagina") == "1" {
			writeData(w, makeOrders(1, 2))
			return
		}
		atomic.AddInt32(&page2Requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, func(c *config.PlatformConfig) {
		c.PageSize = 2
		c.MaxPages = 5
	})

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Len(t, result.Orders, 2, "page 1 results must survive")
	assert.Equal(t, 1, result.Pages)
	assert.Contains(t, result.Warning, "page 2")
	assert.Equal(t, int32(2), atomic.LoadInt32(&page2Requests), "transient failure retried exactly once")
}

func TestFetchAllOrders_NonRetryableKeepsEarlierPages(t *testing.T) {
	var page2Requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pagina") == "1" {
			writeData(w, makeOrders(1, 2))
			return
		}
		atomic.AddInt32(&page2Requests, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad page"}`))
	}, func(c *config.PlatformConfig) {
		c.PageSize = 2
	})

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Len(t, result.Orders, 2)
	assert.Contains(t, result.Warning, "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&page2Requests))
}

func TestFetchAllOrders_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := testPlatformConfig(url)
	sleeps := &sleepRecorder{}
	f := NewOrderFetcher(NewClient(cfg, nil, logging.Discard()), &fakeRefresher{}, cfg, logging.Discard())
	f.sleep = sleeps.sleep

	result, err := f.FetchAllOrders(context.Background(), &storage.MerchantAccount{ID: 1}, "tok")
	require.NoError(t, err)
	assert.Empty(t, result.Orders)
	assert.Contains(t, result.Warning, "transient network error")
	assert.Len(t, sleeps.waits, 1)
}

func TestFetchAllOrders_CancelledDuringDelay(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, makeOrders(1, 2))
	}, func(c *config.PlatformConfig) {
		c.PageSize = 2
	})

	ctx, cancel := context.WithCancel(context.Background())
	fx.fetcher.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	result, err := fx.fetcher.FetchAllOrders(ctx, fx.account, "old-token")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Orders, 2)
}

func TestFetchAllOrders_AuditCarriesRunID(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, makeOrders(1, 1))
	}, nil)

	ctx := WithRunID(context.Background(), 42)
	_, err := fx.fetcher.FetchAllOrders(ctx, fx.account, "old-token")
	require.NoError(t, err)

	require.Len(t, fx.calls.calls, 1)
	call := fx.calls.calls[0]
	require.NotNil(t, call.RunID)
	assert.Equal(t, int64(42), *call.RunID)
	assert.Equal(t, int64(7), call.AccountID)
	assert.Equal(t, http.StatusOK, call.StatusCode)
	assert.Equal(t, "/pedidos/vendas", call.Endpoint)
}

func TestFetchOrderDetail(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pedidos/vendas/99":
			writeData(w, map[string]any{
				"id":     99,
				"numero": "5001",
				"itens": []any{
					map[string]any{"codigo": "SKU-1", "descricao": "Caneca", "quantidade": 2},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, nil)

	detail, err := fx.fetcher.FetchOrderDetail(context.Background(), fx.account, "99", "old-token")
	require.NoError(t, err)
	assert.Equal(t, "99", detail.Order.ID())
	assert.True(t, detail.Order.HasItems())
	assert.Equal(t, "old-token", detail.AccessToken)

	_, err = fx.fetcher.FetchOrderDetail(context.Background(), fx.account, "100", "old-token")
	assert.Error(t, err)
}

func TestFetchOrderDetail_ReturnsRefreshedToken(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/pedidos/vendas/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeData(w, map[string]any{"id": 1, "numero": "5001"})
	}, nil)

	detail, err := fx.fetcher.FetchOrderDetail(context.Background(), fx.account, "1", "old-token")
	require.NoError(t, err)
	assert.Equal(t, "new-token", detail.AccessToken)
	assert.Equal(t, 1, fx.refresher.calls)

	t.Run("token survives a failed call", func(t *testing.T) {
		fx.refresher.calls = 0
		detail, err := fx.fetcher.FetchOrderDetail(context.Background(), fx.account, "missing", "old-token")
		require.Error(t, err)
		assert.Equal(t, "new-token", detail.AccessToken)
		assert.Equal(t, 1, fx.refresher.calls)
	})
}

func TestNewOrderFetcher_DefaultsRateLimitRetries(t *testing.T) {
	var requests int32
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeData(w, makeOrders(1, 3))
	}, func(c *config.PlatformConfig) {
		c.MaxRateLimitRetries = 0
	})

	result, err := fx.fetcher.FetchAllOrders(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	assert.Len(t, result.Orders, 3)
	assert.Empty(t, result.Warning)
	assert.Equal(t, 5, fx.fetcher.cfg.MaxRateLimitRetries)
}

func TestOrderFetcher_LogsUnderPlatformSystem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	cfg := testPlatformConfig(server.URL)

	var buf bytes.Buffer
	logger := logging.NewLoggerTo(&buf, config.LoggingConfig{Level: "info"})
	f := NewOrderFetcher(NewClient(cfg, nil, logging.Discard()), &fakeRefresher{}, cfg, logger)

	result, err := f.FetchAllOrders(context.Background(), &storage.MerchantAccount{ID: 7}, "tok")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warning)
	assert.True(t, strings.HasPrefix(buf.String(), "[WARN] [platform] ["), buf.String())
	assert.NotContains(t, buf.String(), "component=")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short body", snippet([]byte("  short body \n")))

	body := strings.Repeat("a", snippetLimit-1) + "ção"
	got := snippet([]byte(body))
	assert.True(t, utf8.ValidString(got), "cut must not split a rune")
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("a", snippetLimit-1)+"...", got)
}

func TestFetchProducts(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/produtos", r.URL.Path)
		writeData(w, []any{
			map[string]any{"id": 1, "codigo": "SKU-1", "nome": "Caneca", "preco": 19.9, "gtin": "789000"},
			map[string]any{"id": 2, "codigo": "SKU-2", "nome": "Prato"},
		})
	}, nil)

	result, err := fx.fetcher.FetchProducts(context.Background(), fx.account, "old-token")
	require.NoError(t, err)
	require.Len(t, result.Products, 2)
	assert.Equal(t, "SKU-1", result.Products[0].SKU())
	assert.Equal(t, "789000", result.Products[0].EAN())
	assert.Equal(t, "19.9", result.Products[0].Price().String())
	assert.Equal(t, "Prato", result.Products[1].Name())
}
