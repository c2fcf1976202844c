package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/telemetry"
)

const (
	ordersPath   = "/pedidos/vendas"
	productsPath = "/produtos"
)

// Refresher forces a token refresh after the platform answers 401
type Refresher interface {
	ForceRefresh(ctx context.Context, account *storage.MerchantAccount) (string, error)
}

// FetchResult is the outcome of paging the order listing.
// Warning is set when pagination stopped early; Orders still holds
// everything collected before that point.
type FetchResult struct {
	Orders      []RawOrder
	Pages       int
	Warning     string
	AccessToken string // token in effect after any refresh
}

// ProductResult is the outcome of paging the product listing
type ProductResult struct {
	Products    []RawProduct
	Pages       int
	Warning     string
	AccessToken string
}

// OrderFetcher pages platform listings with rate-limit and retry handling
type OrderFetcher struct {
	client *Client
	tokens Refresher
	cfg    config.PlatformConfig
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrderFetcher creates a fetcher
func NewOrderFetcher(client *Client, tokens Refresher, cfg config.PlatformConfig, logger *slog.Logger) *OrderFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.MaxRateLimitRetries <= 0 {
		cfg.MaxRateLimitRetries = 5
	}
	return &OrderFetcher{
		client: client,
		tokens: tokens,
		cfg:    cfg,
		logger: logger.With("system", "platform"),
		sleep:  sleepContext,
	}
}

// FetchAllOrders pages the order listing until a short page or the page cap.
// Only an authentication failure or cancellation is returned as an error;
// other failures end pagination with a warning and partial results.
func (f *OrderFetcher) FetchAllOrders(ctx context.Context, account *storage.MerchantAccount, accessToken string) (FetchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "platform.FetchAllOrders")
	defer span.End()

	token := accessToken
	records, pages, warning, err := f.paginate(ctx, account, &token, "orders", ordersPath)

	result := FetchResult{Pages: pages, Warning: warning, AccessToken: token}
	for _, r := range records {
		result.Orders = append(result.Orders, RawOrder(r))
	}
	span.SetAttributes(
		attribute.Int("orders", len(result.Orders)),
		attribute.Int("pages", pages),
	)
	telemetry.RecordError(span, err)
	return result, err
}

// FetchProducts pages the product listing with the same policy as orders
func (f *OrderFetcher) FetchProducts(ctx context.Context, account *storage.MerchantAccount, accessToken string) (ProductResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "platform.FetchProducts")
	defer span.End()

	token := accessToken
	records, pages, warning, err := f.paginate(ctx, account, &token, "products", productsPath)

	result := ProductResult{Pages: pages, Warning: warning, AccessToken: token}
	for _, r := range records {
		result.Products = append(result.Products, RawProduct(r))
	}
	telemetry.RecordError(span, err)
	return result, err
}

// DetailResult is one order detail plus the token in effect after the call
type DetailResult struct {
	Order       RawOrder
	AccessToken string
}

// FetchOrderDetail loads one order including its line items. AccessToken is
// set even when the call fails, so a refresh made along the way is not lost.
// Callers treat failures as non-fatal and keep the listing payload.
func (f *OrderFetcher) FetchOrderDetail(ctx context.Context, account *storage.MerchantAccount, orderID, accessToken string) (DetailResult, error) {
	result := DetailResult{AccessToken: accessToken}
	body, err := f.get(ctx, account, &result.AccessToken, "order_detail", ordersPath+"/"+url.PathEscape(orderID), nil)
	if err != nil {
		return result, err
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := decode(body, &envelope); err != nil {
		return result, err
	}
	if envelope.Data == nil {
		return result, fmt.Errorf("order %s detail has no data", orderID)
	}
	result.Order = RawOrder(envelope.Data)
	return result, nil
}

func (f *OrderFetcher) paginate(ctx context.Context, account *storage.MerchantAccount, token *string, endpoint, path string) ([]map[string]any, int, string, error) {
	var (
		all   []map[string]any
		pages int
	)

	for page := 1; page <= f.cfg.MaxPages; page++ {
		if page > 1 {
			if err := f.sleep(ctx, f.cfg.PageDelay.Std()); err != nil {
				return all, pages, err.Error(), err
			}
		}

		query := url.Values{
			"limite": {strconv.Itoa(f.cfg.PageSize)},
			"pagina": {strconv.Itoa(page)},
		}
		body, err := f.get(ctx, account, token, endpoint, path, query)
		if err == nil {
			var records []map[string]any
			records, err = decodeList(body)
			if err == nil {
				pages++
				all = append(all, records...)
				if len(records) < f.cfg.PageSize {
					return all, pages, "", nil
				}
				continue
			}
		}

		var authErr *errs.AuthError
		if errors.As(err, &authErr) || ctx.Err() != nil {
			return all, pages, err.Error(), err
		}

		f.logger.Warn("pagination aborted, keeping partial results",
			slog.Int64("account_id", account.ID),
			slog.String("endpoint", endpoint),
			slog.Int("page", page),
			slog.Int("collected", len(all)),
			slog.String("error", err.Error()),
		)
		return all, pages, fmt.Sprintf("page %d: %v", page, err), nil
	}

	f.logger.Info("page cap reached",
		slog.Int64("account_id", account.ID),
		slog.String("endpoint", endpoint),
		slog.Int("max_pages", f.cfg.MaxPages),
	)
	return all, pages, "", nil
}

// get performs one logical request, retrying per the platform policy:
// 429 waits and repeats (bounded), 401 refreshes the token once, and a
// network failure or 5xx is retried once after a short delay.
func (f *OrderFetcher) get(ctx context.Context, account *storage.MerchantAccount, token *string, endpoint, path string, query url.Values) ([]byte, error) {
	var (
		rateLimited int
		refreshed   bool
		retried     bool
	)

	for {
		resp, err := f.client.Get(ctx, account.ID, endpoint, path, query, *token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			netErr := &errs.TransientNetworkError{Op: endpoint, Err: err}
			if retried {
				return nil, netErr
			}
			retried = true
			if err := f.sleep(ctx, f.cfg.TransientDelay.Std()); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.Body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			rateLimited++
			wait := retryAfter(resp.Header, f.cfg.RateLimitBackoff.Std())
			if rateLimited > f.cfg.MaxRateLimitRetries {
				return nil, &errs.RateLimitError{Attempts: rateLimited, RetryAfter: wait}
			}
			f.logger.Debug("rate limited, backing off",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", rateLimited),
				slog.Duration("wait", wait),
			)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return nil, &errs.AuthError{AccountID: account.ID, Reason: "platform rejected the refreshed token"}
			}
			refreshed = true
			newToken, err := f.tokens.ForceRefresh(ctx, account)
			if err != nil {
				return nil, err
			}
			*token = newToken

		case resp.StatusCode >= 500:
			netErr := &errs.TransientNetworkError{
				Op:  endpoint,
				Err: fmt.Errorf("platform returned %d: %s", resp.StatusCode, snippet(resp.Body)),
			}
			if retried {
				return nil, netErr
			}
			retried = true
			if err := f.sleep(ctx, f.cfg.TransientDelay.Std()); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("platform returned %d: %s", resp.StatusCode, snippet(resp.Body))
		}
	}
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode platform response: %w", err)
	}
	return nil
}

func decodeList(body []byte) ([]map[string]any, error) {
	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := decode(body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// retryAfter honours a Retry-After header given in seconds
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
