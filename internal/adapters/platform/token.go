package platform

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/telemetry"
)

const (
	// expirySkew refreshes tokens slightly before they actually expire
	expirySkew = 60 * time.Second

	// fallbackLifetime is assumed when the token response omits expires_in
	fallbackLifetime = time.Hour
)

// TokenStore persists a refreshed token set
type TokenStore interface {
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
}

// TokenManager keeps account access tokens valid
type TokenManager struct {
	cfg        config.PlatformConfig
	store      TokenStore
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewTokenManager creates a token manager. httpClient carries the token
// endpoint requests; nil uses http.DefaultClient.
func NewTokenManager(cfg config.PlatformConfig, store TokenStore, httpClient *http.Client, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		cfg:        cfg,
		store:      store,
		httpClient: httpClient,
		logger:     logger.With("system", "platform"),
		now:        time.Now,
	}
}

func (m *TokenManager) oauthConfig(account *storage.MerchantAccount, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     account.ClientID,
		ClientSecret: account.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.cfg.AuthorizeURL,
			TokenURL:  m.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (m *TokenManager) grantContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// EnsureValidToken returns the account's access token, refreshing it first
// when it is missing or expires within the skew window.
func (m *TokenManager) EnsureValidToken(ctx context.Context, account *storage.MerchantAccount) (string, error) {
	if account.AccessToken != "" && account.TokenExpiresAt != nil &&
		m.now().Add(expirySkew).Before(*account.TokenExpiresAt) {
		return account.AccessToken, nil
	}
	return m.ForceRefresh(ctx, account)
}

// ForceRefresh runs the refresh-token grant regardless of expiry. On success
// the new tokens are persisted and copied onto account.
func (m *TokenManager) ForceRefresh(ctx context.Context, account *storage.MerchantAccount) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "platform.RefreshToken")
	defer span.End()

	if account.RefreshToken == "" {
		telemetry.TokenRefreshesTotal.WithLabelValues("failed").Inc()
		err := &errs.AuthError{AccountID: account.ID, Reason: "no refresh token stored"}
		telemetry.RecordError(span, err)
		return "", err
	}

	src := m.oauthConfig(account, "").TokenSource(m.grantContext(ctx), &oauth2.Token{
		RefreshToken: account.RefreshToken,
	})
	tok, err := src.Token()
	if err != nil {
		telemetry.TokenRefreshesTotal.WithLabelValues("failed").Inc()
		m.logger.Warn("token refresh failed",
			slog.Int64("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		authErr := &errs.AuthError{AccountID: account.ID, Reason: "token refresh failed", Err: err}
		telemetry.RecordError(span, authErr)
		return "", authErr
	}

	if err := m.persist(ctx, account, tok); err != nil {
		telemetry.TokenRefreshesTotal.WithLabelValues("failed").Inc()
		telemetry.RecordError(span, err)
		return "", err
	}

	telemetry.TokenRefreshesTotal.WithLabelValues("ok").Inc()
	m.logger.Info("token refreshed",
		slog.Int64("account_id", account.ID),
		slog.Time("expires_at", *account.TokenExpiresAt),
	)
	return account.AccessToken, nil
}

// AuthorizationURL builds the consent URL the user is redirected to
func (m *TokenManager) AuthorizationURL(account *storage.MerchantAccount, state, redirectURI string) string {
	return m.oauthConfig(account, redirectURI).AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for tokens and stores them
func (m *TokenManager) ExchangeCode(ctx context.Context, account *storage.MerchantAccount, code, redirectURI string) error {
	ctx, span := telemetry.StartSpan(ctx, "platform.ExchangeCode")
	defer span.End()

	tok, err := m.oauthConfig(account, redirectURI).Exchange(m.grantContext(ctx), code)
	if err != nil {
		authErr := &errs.AuthError{AccountID: account.ID, Reason: "authorization code exchange failed", Err: err}
		telemetry.RecordError(span, authErr)
		return authErr
	}

	if err := m.persist(ctx, account, tok); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	m.logger.Info("account connected", slog.Int64("account_id", account.ID))
	return nil
}

func (m *TokenManager) persist(ctx context.Context, account *storage.MerchantAccount, tok *oauth2.Token) error {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = account.RefreshToken
	}
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = m.now().Add(fallbackLifetime)
	}
	expiresAt = expiresAt.UTC()

	if err := m.store.UpdateTokens(ctx, account.ID, tok.AccessToken, refresh, expiresAt); err != nil {
		return &errs.PersistenceError{Op: "update tokens", Err: err}
	}

	account.AccessToken = tok.AccessToken
	account.RefreshToken = refresh
	account.TokenExpiresAt = &expiresAt
	account.Status = storage.AccountConnected
	return nil
}
