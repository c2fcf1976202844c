package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/kv"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

// DefaultStateTTL bounds how long a user has to finish the authorization
const DefaultStateTTL = 10 * time.Minute

const (
	callbackPath      = "/oauth/callback"
	defaultAppBaseURL = "http://localhost:3001"
)

// Authorizer builds authorization URLs and exchanges codes for tokens
type Authorizer interface {
	AuthorizationURL(account *storage.MerchantAccount, state, redirectURI string) string
	ExchangeCode(ctx context.Context, account *storage.MerchantAccount, code, redirectURI string) error
}

// RequestOrigin describes where an inbound request came from, for building
// the OAuth callback URL
type RequestOrigin struct {
	ForwardedProto string
	ForwardedHost  string
	Scheme         string
	Host           string
}

// ResolveRedirectURI picks the callback URL: a configured override wins,
// then proxy headers, then the request's own scheme and host, then the
// local default.
func ResolveRedirectURI(override string, origin RequestOrigin) string {
	if override != "" {
		return override
	}

	base := defaultAppBaseURL
	switch {
	case origin.ForwardedProto != "" && origin.ForwardedHost != "":
		base = firstHeaderValue(origin.ForwardedProto) + "://" + firstHeaderValue(origin.ForwardedHost)
	case origin.Host != "":
		scheme := origin.Scheme
		if scheme == "" {
			scheme = "http"
		}
		base = scheme + "://" + origin.Host
	}
	return strings.TrimRight(base, "/") + callbackPath
}

// firstHeaderValue takes the client-most entry of a comma separated proxy header
func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// ConnectService runs the OAuth authorization-code flow for merchant accounts
type ConnectService struct {
	accounts    storage.AccountRepository
	auth        Authorizer
	states      kv.StateStore
	redirectURI string
	stateTTL    time.Duration
	logger      *slog.Logger
}

// NewConnectService creates a connect service. redirectURI is the
// configured override and may be empty.
func NewConnectService(accounts storage.AccountRepository, auth Authorizer, states kv.StateStore, redirectURI string, logger *slog.Logger) *ConnectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectService{
		accounts:    accounts,
		auth:        auth,
		states:      states,
		redirectURI: redirectURI,
		stateTTL:    DefaultStateTTL,
		logger:      logger,
	}
}

// RedirectURI resolves the callback URL for a request origin
func (s *ConnectService) RedirectURI(origin RequestOrigin) string {
	return ResolveRedirectURI(s.redirectURI, origin)
}

// Connect starts authorization for an account and returns the URL the user
// must visit. The generated state is stored until the callback consumes it.
func (s *ConnectService) Connect(ctx context.Context, accountID int64, redirectURI string) (string, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account.ClientID == "" {
		return "", &errs.ValidationError{Field: "client_id", Message: fmt.Sprintf("account %d has no client credentials", accountID)}
	}

	state := uuid.NewString()
	if err := s.states.Put(ctx, state, account.ID, s.stateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	s.logger.Info("authorization started", "account_id", account.ID, "redirect_uri", redirectURI)
	return s.auth.AuthorizationURL(account, state, redirectURI), nil
}

// Callback completes authorization: the state is consumed (single use),
// the code is exchanged and the tokens are stored on the account.
func (s *ConnectService) Callback(ctx context.Context, code, state, redirectURI string) (*storage.MerchantAccount, error) {
	if state == "" {
		return nil, &errs.ValidationError{Field: "state", Message: "missing"}
	}
	if code == "" {
		return nil, &errs.ValidationError{Field: "code", Message: "missing"}
	}

	accountID, err := s.states.Consume(ctx, state)
	if errors.Is(err, kv.ErrStateNotFound) {
		return nil, &errs.ValidationError{Field: "state", Message: "unknown or expired, start the connection again"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth state: %w", err)
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := s.auth.ExchangeCode(ctx, account, code, redirectURI); err != nil {
		s.logger.Warn("code exchange failed", "account_id", account.ID, "error", err)
		return nil, err
	}

	s.logger.Info("account connected", "account_id", account.ID)
	return s.accounts.GetAccount(ctx, account.ID)
}
