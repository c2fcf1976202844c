package service

import (
	"context"
	"errors"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/kv"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
)

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	f, err := os.CreateTemp("", "service_test_*.db")
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

func seedAccount(t *testing.T, store *storage.Storage, clientID string) *storage.MerchantAccount {
	t.Helper()
	a := &storage.MerchantAccount{UserID: 1, Name: "Loja", ClientID: clientID, ClientSecret: "secret", IsActive: true}
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a
}

// fakeAuthorizer stores tokens through the repository the way the token manager does
type fakeAuthorizer struct {
	store    *storage.Storage
	err      error
	codes    []string
	redirect string
}

func (f *fakeAuthorizer) AuthorizationURL(account *storage.MerchantAccount, state, redirectURI string) string {
	q := url.Values{"client_id": {account.ClientID}, "state": {state}, "redirect_uri": {redirectURI}}
	return "https://platform.test/oauth/authorize?" + q.Encode()
}

func (f *fakeAuthorizer) ExchangeCode(ctx context.Context, account *storage.MerchantAccount, code, redirectURI string) error {
	f.codes = append(f.codes, code)
	f.redirect = redirectURI
	if f.err != nil {
		return f.err
	}
	return f.store.UpdateTokens(ctx, account.ID, "access-"+code, "refresh-"+code, time.Now().Add(time.Hour))
}

func TestResolveRedirectURI(t *testing.T) {
	tests := []struct {
		name     string
		override string
		origin   RequestOrigin
		want     string
	}{
		{"override wins", "https://app.example.com/cb", RequestOrigin{ForwardedProto: "https", ForwardedHost: "proxy"}, "https://app.example.com/cb"},
		{"forwarded headers", "", RequestOrigin{ForwardedProto: "https", ForwardedHost: "shop.example.com", Host: "10.0.0.1:3001"}, "https://shop.example.com/oauth/callback"},
		{"forwarded lists", "", RequestOrigin{ForwardedProto: "https, http", ForwardedHost: "a.example.com, b"}, "https://a.example.com/oauth/callback"},
		{"only proto forwarded", "", RequestOrigin{ForwardedProto: "https", Host: "api.local:8080", Scheme: "http"}, "http://api.local:8080/oauth/callback"},
		{"request host", "", RequestOrigin{Host: "api.local:8080"}, "http://api.local:8080/oauth/callback"},
		{"request tls", "", RequestOrigin{Host: "api.local", Scheme: "https"}, "https://api.local/oauth/callback"},
		{"default", "", RequestOrigin{}, "http://localhost:3001/oauth/callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRedirectURI(tt.override, tt.origin))
		})
	}
}

func TestConnectService_ConnectAndCallback(t *testing.T) {
	store := newTestStorage(t)
	account := seedAccount(t, store, "cid")
	states := kv.NewMemoryStateStore()
	auth := &fakeAuthorizer{store: store}
	svc := NewConnectService(store, auth, states, "", testLogger())
	ctx := context.Background()

	redirect := svc.RedirectURI(RequestOrigin{Host: "localhost:8080"})
	authURL, err := svc.Connect(ctx, account.ID, redirect)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "cid", parsed.Query().Get("client_id"))
	assert.Equal(t, 1, states.Len())

	connected, err := svc.Callback(ctx, "abc", state, redirect)
	require.NoError(t, err)
	assert.Equal(t, storage.AccountConnected, connected.Status)
	assert.Equal(t, "access-abc", connected.AccessToken)
	assert.Equal(t, []string{"abc"}, auth.codes)
	assert.Equal(t, "http://localhost:8080/oauth/callback", auth.redirect)

	// states are single use
	_, err = svc.Callback(ctx, "abc", state, redirect)
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "state", ve.Field)
	assert.Len(t, auth.codes, 1)
}

func TestConnectService_Connect_Errors(t *testing.T) {
	store := newTestStorage(t)
	noCreds := seedAccount(t, store, "")
	svc := NewConnectService(store, &fakeAuthorizer{store: store}, kv.NewMemoryStateStore(), "", testLogger())

	_, err := svc.Connect(context.Background(), 404, "")
	var nf *errs.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = svc.Connect(context.Background(), noCreds.ID, "")
	var ve *errs.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestConnectService_Callback_Validation(t *testing.T) {
	store := newTestStorage(t)
	svc := NewConnectService(store, &fakeAuthorizer{store: store}, kv.NewMemoryStateStore(), "", testLogger())

	tests := []struct {
		name      string
		code      string
		state     string
		wantField string
	}{
		{"missing state", "abc", "", "state"},
		{"missing code", "", "s1", "code"},
		{"unknown state", "abc", "never-issued", "state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Callback(context.Background(), tt.code, tt.state, "")
			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestConnectService_Callback_ExchangeFailure(t *testing.T) {
	store := newTestStorage(t)
	account := seedAccount(t, store, "cid")
	states := kv.NewMemoryStateStore()
	auth := &fakeAuthorizer{store: store, err: &errs.AuthError{AccountID: account.ID, Reason: "code rejected"}}
	svc := NewConnectService(store, auth, states, "https://fixed/cb", testLogger())
	ctx := context.Background()

	require.NoError(t, states.Put(ctx, "s1", account.ID, time.Minute))

	_, err := svc.Callback(ctx, "bad", "s1", svc.RedirectURI(RequestOrigin{Host: "ignored"}))
	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "https://fixed/cb", auth.redirect)

	stored, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.AccountDisconnected, stored.Status)
}

type failingStates struct{}

func (failingStates) Put(context.Context, string, int64, time.Duration) error {
	return errors.New("redis down")
}

func (failingStates) Consume(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestConnectService_StateStoreFailure(t *testing.T) {
	store := newTestStorage(t)
	account := seedAccount(t, store, "cid")
	svc := NewConnectService(store, &fakeAuthorizer{store: store}, failingStates{}, "", testLogger())

	_, err := svc.Connect(context.Background(), account.ID, "")
	assert.ErrorContains(t, err, "redis down")

	_, err = svc.Callback(context.Background(), "abc", "s1", "")
	assert.ErrorContains(t, err, "redis down")
	var ve *errs.ValidationError
	assert.False(t, errors.As(err, &ve))
}
