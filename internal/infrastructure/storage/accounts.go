package storage

import (
	"context"
	"fmt"
	"time"
)

const accountColumns = `id, user_id, name, client_id, client_secret, access_token, refresh_token,
	token_expires_at, status, is_active, last_sync_at, created_at, updated_at`

// CreateAccount inserts a new merchant account and sets its ID
func (s *Storage) CreateAccount(ctx context.Context, a *MerchantAccount) error {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Status == "" {
		a.Status = AccountDisconnected
	}

	query := s.db.Rebind(`
	INSERT INTO merchant_accounts
	(user_id, name, client_id, client_secret, access_token, refresh_token,
	 token_expires_at, status, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`)

	err := s.db.QueryRowxContext(ctx, query,
		a.UserID, a.Name, a.ClientID, a.ClientSecret, a.AccessToken, a.RefreshToken,
		utcPtr(a.TokenExpiresAt), a.Status, a.IsActive, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by ID
func (s *Storage) GetAccount(ctx context.Context, id int64) (*MerchantAccount, error) {
	var a MerchantAccount
	err := s.db.GetContext(ctx, &a, s.db.Rebind(`SELECT `+accountColumns+` FROM merchant_accounts WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return &a, nil
}

// ListActiveAccounts returns active accounts ordered by id
func (s *Storage) ListActiveAccounts(ctx context.Context) ([]MerchantAccount, error) {
	var accounts []MerchantAccount
	err := s.db.SelectContext(ctx, &accounts, s.db.Rebind(
		`SELECT `+accountColumns+` FROM merchant_accounts WHERE is_active = ? ORDER BY id`), true)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateTokens stores a new token set and marks the account connected
func (s *Storage) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
	UPDATE merchant_accounts
	SET access_token = ?, refresh_token = ?, token_expires_at = ?, status = ?, updated_at = ?
	WHERE id = ?`),
		accessToken, refreshToken, expiresAt.UTC(), AccountConnected, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return expectRow(res, "account", id)
}

// SetAccountStatus updates the connection status
func (s *Storage) SetAccountStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE merchant_accounts SET status = ?, updated_at = ? WHERE id = ?`),
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set account status: %w", err)
	}
	return expectRow(res, "account", id)
}

// TouchLastSync records when the account was last synced
func (s *Storage) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE merchant_accounts SET last_sync_at = ?, updated_at = ? WHERE id = ?`),
		at.UTC(), time.Now().UTC(), id)
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
