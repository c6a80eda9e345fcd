package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

var ErrUnknownNonce = errors.New("unknown or expired login nonce")

// TokenRepository stores one Google OAuth token per owner. A login starts with a
// nonce row that the OAuth callback later fills with the token.
type TokenRepository interface {
	StartLogin(ctx context.Context, owner string, nonce string) error
	StoreToken(ctx context.Context, nonce string, token *oauth2.Token) (string, error)
	GetToken(ctx context.Context, owner string) (*oauth2.Token, error)
	DeleteToken(ctx context.Context, owner string) error
}

type TokenRepositoryImpl struct {
	db *pgxpool.Pool
}

func NewTokenRepository(db *pgxpool.Pool) *TokenRepositoryImpl {
	return &TokenRepositoryImpl{db: db}
}

// StartLogin replaces any previous token of owner with a fresh login nonce.
func (r *TokenRepositoryImpl) StartLogin(ctx context.Context, owner string, nonce string) error {
	query := `INSERT INTO google_auth (owner, nonce) VALUES ($1, $2)
			  ON CONFLICT (owner) DO UPDATE
			  SET nonce = EXCLUDED.nonce, access_token = '', refresh_token = '', expiry = NULL, created_at = now()`
	if _, err := r.db.Exec(ctx, query, owner, nonce); err != nil {
		return fmt.Errorf("failed to store login nonce: %w", err)
	}
	return nil
}

// StoreToken saves the token for the login identified by nonce and returns its owner.
func (r *TokenRepositoryImpl) StoreToken(ctx context.Context, nonce string, token *oauth2.Token) (string, error) {
	query := `UPDATE google_auth SET access_token = $1, refresh_token = $2, expiry = $3
			  WHERE nonce = $4
			  RETURNING owner`
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		expiry = &token.Expiry
	}
	var owner string
	err := r.db.QueryRow(ctx, query, token.AccessToken, token.RefreshToken, expiry, nonce).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnknownNonce
	}
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return owner, nil
}

// GetToken returns nil without an error when owner has not completed a login.
func (r *TokenRepositoryImpl) GetToken(ctx context.Context, owner string) (*oauth2.Token, error) {
	query := `SELECT access_token, refresh_token, expiry FROM google_auth
			  WHERE owner = $1 AND access_token <> ''`
	var token oauth2.Token
	var expiry *time.Time
	err := r.db.QueryRow(ctx, query, owner).Scan(&token.AccessToken, &token.RefreshToken, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google auth token: %w", err)
	}
	if expiry != nil {
		token.Expiry = *expiry
	}
	return &token, nil
}

func (r *TokenRepositoryImpl) DeleteToken(ctx context.Context, owner string) error {
	if _, err := r.db.Exec(ctx, "DELETE FROM google_auth WHERE owner = $1", owner); err != nil {
		return fmt.Errorf("failed to delete Google auth token: %w", err)
	}
	return nil
}
