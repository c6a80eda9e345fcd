package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/calsync/calsync/internal/test_utils"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/oauth2"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTokenRepository(t *testing.T) (context.Context, *TokenRepositoryImpl) {
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		err := test_utils.Restore(ctx, pgContainer)
		require.NoError(t, err)
	})
	return ctx, NewTokenRepository(db)
}

func TestTokenRepositoryImpl(t *testing.T) {
	t.Run("should store token for login nonce", func(t *testing.T) {
		// given
		ctx, repo := setupTokenRepository(t)
		expiry := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
		require.NoError(t, repo.StartLogin(ctx, "registrar", "nonce-1"))

		// when
		owner, err := repo.StoreToken(ctx, "nonce-1", &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: expiry})

		// then
		require.NoError(t, err)
		assert.Equal(t, "registrar", owner)
		token, err := repo.GetToken(ctx, "registrar")
		require.NoError(t, err)
		require.NotNil(t, token)
		assert.Equal(t, "access-1", token.AccessToken)
		assert.Equal(t, "refresh-1", token.RefreshToken)
		assert.True(t, expiry.Equal(token.Expiry))
	})

	t.Run("should not return token of pending login", func(t *testing.T) {
		ctx, repo := setupTokenRepository(t)
		require.NoError(t, repo.StartLogin(ctx, "registrar", "nonce-1"))

		token, err := repo.GetToken(ctx, "registrar")

		require.NoError(t, err)
		assert.Nil(t, token)
	})

	t.Run("should replace previous token on new login", func(t *testing.T) {
		ctx, repo := setupTokenRepository(t)
		require.NoError(t, repo.StartLogin(ctx, "registrar", "nonce-1"))
		_, err := repo.StoreToken(ctx, "nonce-1", &oauth2.Token{AccessToken: "access-1"})
		require.NoError(t, err)

		require.NoError(t, repo.StartLogin(ctx, "registrar", "nonce-2"))

		token, err := repo.GetToken(ctx, "registrar")
		require.NoError(t, err)
		assert.Nil(t, token)
		_, err = repo.StoreToken(ctx, "nonce-1", &oauth2.Token{AccessToken: "stale"})
		assert.ErrorIs(t, err, ErrUnknownNonce)
	})

	t.Run("should delete token", func(t *testing.T) {
		ctx, repo := setupTokenRepository(t)
		require.NoError(t, repo.StartLogin(ctx, "registrar", "nonce-1"))
		_, err := repo.StoreToken(ctx, "nonce-1", &oauth2.Token{AccessToken: "access-1"})
		require.NoError(t, err)

		require.NoError(t, repo.DeleteToken(ctx, "registrar"))

		token, err := repo.GetToken(ctx, "registrar")
		require.NoError(t, err)
		assert.Nil(t, token)
	})
}
