package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/calsync/calsync/internal/config"
	"github.com/calsync/calsync/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func setupAuthTest(t *testing.T) (*GoogleAuth, *TokenRepositoryStub, *fakeGoogle) {
	fake := newFakeGoogle(t)
	tokens := NewTokenRepositoryStub()
	cfg := config.Defaults()
	cfg.Host = "https://calsync.example.edu/"
	cfg.Google = config.Google{ClientId: "client-id", ClientSecret: "client-secret"}
	auth := NewGoogleAuth(tokens, cfg)
	auth.oauthConfig.Endpoint = oauth2.Endpoint{
		AuthURL:  fake.server.URL + "/auth",
		TokenURL: fake.server.URL + "/token",
	}
	return auth, tokens, fake
}

func authenticated(r *http.Request, owner string) *http.Request {
	return r.WithContext(user.WithUser(r.Context(), user.User{Name: owner}))
}

func login(t *testing.T, auth *GoogleAuth, owner string) (state string) {
	req := authenticated(httptest.NewRequest(http.MethodGet, "/api/integrations/google/auth/login?finalUrl=https://app.example.edu/settings", nil), owner)
	w := httptest.NewRecorder()

	auth.OAuthLogin(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var redirect googleAuthRedirect
	require.NoError(t, json.NewDecoder(w.Body).Decode(&redirect))
	u, err := url.Parse(redirect.RedirectUrl)
	require.NoError(t, err)
	assert.Equal(t, "https://calsync.example.edu"+CallbackPath, u.Query().Get("redirect_uri"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	return u.Query().Get("state")
}

func callback(auth *GoogleAuth, code, state string) *httptest.ResponseRecorder {
	target := CallbackPath + "?code=" + url.QueryEscape(code) + "&state=" + url.QueryEscape(state)
	w := httptest.NewRecorder()
	auth.OAuthCallback(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestGoogleAuth_LoginFlow(t *testing.T) {
	t.Run("should store token for the owner of the nonce", func(t *testing.T) {
		// given
		auth, tokens, _ := setupAuthTest(t)
		state := login(t, auth, "registrar")
		require.True(t, strings.HasPrefix(state, "https://app.example.edu/settings|"))

		// when
		w := callback(auth, "good-code", state)

		// then
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://app.example.edu/settings?success=true", w.Header().Get("Location"))
		token, err := tokens.GetToken(context.Background(), "registrar")
		require.NoError(t, err)
		require.NotNil(t, token)
		assert.Equal(t, "access-1", token.AccessToken)
		assert.Equal(t, "refresh-1", token.RefreshToken)
	})

	t.Run("should report failed exchange", func(t *testing.T) {
		auth, tokens, _ := setupAuthTest(t)
		state := login(t, auth, "registrar")

		w := callback(auth, "bad-code", state)

		assert.Equal(t, "https://app.example.edu/settings?success=false", w.Header().Get("Location"))
		token, _ := tokens.GetToken(context.Background(), "registrar")
		assert.Nil(t, token)
	})

	t.Run("should reject unknown nonce", func(t *testing.T) {
		auth, _, _ := setupAuthTest(t)

		w := callback(auth, "good-code", "https://app.example.edu/settings|not-a-nonce")

		assert.Equal(t, "https://app.example.edu/settings?success=false", w.Header().Get("Location"))
	})

	t.Run("should reject malformed state", func(t *testing.T) {
		auth, _, _ := setupAuthTest(t)

		w := callback(auth, "good-code", "no-separator")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should require an authenticated user to log in", func(t *testing.T) {
		auth, _, _ := setupAuthTest(t)
		w := httptest.NewRecorder()

		auth.OAuthLogin(w, httptest.NewRequest(http.MethodGet, "/api/integrations/google/auth/login", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGoogleAuth_Logout(t *testing.T) {
	auth, tokens, _ := setupAuthTest(t)
	tokens.SetToken("registrar", &oauth2.Token{AccessToken: "access-1"})
	w := httptest.NewRecorder()

	auth.OAuthLogout(w, authenticated(httptest.NewRequest(http.MethodDelete, "/api/integrations/google/auth/logout", nil), "registrar"))

	assert.Equal(t, http.StatusNoContent, w.Code)
	token, _ := tokens.GetToken(context.Background(), "registrar")
	assert.Nil(t, token)
}

func TestService_UsesOwnerToken(t *testing.T) {
	// given
	auth, tokens, fake := setupAuthTest(t)
	service := NewService(auth, option.WithEndpoint(fake.server.URL+"/"))
	tokens.SetToken("registrar", &oauth2.Token{AccessToken: "access-1", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)})
	ctx := user.WithUser(context.Background(), user.User{Name: "registrar"})

	// when
	calendars, err := service.ListCalendars(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, []CalendarItem{
		{ID: "primary", Summary: "Registrar"},
		{ID: "enrollment@group.calendar.google.com", Summary: "Enrollment"},
	}, calendars)
	assert.Equal(t, "Bearer access-1", fake.authorization())

	_, err = service.GetCalendar(ctx, "dean", "primary")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
