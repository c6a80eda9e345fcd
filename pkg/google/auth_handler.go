package google

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/calsync/calsync/internal/config"
	"github.com/calsync/calsync/internal/rest"
	"github.com/calsync/calsync/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const CallbackPath = "/api/integrations/google/auth/callback"

type googleAuthRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

type GoogleAuth struct {
	tokens      TokenRepository
	oauthConfig *oauth2.Config
}

func NewGoogleAuth(tokens TokenRepository, cfg config.Application) *GoogleAuth {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Google.ClientId,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  strings.TrimSuffix(cfg.Host, "/") + CallbackPath,
		Scopes:       []string{calendar.CalendarEventsScope, calendar.CalendarReadonlyScope},
	}

	return &GoogleAuth{tokens: tokens, oauthConfig: oauthConfig}
}

func (g *GoogleAuth) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	owner, err := user.CurrentOwner(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		rest.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	stateNonce := uuid.New().String()
	finalUrl := r.URL.Query().Get("finalUrl")

	if err := g.tokens.StartLogin(r.Context(), owner, stateNonce); err != nil {
		log.Errorf("failed to store Google auth nonce for %s: %v", owner, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle Google authentication", "")
		return
	}

	log.Tracef("Redirecting to Google auth URL with nonce: %s", stateNonce)
	u := g.oauthConfig.AuthCodeURL(finalUrl+"|"+stateNonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	rest.WriteJSON(w, http.StatusOK, googleAuthRedirect{RedirectUrl: u})
}

// OAuthCallback is called by the browser after the Google consent screen, so it
// carries no bearer token. The owner is recovered from the login nonce.
func (g *GoogleAuth) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	finalUrl, nonce, found := strings.Cut(r.FormValue("state"), "|")
	if !found || nonce == "" {
		rest.WriteError(w, http.StatusBadRequest, "Invalid OAuth state", "")
		return
	}

	token, err := g.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		log.Errorf("unable to exchange code for token: %v", err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}

	owner, err := g.tokens.StoreToken(r.Context(), nonce, token)
	if err != nil {
		if errors.Is(err, ErrUnknownNonce) {
			log.Warnf("Google auth callback with unknown nonce: %s", nonce)
		} else {
			log.Errorf("unable to store Google auth token for nonce: %v", err)
		}
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}
	log.Debugf("Successfully stored Google auth token for %s", owner)
	http.Redirect(w, r, finalUrl+"?success=true", http.StatusFound)
}

func (g *GoogleAuth) OAuthLogout(w http.ResponseWriter, r *http.Request) {
	owner, err := user.CurrentOwner(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		rest.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	if err := g.tokens.DeleteToken(r.Context(), owner); err != nil {
		log.Errorf("failed to delete Google auth token for %s: %v", owner, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle Google authentication", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getClient returns nil without an error when owner has not connected Google.
func (g *GoogleAuth) getClient(ctx context.Context, owner string) (*http.Client, error) {
	token, err := g.tokens.GetToken(ctx, owner)
	if err != nil {
		log.Error(err)
		return nil, err
	}
	if token == nil {
		return nil, nil
	}
	return g.oauthConfig.Client(context.Background(), token), nil
}
