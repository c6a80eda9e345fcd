package user

import (
	"crypto/subtle"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
)

var ErrUnknownToken = errors.New("unknown bearer token")

type Authenticator interface {
	Authenticate(token string) (User, error)
}

// TokenAuthenticator resolves bearer tokens to users from a static token -> owner map.
type TokenAuthenticator struct {
	tokens map[string]string
}

func NewTokenAuthenticator(tokens map[string]string) *TokenAuthenticator {
	cleaned := make(map[string]string, len(tokens))
	for token, owner := range tokens {
		token, owner = strings.TrimSpace(token), strings.TrimSpace(owner)
		if token == "" || owner == "" {
			log.Warn("ignoring auth token entry with empty token or owner")
			continue
		}
		cleaned[token] = owner
	}
	if len(cleaned) == 0 {
		log.Warn("no auth tokens configured, every API request will be rejected")
	}
	return &TokenAuthenticator{tokens: cleaned}
}

func (a *TokenAuthenticator) Authenticate(token string) (User, error) {
	if token == "" {
		return User{}, ErrUnknownToken
	}
	for known, owner := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return User{Name: owner}, nil
		}
	}
	return User{}, ErrUnknownToken
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
