package sync_client

import (
	"context"
	"sync"

	"github.com/calsync/calsync/internal/event_bus"
	log "github.com/sirupsen/logrus"
)

// AuthContext supplies the bearer credential at call time.
type AuthContext interface {
	Credential(ctx context.Context) (token string, ok bool)
}

// StaticCredential is a fixed bearer token. The empty value means "not signed in".
type StaticCredential string

func (c StaticCredential) Credential(context.Context) (string, bool) {
	return string(c), c != ""
}

// Session is a replaceable credential. Changing it publishes
// event_bus.CredentialChanged so views can drop data fetched for the previous account.
type Session struct {
	mu    sync.RWMutex
	token string
	bus   *event_bus.EventBus
}

func NewSession(token string, bus *event_bus.EventBus) *Session {
	return &Session{token: token, bus: bus}
}

func (s *Session) Credential(context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken replaces the credential. An empty token signs the session out.
func (s *Session) SetToken(ctx context.Context, token string) {
	s.mu.Lock()
	changed := s.token != token
	s.token = token
	s.mu.Unlock()

	if !changed || s.bus == nil {
		return
	}
	err := s.bus.Publish(event_bus.NewEvent(ctx, event_bus.CredentialChangedType, event_bus.CredentialChanged{
		HasCredential: token != "",
	}))
	if err != nil {
		log.Errorf("failed to publish credential change: %v", err)
	}
}

func (s *Session) SignOut(ctx context.Context) {
	s.SetToken(ctx, "")
}
