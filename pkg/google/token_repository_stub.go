package google

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

type TokenRepositoryStub struct {
	mu     sync.Mutex
	nonces map[string]string
	tokens map[string]*oauth2.Token
}

func NewTokenRepositoryStub() *TokenRepositoryStub {
	return &TokenRepositoryStub{
		nonces: make(map[string]string),
		tokens: make(map[string]*oauth2.Token),
	}
}

func (s *TokenRepositoryStub) StartLogin(ctx context.Context, owner string, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n, o := range s.nonces {
		if o == owner {
			delete(s.nonces, n)
		}
	}
	delete(s.tokens, owner)
	s.nonces[nonce] = owner
	return nil
}

func (s *TokenRepositoryStub) StoreToken(ctx context.Context, nonce string, token *oauth2.Token) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.nonces[nonce]
	if !ok {
		return "", ErrUnknownNonce
	}
	s.tokens[owner] = token
	return owner, nil
}

func (s *TokenRepositoryStub) GetToken(ctx context.Context, owner string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[owner], nil
}

func (s *TokenRepositoryStub) DeleteToken(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, owner)
	for n, o := range s.nonces {
		if o == owner {
			delete(s.nonces, n)
		}
	}
	return nil
}

// SetToken stores token for owner as if a login had completed.
func (s *TokenRepositoryStub) SetToken(owner string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[owner] = token
}
