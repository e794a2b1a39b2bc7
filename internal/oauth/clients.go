package oauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/idbroker/internal/config"
	"github.com/dgellow/idbroker/internal/crypto"
	"github.com/dgellow/idbroker/internal/log"
	"github.com/ory/fosite"
	"github.com/ory/fosite/storage"
)

// RegisteredClient is a fosite client plus registration bookkeeping
type RegisteredClient struct {
	*fosite.DefaultClient
	CreatedAt time.Time
}

// ClientStore is the fosite storage backend. Codes, tokens and PKCE sessions
// live in fosite's memory store; clients are kept here so that dynamic
// registration is safe for concurrent use.
type ClientStore struct {
	*storage.MemoryStore

	mu      sync.RWMutex
	clients map[string]*RegisteredClient
}

// NewClientStore creates a store preloaded with the statically configured
// clients. Confidential client secrets are bcrypt-hashed before they are
// kept.
func NewClientStore(clients []config.ClientConfig) (*ClientStore, error) {
	s := &ClientStore{
		MemoryStore: storage.NewMemoryStore(),
		clients:     make(map[string]*RegisteredClient, len(clients)),
	}

	for _, c := range clients {
		scopes := c.Scopes
		if len(scopes) == 0 {
			scopes = DefaultClientScopes()
		}
		client := newDefaultClient(c.ID, c.RedirectURIs, scopes, c.Public)
		if !c.Public {
			hashed, err := crypto.HashClientSecret(string(c.Secret))
			if err != nil {
				return nil, fmt.Errorf("hashing secret for client %s: %w", c.ID, err)
			}
			client.Secret = hashed
		}
		s.put(client)
		log.LogInfoWithFields("oauth", "Registered static client", map[string]any{
			"client_id": c.ID,
			"public":    c.Public,
		})
	}
	return s, nil
}

func newDefaultClient(id string, redirectURIs, scopes []string, public bool) *fosite.DefaultClient {
	return &fosite.DefaultClient{
		ID:            id,
		RedirectURIs:  redirectURIs,
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
		Scopes:        scopes,
		Public:        public,
	}
}

func (s *ClientStore) put(client *fosite.DefaultClient) *RegisteredClient {
	rc := &RegisteredClient{DefaultClient: client, CreatedAt: time.Now()}
	s.mu.Lock()
	s.clients[client.ID] = rc
	s.mu.Unlock()
	return rc
}

// GetClient implements fosite.ClientManager
func (s *ClientStore) GetClient(_ context.Context, id string) (fosite.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	return c.DefaultClient, nil
}

// GetRegisteredClient returns a client with its registration time
func (s *ClientStore) GetRegisteredClient(_ context.Context, id string) (*RegisteredClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	return c, nil
}

// RegisterClient stores a dynamically registered client. For confidential
// clients a secret is generated and returned in plain text exactly once.
func (s *ClientStore) RegisterClient(reg ClientRegistration) (*RegisteredClient, string, error) {
	clientID, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, "", fmt.Errorf("generating client id: %w", err)
	}

	client := newDefaultClient(clientID, reg.RedirectURIs, reg.Scopes, reg.Public)

	var plainSecret string
	if !reg.Public {
		plainSecret, err = crypto.GenerateSecureToken()
		if err != nil {
			return nil, "", fmt.Errorf("generating client secret: %w", err)
		}
		hashed, err := crypto.HashClientSecret(plainSecret)
		if err != nil {
			return nil, "", fmt.Errorf("hashing client secret: %w", err)
		}
		client.Secret = hashed
	}

	rc := s.put(client)
	log.LogInfoWithFields("oauth", "Registered dynamic client", map[string]any{
		"client_id":     clientID,
		"public":        reg.Public,
		"redirect_uris": reg.RedirectURIs,
	})
	return rc, plainSecret, nil
}
