package store

import (
	"context"
	"sync"

	"github.com/tradesignals/broker-gateway/src/models"
)

// InMemoryCredentialStore is a map-backed credential store. Durable storage
// belongs to the external persistence layer; this implementation backs tests
// and single-process deployments of the refresh daemon.
type InMemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*models.BrokerCredential
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		creds: make(map[string]*models.BrokerCredential),
	}
}

func (s *InMemoryCredentialStore) ListOAuthCredentials(ctx context.Context) ([]*models.BrokerCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.BrokerCredential, 0, len(s.creds))
	for _, cred := range s.creds {
		if cred.Method == models.AuthMethodOAuth2 {
			copied := *cred
			result = append(result, &copied)
		}
	}

	return result, nil
}

func (s *InMemoryCredentialStore) SaveCredential(ctx context.Context, cred *models.BrokerCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.creds[cred.Key()] = &copied

	return nil
}

func (s *InMemoryCredentialStore) GetCredential(ctx context.Context, userID, brokerKey string) (*models.BrokerCredential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[userID+":"+brokerKey]
	if !ok {
		return nil, false
	}

	copied := *cred

	return &copied, true
}

func (s *InMemoryCredentialStore) DeleteCredential(ctx context.Context, userID, brokerKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.creds, userID+":"+brokerKey)
}
