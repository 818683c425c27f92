package store

import (
	"context"
	"sync"

	"signage-agent-go/internal/domain/session/model"
)

type memoryStore struct {
	mutex    sync.RWMutex
	values   map[string]string
	sentinel bool
}

// NewMemory builds an in-memory session store. State does not survive the
// process, which makes it suitable for tests and ephemeral deployments only.
func NewMemory() Store {
	return &memoryStore{
		values: make(map[string]string),
	}
}

func (s *memoryStore) SaveCredentials(_ context.Context, creds model.Credentials) error {
	s.mutex.Lock()
	s.values[KeyUsername] = creds.Username
	s.values[KeyPassword] = creds.Password
	s.values[KeyScreenName] = creds.ScreenName
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) LoadCredentials(_ context.Context) (model.Credentials, bool, error) {
	s.mutex.RLock()
	creds := model.Credentials{
		Username:   s.values[KeyUsername],
		Password:   s.values[KeyPassword],
		ScreenName: s.values[KeyScreenName],
	}
	s.mutex.RUnlock()

	if !creds.Complete() {
		return model.Credentials{}, false, nil
	}
	return creds, true, nil
}

func (s *memoryStore) ClearCredentials(_ context.Context) error {
	s.mutex.Lock()
	delete(s.values, KeyUsername)
	delete(s.values, KeyPassword)
	delete(s.values, KeyScreenName)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) SetLogoutSentinel(_ context.Context) error {
	s.mutex.Lock()
	s.sentinel = true
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) HasLogoutSentinel(_ context.Context) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.sentinel, nil
}

func (s *memoryStore) ClearLogoutSentinel(_ context.Context) error {
	s.mutex.Lock()
	s.sentinel = false
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return map[string]any{
		"type":     "memory",
		"keys":     len(s.values),
		"sentinel": s.sentinel,
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}
