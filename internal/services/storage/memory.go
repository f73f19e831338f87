package storage

import (
	"context"
	"sync"

	"github.com/chrisdd2/federated-login/model"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*model.UserProfile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: map[string]*model.UserProfile{}}
}

func (s *InMemoryStore) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	if err := Validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.Id]; ok {
		return ErrProfileExists
	}
	stored := stamp(p)
	p.CreatedAt = stored.CreatedAt
	s.profiles[p.Id] = stored
	return nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

func (s *InMemoryStore) Close() error {
	return nil
}
