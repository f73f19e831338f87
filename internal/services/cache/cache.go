// Package cache provides a read-through cache in front of a profile store.
//
// Profiles are never updated once created, so a cached entry can only go stale
// by expiring. Misses are never cached.
package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/model"
)

var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, id string) (*model.UserProfile, error)
	Set(ctx context.Context, p *model.UserProfile) error
	Close() error
}

type CachedStorage struct {
	storage.Storage
	cache Cache
}

func NewCachedStorage(st storage.Storage, c Cache) *CachedStorage {
	return &CachedStorage{Storage: st, cache: c}
}

func (s *CachedStorage) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	p, err := s.cache.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrMiss) {
		slog.Warn("cache", "op", "get", "id", id, "err", err.Error())
	}
	p, err = s.Storage.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, p)
	return p, nil
}

func (s *CachedStorage) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	if err := s.Storage.CreateProfile(ctx, p); err != nil {
		return err
	}
	s.fill(ctx, p)
	return nil
}

// Publish forwards to the wrapped store's event sink.
func (s *CachedStorage) Publish(ctx context.Context, eventType string, metadata map[string]string) error {
	return storage.EventerFor(s.Storage).Publish(ctx, eventType, metadata)
}

func (s *CachedStorage) Close() error {
	return errors.Join(s.cache.Close(), s.Storage.Close())
}

// cache errors only cost a store round trip later
func (s *CachedStorage) fill(ctx context.Context, p *model.UserProfile) {
	if err := s.cache.Set(ctx, p); err != nil {
		slog.Warn("cache", "op", "set", "id", p.Id, "err", err.Error())
	}
}
