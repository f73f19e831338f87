package cache

import (
	"context"
	"time"

	"github.com/chrisdd2/federated-login/model"
	gocache "github.com/patrickmn/go-cache"
)

type Memory struct {
	c *gocache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{c: gocache.New(ttl, time.Minute)}
}

func (m *Memory) Get(ctx context.Context, id string) (*model.UserProfile, error) {
	v, ok := m.c.Get(id)
	if !ok {
		return nil, ErrMiss
	}
	p, ok := v.(*model.UserProfile)
	if !ok {
		return nil, ErrMiss
	}
	return p.Clone(), nil
}

func (m *Memory) Set(ctx context.Context, p *model.UserProfile) error {
	m.c.SetDefault(p.Id, p.Clone())
	return nil
}

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
