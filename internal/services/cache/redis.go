package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chrisdd2/federated-login/model"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(ctx context.Context, addr string, password string, db int, prefix string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis.Ping: %w", err)
	}
	return NewRedisFromClient(client, prefix, ttl), nil
}

func NewRedisFromClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

func (r *Redis) Get(ctx context.Context, id string) (*model.UserProfile, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	p := &model.UserProfile{}
	if err := json.Unmarshal(val, p); err != nil {
		return nil, fmt.Errorf("cache: failed to unmarshal: %w", err)
	}
	return p, nil
}

func (r *Redis) Set(ctx context.Context, p *model.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal: %w", err)
	}
	return r.client.Set(ctx, r.key(p.Id), data, r.ttl).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
