package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chrisdd2/federated-login/model"
)

var (
	ErrProfileNotFound = errors.New("ProfileNotFound")
	ErrProfileExists   = errors.New("ProfileExists")
	ErrInvalidProfile  = errors.New("InvalidProfile")
)

// Storage persists user profiles keyed by the provider issued id.
// There is no update path: CreateProfile must fail with ErrProfileExists when the id is taken.
type Storage interface {
	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	CreateProfile(ctx context.Context, p *model.UserProfile) error
	Close() error
}

type Event struct {
	Id       string            `json:"id,omitempty"`
	Time     time.Time         `json:"time"`
	Type     string            `json:"type,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

const (
	EventProfileCreated = "profile_created"
	EventLogin          = "login"
)

type Eventer interface {
	Publish(ctx context.Context, eventType string, metadata map[string]string) error
}

type ConsoleEventer struct{}

func (c ConsoleEventer) Publish(ctx context.Context, eventType string, metadata map[string]string) error {
	slog.Info("event", "type", eventType, "metadata", metadata)
	return nil
}

// EventerFor returns the store's own event sink when it has one.
func EventerFor(s Storage) Eventer {
	if ev, ok := s.(Eventer); ok {
		return ev
	}
	return ConsoleEventer{}
}

// Validate is the check every backend runs before persisting a new profile.
func Validate(p *model.UserProfile) error {
	if p == nil || p.Id == "" || p.Provider == "" {
		return ErrInvalidProfile
	}
	return nil
}

func stamp(p *model.UserProfile) *model.UserProfile {
	c := p.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	return c
}
