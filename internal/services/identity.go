package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/model"
)

var ErrInvalidIdentity = errors.New("InvalidIdentity")

// IdentityResolver maps a provider assertion onto a local profile.
// A profile is created on first login and returned unchanged on every login after that.
type IdentityResolver struct {
	store  storage.Storage
	events storage.Eventer
}

func NewIdentityResolver(store storage.Storage) *IdentityResolver {
	return &IdentityResolver{store: store, events: storage.EventerFor(store)}
}

func (r *IdentityResolver) Resolve(ctx context.Context, np model.NormalizedProfile) (*model.UserProfile, error) {
	if np.Id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidIdentity)
	}
	provider, err := model.ParseProvider(string(np.Provider))
	if err != nil {
		return nil, fmt.Errorf("%w: provider [%s]", ErrInvalidIdentity, np.Provider)
	}
	np.Provider = provider
	user, err := r.store.GetProfile(ctx, np.Id)
	if err == nil {
		r.loggedIn(ctx, user, false)
		return user, nil
	}
	if !errors.Is(err, storage.ErrProfileNotFound) {
		resolveErrorsTotal.WithLabelValues(string(np.Provider)).Inc()
		return nil, fmt.Errorf("storage.GetProfile: %w", err)
	}

	user = model.NewUserProfile(np)
	err = r.store.CreateProfile(ctx, user)
	if errors.Is(err, storage.ErrProfileExists) {
		// lost a concurrent first login, the winner's record stands
		createRacesTotal.Inc()
		user, err = r.store.GetProfile(ctx, np.Id)
		if err != nil {
			resolveErrorsTotal.WithLabelValues(string(np.Provider)).Inc()
			return nil, fmt.Errorf("storage.GetProfile: %w", err)
		}
		r.loggedIn(ctx, user, false)
		return user, nil
	}
	if err != nil {
		resolveErrorsTotal.WithLabelValues(string(np.Provider)).Inc()
		return nil, fmt.Errorf("storage.CreateProfile: %w", err)
	}
	r.loggedIn(ctx, user, true)
	return user, nil
}

func (r *IdentityResolver) loggedIn(ctx context.Context, user *model.UserProfile, created bool) {
	provider := string(user.Provider)
	meta := map[string]string{"id": user.Id, "provider": provider}
	if created {
		profilesCreatedTotal.WithLabelValues(provider).Inc()
		if err := r.events.Publish(ctx, storage.EventProfileCreated, meta); err != nil {
			slog.Warn("publish", "event", storage.EventProfileCreated, "err", err.Error())
		}
	}
	loginsTotal.WithLabelValues(provider).Inc()
	if err := r.events.Publish(ctx, storage.EventLogin, meta); err != nil {
		slog.Warn("publish", "event", storage.EventLogin, "err", err.Error())
	}
}
