// Package storagetest holds the behaviour every profile store must share.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func AnnLee() *model.UserProfile {
	return &model.UserProfile{
		Provider:    model.ProviderGoogle,
		Id:          "g123",
		DisplayName: "Ann Lee",
		Name:        model.Name{GivenName: "Ann", FamilyName: "Lee"},
		Emails:      model.Values("ann@example.com"),
		Photos:      model.Values("https://example.com/ann.png"),
	}
}

func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	ctx := context.Background()

	t.Run("missing profile", func(t *testing.T) {
		st := newStore(t)
		_, err := st.GetProfile(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrProfileNotFound)
	})

	t.Run("create then get", func(t *testing.T) {
		st := newStore(t)
		p := AnnLee()
		require.NoError(t, st.CreateProfile(ctx, p))
		assert.False(t, p.CreatedAt.IsZero())

		got, err := st.GetProfile(ctx, "g123")
		require.NoError(t, err)
		assert.Equal(t, model.ProviderGoogle, got.Provider)
		assert.Equal(t, "g123", got.Id)
		assert.Equal(t, "Ann Lee", got.DisplayName)
		assert.Equal(t, p.Name, got.Name)
		assert.Equal(t, p.Emails, got.Emails)
		assert.Equal(t, p.Photos, got.Photos)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt), "created %s got %s", p.CreatedAt, got.CreatedAt)
	})

	t.Run("ids with separators", func(t *testing.T) {
		st := newStore(t)
		p := AnnLee()
		p.Id = "https://www.google.com/accounts/o8/id?id=AItOawk"
		require.NoError(t, st.CreateProfile(ctx, p))
		got, err := st.GetProfile(ctx, p.Id)
		require.NoError(t, err)
		assert.Equal(t, p.Id, got.Id)
	})

	t.Run("duplicate create keeps the first record", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.CreateProfile(ctx, AnnLee()))

		other := AnnLee()
		other.DisplayName = "Ann L."
		err := st.CreateProfile(ctx, other)
		assert.ErrorIs(t, err, storage.ErrProfileExists)

		got, err := st.GetProfile(ctx, "g123")
		require.NoError(t, err)
		assert.Equal(t, "Ann Lee", got.DisplayName)
	})

	t.Run("rejects incomplete records", func(t *testing.T) {
		st := newStore(t)
		assert.ErrorIs(t, st.CreateProfile(ctx, &model.UserProfile{Id: "x"}), storage.ErrInvalidProfile)
		assert.ErrorIs(t, st.CreateProfile(ctx, &model.UserProfile{Provider: model.ProviderTwitter}), storage.ErrInvalidProfile)
		assert.ErrorIs(t, st.CreateProfile(ctx, nil), storage.ErrInvalidProfile)
	})

	t.Run("optional fields may be empty", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.CreateProfile(ctx, &model.UserProfile{Provider: model.ProviderTwitter, Id: "t1"}))
		got, err := st.GetProfile(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, model.ProviderTwitter, got.Provider)
		assert.Empty(t, got.DisplayName)
		assert.Empty(t, got.Emails)
		assert.True(t, got.Name.IsZero())
	})

	t.Run("concurrent creates have one winner", func(t *testing.T) {
		st := newStore(t)
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = st.CreateProfile(ctx, &model.UserProfile{Provider: model.ProviderFacebook, Id: "fb-race"})
			}()
		}
		wg.Wait()
		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrProfileExists)
		}
		assert.Equal(t, 1, created)
	})
}
