package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chrisdd2/federated-login/internal/services/cache"
	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret-key-32-bytes-long!!")

func newSessionFixture(t *testing.T) (*storage.InMemoryStore, *SessionBinder, *model.UserProfile) {
	st := storage.NewInMemoryStore()
	user := model.NewUserProfile(annLee())
	require.NoError(t, st.CreateProfile(context.Background(), user))
	return st, NewSessionBinder(st, testKey, time.Hour), user
}

func TestSession_RoundTrip(t *testing.T) {
	_, s, user := newSessionFixture(t)

	token, err := s.Serialize(user)
	require.NoError(t, err)
	assert.NotContains(t, token, "Ann Lee")

	got, err := s.Deserialize(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.Id, got.Id)
	assert.Equal(t, user.DisplayName, got.DisplayName)
}

func TestSession_TokensAreDistinct(t *testing.T) {
	_, s, user := newSessionFixture(t)
	a, err := s.Serialize(user)
	require.NoError(t, err)
	b, err := s.Serialize(user)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSession_Anonymous(t *testing.T) {
	_, s, user := newSessionFixture(t)
	valid, err := s.Serialize(user)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString(testKey)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.Id},
	}).SignedString(testKey)
	require.NoError(t, err)

	noId, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(testKey)
	require.NoError(t, err)

	otherKey, err := NewSessionBinder(storage.NewInMemoryStore(), []byte("another-key"), time.Hour).Serialize(user)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"tampered":  valid[:len(valid)-2] + "xx",
		"expired":   expired,
		"no expiry": noExpiry,
		"no id":     noId,
		"other key": otherKey,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := s.Deserialize(context.Background(), token)
			assert.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestSession_MissingProfileIsAnonymous(t *testing.T) {
	s := NewSessionBinder(storage.NewInMemoryStore(), testKey, time.Hour)
	token, err := s.Serialize(&model.UserProfile{Provider: model.ProviderTwitter, Id: "gone"})
	require.NoError(t, err)

	got, err := s.Deserialize(context.Background(), token)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSession_StoreErrorPropagates(t *testing.T) {
	st, _, user := newSessionFixture(t)
	boom := errors.New("connection reset")
	s := NewSessionBinder(failingStore{Storage: st, getErr: boom}, testKey, time.Hour)
	token, err := s.Serialize(user)
	require.NoError(t, err)

	got, err := s.Deserialize(context.Background(), token)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestSession_SerializeRequiresId(t *testing.T) {
	s := NewSessionBinder(storage.NewInMemoryStore(), testKey, 0)
	assert.Equal(t, DefaultSessionExpiration, s.Expiration())
	_, err := s.Serialize(nil)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, err = s.Serialize(&model.UserProfile{Provider: model.ProviderGoogle})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestSession_RevokedIsAnonymous(t *testing.T) {
	_, s, user := newSessionFixture(t)
	ctx := context.Background()
	ended, err := s.Serialize(user)
	require.NoError(t, err)
	other, err := s.Serialize(user)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, ended))

	got, err := s.Deserialize(ctx, ended)
	assert.NoError(t, err)
	assert.Nil(t, got)

	// only the revoked token is affected
	got, err = s.Deserialize(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.Id, got.Id)
}

func TestSession_RevokeIgnoresInvalidTokens(t *testing.T) {
	_, s, _ := newSessionFixture(t)
	assert.NoError(t, s.Revoke(context.Background(), ""))
	assert.NoError(t, s.Revoke(context.Background(), "not-a-token"))
}

type brokenRevocations struct{ err error }

func (b brokenRevocations) Revoke(context.Context, string, time.Time) error { return b.err }
func (b brokenRevocations) IsRevoked(context.Context, string) (bool, error) { return false, b.err }

func TestSession_RevocationErrorPropagates(t *testing.T) {
	_, s, user := newSessionFixture(t)
	boom := errors.New("redis down")
	s.WithRevocations(brokenRevocations{err: boom})
	token, err := s.Serialize(user)
	require.NoError(t, err)

	_, err = s.Deserialize(context.Background(), token)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Revoke(context.Background(), token), boom)
}

func TestSession_SharedRevocations(t *testing.T) {
	st, a, user := newSessionFixture(t)
	shared := cache.NewMemoryRevocations()
	a.WithRevocations(shared)
	b := NewSessionBinder(st, testKey, time.Hour).WithRevocations(shared)

	token, err := a.Serialize(user)
	require.NoError(t, err)
	require.NoError(t, a.Revoke(context.Background(), token))

	got, err := b.Deserialize(context.Background(), token)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
