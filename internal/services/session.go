package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrisdd2/federated-login/internal/services/cache"
	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultSessionExpiration = time.Hour * 24

type SessionClaims struct {
	jwt.RegisteredClaims
	Provider model.Provider `json:"provider,omitempty"`
}

// SessionBinder keeps only the profile id in the session and reloads the
// profile from the store on every request. Tokens ended by Revoke stay
// anonymous until they expire.
type SessionBinder struct {
	store      storage.Storage
	key        any
	expiration time.Duration
	revoked    cache.Revocations
}

func NewSessionBinder(store storage.Storage, key []byte, expiration time.Duration) *SessionBinder {
	if expiration <= 0 {
		expiration = DefaultSessionExpiration
	}
	return &SessionBinder{store: store, key: key, expiration: expiration, revoked: cache.NewMemoryRevocations()}
}

// WithRevocations replaces the in-process revocation list, e.g. with one shared through redis.
func (s *SessionBinder) WithRevocations(r cache.Revocations) *SessionBinder {
	if r != nil {
		s.revoked = r
	}
	return s
}

func (s *SessionBinder) Expiration() time.Duration {
	return s.expiration
}

func (s *SessionBinder) Serialize(user *model.UserProfile) (string, error) {
	if user == nil || user.Id == "" {
		return "", ErrInvalidIdentity
	}
	now := time.Now().UTC()
	claims := SessionClaims{
		Provider: user.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Deserialize returns a nil user without error for an anonymous session:
// no token, a token that does not validate or was revoked, or a profile that no longer exists.
func (s *SessionBinder) Deserialize(ctx context.Context, tokenStr string) (*model.UserProfile, error) {
	if tokenStr == "" {
		return nil, nil
	}
	claims, err := s.validate(tokenStr)
	if err != nil {
		return nil, nil
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("revocations.IsRevoked: %w", err)
	}
	if revoked {
		return nil, nil
	}
	user, err := s.store.GetProfile(ctx, claims.Subject)
	if errors.Is(err, storage.ErrProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetProfile: %w", err)
	}
	return user, nil
}

// Revoke ends the session carried by tokenStr. A token that does not validate
// is already anonymous and is ignored.
func (s *SessionBinder) Revoke(ctx context.Context, tokenStr string) error {
	if tokenStr == "" {
		return nil
	}
	claims, err := s.validate(tokenStr)
	if err != nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revocations.Revoke: %w", err)
	}
	return nil
}

func (s *SessionBinder) validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, errors.New("unable to parse claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if claims.ID == "" {
		return nil, errors.New("token has no id")
	}
	return claims, nil
}
