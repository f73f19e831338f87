package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chrisdd2/federated-login/internal/services"
	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/model"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieName = "passport_session"

type downStore struct {
	storage.Storage
}

func (downStore) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	return nil, errors.New("connection refused")
}

func newApi(t *testing.T, st storage.Storage) (chi.Router, *services.SessionBinder) {
	sessions := services.NewSessionBinder(st, []byte("test-secret-key-32-bytes-long!!"), time.Hour)
	idps := services.NewRegistry(
		services.NewTwitter("id", "secret", ""),
		services.NewFacebook("id", "secret", ""),
	)
	return V1Api(idps, sessions, cookieName), sessions
}

func annLee(t *testing.T, st storage.Storage) *model.UserProfile {
	user := &model.UserProfile{
		Provider:    model.ProviderGoogle,
		Id:          "g123",
		DisplayName: "Ann Lee",
		Emails:      model.Values("ann@example.com"),
	}
	require.NoError(t, st.CreateProfile(context.Background(), user))
	return user
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newApi(t, storage.NewInMemoryStore())
	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Message":"ok"}`, rec.Body.String())
}

func TestProviders(t *testing.T) {
	h, _ := newApi(t, storage.NewInMemoryStore())
	rec := do(h, httptest.NewRequest(http.MethodGet, "/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name":"Twitter","loginUrl":"/auth/twitter"},
		{"name":"Facebook","loginUrl":"/auth/facebook"}
	]`, rec.Body.String())
}

func TestMe(t *testing.T) {
	st := storage.NewInMemoryStore()
	h, sessions := newApi(t, st)
	token, err := sessions.Serialize(annLee(t, st))
	require.NoError(t, err)

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := do(h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		got := model.UserProfile{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "g123", got.Id)
		assert.Equal(t, "Ann Lee", got.DisplayName)
		assert.Equal(t, model.ProviderGoogle, got.Provider)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		rec := do(h, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := do(h, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"not authenticated"}`, rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, do(h, req).Code)
	})
}

func TestMe_StoreDown(t *testing.T) {
	st := storage.NewInMemoryStore()
	user := annLee(t, st)
	h, sessions := newApi(t, downStore{Storage: st})
	token, err := sessions.Serialize(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := do(h, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestMe_RevokedToken(t *testing.T) {
	st := storage.NewInMemoryStore()
	h, sessions := newApi(t, st)
	token, err := sessions.Serialize(annLee(t, st))
	require.NoError(t, err)
	require.NoError(t, sessions.Revoke(context.Background(), token))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, do(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	assert.Equal(t, http.StatusUnauthorized, do(h, req).Code)
}
