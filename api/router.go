package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chrisdd2/federated-login/internal/services"
	"github.com/chrisdd2/federated-login/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInternal         = errors.New("internal server error")
)

type ApiError struct {
	Message string `json:"message"`
}

type Provider struct {
	Name     model.Provider `json:"name"`
	LoginUrl string         `json:"loginUrl"`
}

func sendError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	render.Status(r, statusCode)
	render.JSON(w, r, ApiError{Message: err.Error()})
}

func V1Api(idps *services.Registry, sessions *services.SessionBinder, cookieName string) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, struct {
			Message string
		}{Message: "ok"})
	})
	r.Get("/providers", func(w http.ResponseWriter, r *http.Request) {
		ret := []Provider{}
		for _, idp := range idps.List() {
			ret = append(ret, Provider{Name: idp.Name(), LoginUrl: "/auth/" + idp.Name().Slug()})
		}
		render.JSON(w, r, ret)
	})
	r.With(guardMiddleware(sessions, cookieName)).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, getUser(r))
	})
	return r
}

type userCtxKey struct{}

var UserCtxKey = userCtxKey{}

func getUser(r *http.Request) *model.UserProfile {
	usr, ok := r.Context().Value(UserCtxKey).(*model.UserProfile)
	if !ok {
		return &model.UserProfile{}
	}
	return usr
}

// guardMiddleware accepts the session token as a bearer token or as the browser's session cookie.
func guardMiddleware(sessions *services.SessionBinder, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				if c, err := r.Cookie(cookieName); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				sendError(w, r, ErrNotAuthenticated, http.StatusUnauthorized)
				return
			}
			usr, err := sessions.Deserialize(r.Context(), token)
			if err != nil {
				slog.Error("api", "path", r.URL.Path, "err", fmt.Errorf("sessions.Deserialize: %w", err).Error())
				sendError(w, r, ErrInternal, http.StatusInternalServerError)
				return
			}
			if usr == nil {
				sendError(w, r, ErrNotAuthenticated, http.StatusUnauthorized)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), UserCtxKey, usr))
			next.ServeHTTP(w, r)
		})
	}
}
