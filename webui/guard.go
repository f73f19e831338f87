package webui

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chrisdd2/federated-login/internal/services"
	"github.com/chrisdd2/federated-login/model"
)

type sessionGuard struct {
	sessions   *services.SessionBinder
	cookieName string
	secure     bool
	devMode    bool
}

// optional attaches the session user when there is one, anonymous requests pass through.
func (g *sessionGuard) optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(g.cookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		user, err := g.sessions.Deserialize(r.Context(), cookie.Value)
		if err != nil {
			serverError(w, r, g.devMode, "session", err)
			return
		}
		if user == nil {
			// stale or forged session, drop it
			g.clearSession(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserContext, user)))
	})
}

func (g *sessionGuard) setSession(w http.ResponseWriter, token string) {
	expiration := g.sessions.Expiration()
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(expiration),
		MaxAge:   int(expiration / time.Second),
	})
}

func (g *sessionGuard) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// logout revokes the session token before dropping the cookie, a copy of the
// cookie kept elsewhere stops working too.
func (g *sessionGuard) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(g.cookieName); err == nil {
		if err := g.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			serverError(w, r, g.devMode, "logout", err)
			return
		}
	}
	g.clearSession(w)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

type userContext struct{}

var UserContext userContext

func userFromRequest(r *http.Request) (*model.UserProfile, bool) {
	usr, ok := r.Context().Value(UserContext).(*model.UserProfile)
	return usr, ok && usr != nil
}

// serverError hides the cause from the client unless running in development mode.
func serverError(w http.ResponseWriter, r *http.Request, devMode bool, op string, err error) {
	slog.Error(op, "path", r.URL.Path, "err", err.Error())
	msg := http.StatusText(http.StatusInternalServerError)
	if devMode {
		msg = op + ": " + err.Error()
	}
	http.Error(w, msg, http.StatusInternalServerError)
}
