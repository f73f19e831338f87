package webui

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/chrisdd2/federated-login/internal/services"
	"golang.org/x/oauth2"
)

const (
	stateCookiePrefix = "passport_state_"
	stateCookiePath   = "/auth"
	stateMaxAge       = 10 * time.Minute
)

// authState ties a callback to the browser that started the login.
type authState struct {
	State    string
	Verifier string
}

func newAuthState() authState {
	buf := make([]byte, 24)
	rand.Read(buf)
	return authState{
		State:    base64.RawURLEncoding.EncodeToString(buf),
		Verifier: oauth2.GenerateVerifier(),
	}
}

func (a authState) encode() string {
	return a.State + "." + a.Verifier
}

func stateCookieName(slug string) string {
	return stateCookiePrefix + slug
}

func setStateCookie(w http.ResponseWriter, slug string, st authState, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(slug),
		Value:    st.encode(),
		Path:     stateCookiePath,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateMaxAge / time.Second),
	})
}

// popState clears the state cookie and checks it against the callback's state parameter.
func popState(w http.ResponseWriter, r *http.Request, slug string, secure bool) (authState, error) {
	cookie, err := r.Cookie(stateCookieName(slug))
	if err != nil {
		return authState{}, services.ErrInvalidState
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(slug),
		Path:     stateCookiePath,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	state, verifier, ok := strings.Cut(cookie.Value, ".")
	if !ok || state == "" || verifier == "" {
		return authState{}, services.ErrInvalidState
	}
	given := r.URL.Query().Get("state")
	if subtle.ConstantTimeCompare([]byte(state), []byte(given)) != 1 {
		return authState{}, services.ErrInvalidState
	}
	return authState{State: state, Verifier: verifier}, nil
}
