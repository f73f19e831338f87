package webui

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/chrisdd2/federated-login/appconfig"
	assets "github.com/chrisdd2/federated-login/embed"
	"github.com/chrisdd2/federated-login/internal/services"
	"github.com/chrisdd2/federated-login/webui/templates"
	"github.com/go-chi/chi/v5"
)

type WebUi struct {
	appCfg   *appconfig.AppConfig
	version  string
	idps     *services.Registry
	resolver *services.IdentityResolver
	sessions *services.SessionBinder
	guard    *sessionGuard
}

func Router(appCfg *appconfig.AppConfig, version string, idps *services.Registry, resolver *services.IdentityResolver, sessions *services.SessionBinder) chi.Router {
	ui := &WebUi{
		appCfg:   appCfg,
		version:  version,
		idps:     idps,
		resolver: resolver,
		sessions: sessions,
		guard: &sessionGuard{
			sessions:   sessions,
			cookieName: appCfg.Session.CookieName,
			secure:     appCfg.SecureCookies(),
			devMode:    appCfg.DevelopmentMode,
		},
	}

	r := chi.NewRouter()
	staticFs, err := fs.Sub(assets.AssetsFs, "assets")
	if err != nil {
		panic(err.Error())
	}
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServerFS(staticFs)))

	r.Group(func(r chi.Router) {
		r.Use(ui.guard.optional)
		r.Get("/", ui.handleIndex)
		r.Get("/login", ui.handleLogin)
	})
	r.Get("/logout", ui.guard.logout)
	r.Get("/auth/{provider}", ui.handleAuth)
	for _, idp := range idps.List() {
		r.Get(idp.CallbackPath(), ui.handleCallback(idp))
	}
	return r
}

func (ui *WebUi) page(r *http.Request, title string) *templates.PageData {
	user, _ := userFromRequest(r)
	return templates.TemplateData(user, title, ui.appCfg.Name, ui.version)
}

func (ui *WebUi) handleIndex(w http.ResponseWriter, r *http.Request) {
	ui.render(w, r, "index.html", ui.page(r, ui.appCfg.Name))
}

func (ui *WebUi) handleLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := userFromRequest(r); ok {
		// already logged
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	data := ui.page(r, "Login")
	for _, idp := range ui.idps.List() {
		data.Providers = append(data.Providers, templates.ProviderLink{
			Label: idp.Name().String(),
			Path:  "/auth/" + idp.Name().Slug(),
		})
	}
	ui.render(w, r, "login.html", data)
}

func (ui *WebUi) handleAuth(w http.ResponseWriter, r *http.Request) {
	idp, err := ui.idps.Get(chi.URLParam(r, "provider"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	st := newAuthState()
	setStateCookie(w, idp.Name().Slug(), st, ui.guard.secure)
	http.Redirect(w, r, idp.AuthCodeURL(st.State, st.Verifier), http.StatusTemporaryRedirect)
}

func (ui *WebUi) handleCallback(idp services.AuthService) http.HandlerFunc {
	slug := idp.Name().Slug()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		st, err := popState(w, r, slug, ui.guard.secure)
		if err != nil {
			ui.loginFailed(w, r, slug, err)
			return
		}
		code, err := services.CodeFromRequest(r)
		if err != nil {
			ui.loginFailed(w, r, slug, err)
			return
		}
		profile, err := idp.Exchange(ctx, code, st.Verifier)
		if err != nil {
			ui.loginFailed(w, r, slug, err)
			return
		}
		user, err := ui.resolver.Resolve(ctx, *profile)
		if errors.Is(err, services.ErrInvalidIdentity) {
			ui.loginFailed(w, r, slug, err)
			return
		}
		if err != nil {
			serverError(w, r, ui.appCfg.DevelopmentMode, "resolve", err)
			return
		}
		token, err := ui.sessions.Serialize(user)
		if err != nil {
			serverError(w, r, ui.appCfg.DevelopmentMode, "session", err)
			return
		}
		ui.guard.setSession(w, token)
		slog.Info("login", "provider", slug, "id", user.Id)
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
	}
}

func (ui *WebUi) loginFailed(w http.ResponseWriter, r *http.Request, provider string, err error) {
	slog.Warn("login_failed", "provider", provider, "err", err.Error())
	http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
}

func (ui *WebUi) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if err := templates.RenderPage(w, name, data); err != nil {
		slog.Error("render", "template", name, "path", r.URL.Path, "err", err.Error())
	}
}
