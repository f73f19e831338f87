package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/chrisdd2/federated-login/model"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider = model.ErrUnknownProvider
	ErrMissingCode     = errors.New("missing code parameter")
	ErrMissingSubject  = errors.New("provider returned no user id")
	ErrInvalidState    = errors.New("state does not match")
)

// AuthService is one identity provider adapter. It only normalizes the provider's
// assertion, deciding what to do with it is up to the IdentityResolver.
type AuthService interface {
	Name() model.Provider
	CallbackPath() string
	// AuthCodeURL is where the browser is sent, verifier is the PKCE code verifier
	AuthCodeURL(state string, verifier string) string
	Exchange(ctx context.Context, code string, verifier string) (*model.NormalizedProfile, error)
}

// ProviderError is what a provider sends back instead of a code, e.g. access_denied.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider error [%s]", e.Code)
	}
	return fmt.Sprintf("provider error [%s] %s", e.Code, e.Description)
}

// CodeFromRequest extracts the authorization code from a callback request.
func CodeFromRequest(r *http.Request) (string, error) {
	query := r.URL.Query()
	if e := query.Get("error"); e != "" {
		return "", &ProviderError{Code: e, Description: query.Get("error_description")}
	}
	code := query.Get("code")
	if code == "" {
		return "", ErrMissingCode
	}
	return code, nil
}

type Registry struct {
	byName map[model.Provider]AuthService
	order  []AuthService
}

func NewRegistry(list ...AuthService) *Registry {
	r := &Registry{byName: map[model.Provider]AuthService{}}
	for _, p := range list {
		if _, ok := r.byName[p.Name()]; ok {
			continue
		}
		r.byName[p.Name()] = p
		r.order = append(r.order, p)
	}
	return r
}

// Get accepts the canonical tag or the route slug.
func (r *Registry) Get(name string) (AuthService, error) {
	p, err := model.ParseProvider(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	svc, ok := r.byName[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return svc, nil
}

func (r *Registry) List() []AuthService {
	return r.order
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string, verifier string) (*oauth2.Token, error) {
	opts := []oauth2.AuthCodeOption{}
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("oauth2.Exchange %w", err)
	}
	return token, nil
}

func authCodeURL(cfg *oauth2.Config, state string, verifier string, extra ...oauth2.AuthCodeOption) string {
	opts := append([]oauth2.AuthCodeOption{}, extra...)
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// fetchJson does an authenticated GET with the client oauth2 hands out for the token.
func fetchJson(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := cfg.Client(ctx, token).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Join(err, fmt.Errorf("fetchJson [%d] [%s]", resp.StatusCode, string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
