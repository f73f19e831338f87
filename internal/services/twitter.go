package services

import (
	"context"
	"fmt"

	"github.com/chrisdd2/federated-login/model"
	"golang.org/x/oauth2"
)

var TwitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

const TwitterApiUrl = "https://api.twitter.com"

type twitterUser struct {
	Data struct {
		Id              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageUrl string `json:"profile_image_url"`
	} `json:"data"`
}

// Twitter does not give out email addresses to oauth2 apps, so emails stay empty.
func (u twitterUser) Profile() *model.NormalizedProfile {
	displayName := u.Data.Name
	if displayName == "" {
		displayName = u.Data.Username
	}
	return &model.NormalizedProfile{
		Provider:    model.ProviderTwitter,
		Id:          u.Data.Id,
		DisplayName: displayName,
		Photos:      model.Values(u.Data.ProfileImageUrl),
	}
}

type TwitterService struct {
	oauthCfg *oauth2.Config
	apiUrl   string
}

func NewTwitter(clientId string, clientSecret string, redirectUrl string) *TwitterService {
	return NewTwitterWithEndpoint(TwitterEndpoint, TwitterApiUrl, clientId, clientSecret, redirectUrl)
}

func NewTwitterWithEndpoint(endpoint oauth2.Endpoint, apiUrl string, clientId string, clientSecret string, redirectUrl string) *TwitterService {
	return &TwitterService{
		oauthCfg: &oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  redirectUrl,
			Endpoint:     endpoint,
			Scopes:       []string{"users.read", "tweet.read"},
		},
		apiUrl: apiUrl,
	}
}

func (t *TwitterService) Name() model.Provider {
	return model.ProviderTwitter
}

func (t *TwitterService) CallbackPath() string {
	return "/auth/twitter/callback"
}

func (t *TwitterService) AuthCodeURL(state string, verifier string) string {
	return authCodeURL(t.oauthCfg, state, verifier)
}

func (t *TwitterService) Exchange(ctx context.Context, code string, verifier string) (*model.NormalizedProfile, error) {
	token, err := exchange(ctx, t.oauthCfg, code, verifier)
	if err != nil {
		return nil, err
	}
	user := twitterUser{}
	if err := fetchJson(ctx, t.oauthCfg, token, t.apiUrl+"/2/users/me?user.fields=profile_image_url", &user); err != nil {
		return nil, fmt.Errorf("twitter users/me %w", err)
	}
	if user.Data.Id == "" {
		return nil, ErrMissingSubject
	}
	return user.Profile(), nil
}
