package services

import (
	"context"
	"fmt"

	"github.com/chrisdd2/federated-login/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

const FacebookGraphUrl = "https://graph.facebook.com"

type facebookUser struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`
	Email      string `json:"email"`
	Picture    struct {
		Data struct {
			Url string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (u facebookUser) Profile() *model.NormalizedProfile {
	return &model.NormalizedProfile{
		Provider:    model.ProviderFacebook,
		Id:          u.Id,
		DisplayName: u.Name,
		Name: model.Name{
			FamilyName: u.LastName,
			GivenName:  u.FirstName,
			MiddleName: u.MiddleName,
		},
		Emails: model.Values(u.Email),
		Photos: model.Values(u.Picture.Data.Url),
	}
}

type FacebookService struct {
	oauthCfg *oauth2.Config
	graphUrl string
}

func NewFacebook(clientId string, clientSecret string, redirectUrl string) *FacebookService {
	return NewFacebookWithEndpoint(facebook.Endpoint, FacebookGraphUrl, clientId, clientSecret, redirectUrl)
}

func NewFacebookWithEndpoint(endpoint oauth2.Endpoint, graphUrl string, clientId string, clientSecret string, redirectUrl string) *FacebookService {
	return &FacebookService{
		oauthCfg: &oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  redirectUrl,
			Endpoint:     endpoint,
			Scopes:       []string{"public_profile", "email"},
		},
		graphUrl: graphUrl,
	}
}

func (f *FacebookService) Name() model.Provider {
	return model.ProviderFacebook
}

func (f *FacebookService) CallbackPath() string {
	return "/auth/facebook/callback"
}

func (f *FacebookService) AuthCodeURL(state string, verifier string) string {
	return authCodeURL(f.oauthCfg, state, verifier)
}

func (f *FacebookService) Exchange(ctx context.Context, code string, verifier string) (*model.NormalizedProfile, error) {
	token, err := exchange(ctx, f.oauthCfg, code, verifier)
	if err != nil {
		return nil, err
	}
	user := facebookUser{}
	url := f.graphUrl + "/me?fields=id,name,first_name,last_name,middle_name,email,picture"
	if err := fetchJson(ctx, f.oauthCfg, token, url, &user); err != nil {
		return nil, fmt.Errorf("facebook graph /me %w", err)
	}
	if user.Id == "" {
		return nil, ErrMissingSubject
	}
	return user.Profile(), nil
}
