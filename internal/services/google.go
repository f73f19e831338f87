package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrisdd2/federated-login/model"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const GoogleIssuer = "https://accounts.google.com"

type GoogleClaims struct {
	Subject    string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	MiddleName string `json:"middle_name"`
	Email      string `json:"email"`
	Verified   bool   `json:"email_verified"`
	Picture    string `json:"picture"`
}

func (c GoogleClaims) Profile() *model.NormalizedProfile {
	displayName := c.Name
	if displayName == "" {
		displayName = c.Email
	}
	return &model.NormalizedProfile{
		Provider:    model.ProviderGoogle,
		Id:          c.Subject,
		DisplayName: displayName,
		Name: model.Name{
			FamilyName: c.FamilyName,
			GivenName:  c.GivenName,
			MiddleName: c.MiddleName,
		},
		Emails: model.Values(c.Email),
		Photos: model.Values(c.Picture),
	}
}

type GoogleService struct {
	verifier *oidc.IDTokenVerifier
	oauthCfg *oauth2.Config
}

// NewGoogle discovers the provider configuration, this does network I/O.
func NewGoogle(ctx context.Context, clientId string, clientSecret string, redirectUrl string) (*GoogleService, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc.NewProvider %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{
		ClientID: clientId,
	})
	return NewGoogleWithVerifier(provider.Endpoint(), verifier, clientId, clientSecret, redirectUrl), nil
}

func NewGoogleWithVerifier(endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, clientId string, clientSecret string, redirectUrl string) *GoogleService {
	return &GoogleService{
		verifier: verifier,
		oauthCfg: &oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  redirectUrl,
			Endpoint:     endpoint,
			Scopes: []string{
				oidc.ScopeOpenID,
				"email",
				"profile",
			},
		},
	}
}

func (g *GoogleService) Name() model.Provider {
	return model.ProviderGoogle
}

func (g *GoogleService) CallbackPath() string {
	return "/auth/google/return"
}

func (g *GoogleService) AuthCodeURL(state string, verifier string) string {
	return authCodeURL(g.oauthCfg, state, verifier, oauth2.AccessTypeOnline)
}

func (g *GoogleService) Exchange(ctx context.Context, code string, verifier string) (*model.NormalizedProfile, error) {
	token, err := exchange(ctx, g.oauthCfg, code, verifier)
	if err != nil {
		return nil, err
	}
	idTokenRaw, ok := token.Extra("id_token").(string)
	if !ok || idTokenRaw == "" {
		return nil, errors.New("token.Extra [missing id_token in token]")
	}
	idToken, err := g.verifier.Verify(ctx, idTokenRaw)
	if err != nil {
		return nil, fmt.Errorf("oidc.Verify %w", err)
	}
	claims := GoogleClaims{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("idToken.Claims %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims.Profile(), nil
}
