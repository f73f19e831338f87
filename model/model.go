package model

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Provider string

const (
	ProviderGoogle   Provider = "Google"
	ProviderTwitter  Provider = "Twitter"
	ProviderFacebook Provider = "Facebook"
)

var Providers = []Provider{ProviderGoogle, ProviderTwitter, ProviderFacebook}

var ErrUnknownProvider = errors.New("unknown provider")

// ParseProvider accepts the canonical tag or the url slug, in any case.
func ParseProvider(v string) (Provider, error) {
	title := Provider(cases.Title(language.English).String(strings.TrimSpace(v)))
	for _, p := range Providers {
		if p == title {
			return p, nil
		}
	}
	return "", ErrUnknownProvider
}

// Slug is the lowercase form used in routes.
func (p Provider) Slug() string {
	return strings.ToLower(string(p))
}

func (p Provider) String() string {
	return string(p)
}

type Name struct {
	FamilyName string `json:"familyName,omitempty"`
	GivenName  string `json:"givenName,omitempty"`
	MiddleName string `json:"middleName,omitempty"`
}

func (n Name) IsZero() bool {
	return n == Name{}
}

type Value struct {
	Value string `json:"value"`
}

// Values builds a list skipping empty strings.
func Values(v ...string) []Value {
	ret := make([]Value, 0, len(v))
	for _, s := range v {
		if s == "" {
			continue
		}
		ret = append(ret, Value{Value: s})
	}
	return ret
}

// NormalizedProfile is what an identity provider adapter hands to the resolver.
type NormalizedProfile struct {
	Provider    Provider `json:"provider"`
	Id          string   `json:"id"`
	DisplayName string   `json:"displayName,omitempty"`
	Name        Name     `json:"name"`
	Emails      []Value  `json:"emails,omitempty"`
	Photos      []Value  `json:"photos,omitempty"`
}

type UserProfile struct {
	Provider    Provider  `json:"provider"`
	Id          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	Name        Name      `json:"name"`
	Emails      []Value   `json:"emails,omitempty"`
	Photos      []Value   `json:"photos,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewUserProfile stamps provider and id from the normalized profile and copies the rest.
func NewUserProfile(p NormalizedProfile) *UserProfile {
	return &UserProfile{
		Provider:    p.Provider,
		Id:          p.Id,
		DisplayName: p.DisplayName,
		Name:        p.Name,
		Emails:      append([]Value(nil), p.Emails...),
		Photos:      append([]Value(nil), p.Photos...),
	}
}

// Clone returns a deep copy so stores never hand out their own slices.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	c.Emails = append([]Value(nil), u.Emails...)
	c.Photos = append([]Value(nil), u.Photos...)
	return &c
}

func (u *UserProfile) PrimaryEmail() string {
	if len(u.Emails) == 0 {
		return ""
	}
	return u.Emails[0].Value
}

func (u *UserProfile) Photo() string {
	if len(u.Photos) == 0 {
		return ""
	}
	return u.Photos[0].Value
}
