package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in   string
		want Provider
	}{
		{"google", ProviderGoogle},
		{"Google", ProviderGoogle},
		{"TWITTER", ProviderTwitter},
		{" facebook ", ProviderFacebook},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParseProvider(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}

	_, err := ParseProvider("github")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	_, err = ParseProvider("")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProviderSlug(t *testing.T) {
	assert.Equal(t, "google", ProviderGoogle.Slug())
	assert.Equal(t, "twitter", ProviderTwitter.Slug())
	assert.Equal(t, "facebook", ProviderFacebook.Slug())
}

func TestNewUserProfile(t *testing.T) {
	n := NormalizedProfile{
		Provider:    ProviderGoogle,
		Id:          "g123",
		DisplayName: "Ann Lee",
		Name:        Name{GivenName: "Ann", FamilyName: "Lee"},
		Emails:      Values("ann@example.com", ""),
		Photos:      Values("https://example.com/ann.png"),
	}
	p := NewUserProfile(n)
	assert.Equal(t, ProviderGoogle, p.Provider)
	assert.Equal(t, "g123", p.Id)
	assert.Equal(t, "Ann Lee", p.DisplayName)
	assert.Equal(t, "ann@example.com", p.PrimaryEmail())
	assert.Equal(t, "https://example.com/ann.png", p.Photo())
	assert.Len(t, p.Emails, 1)

	// the record must not alias the adapter's slices
	n.Emails[0].Value = "changed@example.com"
	assert.Equal(t, "ann@example.com", p.PrimaryEmail())
}

func TestClone(t *testing.T) {
	var nilProfile *UserProfile
	assert.Nil(t, nilProfile.Clone())

	p := &UserProfile{Id: "x", Emails: Values("a@b.c")}
	c := p.Clone()
	c.Emails[0].Value = "other"
	assert.Equal(t, "a@b.c", p.PrimaryEmail())
	assert.Empty(t, (&UserProfile{}).Photo())
}
