package idp

import (
	"context"
	"testing"

	"github.com/dgellow/idbroker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_ConfigurationErrors(t *testing.T) {
	base := config.IDPConfig{
		Provider:      config.IDPGoogle,
		ClientID:      "client",
		ClientSecret:  "secret",
		RedirectURI:   "https://broker.example.com/callback",
		AllowedEmails: []string{"a@example.com"},
	}

	tests := []struct {
		name   string
		mutate func(*config.IDPConfig)
		field  string
	}{
		{name: "missing client id", mutate: func(c *config.IDPConfig) { c.ClientID = "" }, field: "clientId"},
		{name: "missing client secret", mutate: func(c *config.IDPConfig) { c.ClientSecret = "" }, field: "clientSecret"},
		{name: "empty allow-list", mutate: func(c *config.IDPConfig) { c.AllowedEmails = []string{" ", ""} }, field: "allowedEmails"},
		{name: "unknown provider", mutate: func(c *config.IDPConfig) { c.Provider = "github" }, field: "provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)

			_, err := NewClient(context.Background(), cfg)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNewClient_OIDCDiscoveryNotContactedOnBadCredentials(t *testing.T) {
	// An unreachable discovery URL proves validation happens first
	_, err := NewClient(context.Background(), config.IDPConfig{
		Provider:      config.IDPOIDC,
		DiscoveryURL:  "http://127.0.0.1:1/.well-known/openid-configuration",
		ClientID:      "client",
		AllowedEmails: []string{"a@example.com"},
	})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "clientSecret", cfgErr.Field)
}

func TestNewClient_Providers(t *testing.T) {
	google, err := NewClient(context.Background(), config.IDPConfig{
		Provider:      config.IDPGoogle,
		ClientID:      "client",
		ClientSecret:  "secret",
		AllowedEmails: []string{"a@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "google", google.ProviderType())
	assert.True(t, google.VerifiesIDTokens())

	oidcWithoutKeys, err := NewClient(context.Background(), config.IDPConfig{
		Provider:         config.IDPOIDC,
		ClientID:         "client",
		ClientSecret:     "secret",
		AllowedEmails:    []string{"a@example.com"},
		AuthorizationURL: "https://idp.example.com/authorize",
		TokenURL:         "https://idp.example.com/token",
		UserInfoURL:      "https://idp.example.com/userinfo",
	})
	require.NoError(t, err)
	assert.Equal(t, "oidc", oidcWithoutKeys.ProviderType())
	assert.False(t, oidcWithoutKeys.VerifiesIDTokens())

	oidcWithKeys, err := NewClient(context.Background(), config.IDPConfig{
		Provider:         config.IDPOIDC,
		ClientID:         "client",
		ClientSecret:     "secret",
		AllowedEmails:    []string{"a@example.com"},
		AuthorizationURL: "https://idp.example.com/authorize",
		TokenURL:         "https://idp.example.com/token",
		UserInfoURL:      "https://idp.example.com/userinfo",
		Issuer:           "https://idp.example.com",
		JWKSURL:          "https://idp.example.com/jwks",
	})
	require.NoError(t, err)
	assert.True(t, oidcWithKeys.VerifiesIDTokens())
}
