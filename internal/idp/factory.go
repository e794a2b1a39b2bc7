package idp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dgellow/idbroker/internal/config"
	"github.com/dgellow/idbroker/internal/emailutil"
)

// NewClient validates cfg and builds the configured provider. Credential and
// allow-list problems are reported as *ConfigurationError before any network
// call is made.
func NewClient(ctx context.Context, cfg config.IDPConfig) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, &ConfigurationError{Field: "clientId", Reason: "is required"}
	}
	if cfg.ClientSecret == "" {
		return nil, &ConfigurationError{Field: "clientSecret", Reason: "is required"}
	}
	if len(emailutil.NormalizeList(cfg.AllowedEmails)) == 0 {
		return nil, &ConfigurationError{Field: "allowedEmails", Reason: "must contain at least one email"}
	}

	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewClientWithProvider(provider, cfg.AllowedEmails, newVerifier(provider, cfg.ClientID))
}

// NewProvider creates a Provider based on the IDPConfig.
func NewProvider(ctx context.Context, cfg config.IDPConfig) (Provider, error) {
	switch cfg.Provider {
	case config.IDPGoogle, "":
		return NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Scopes,
		), nil

	case config.IDPOIDC:
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "oidc",
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			Issuer:           cfg.Issuer,
			JWKSURL:          cfg.JWKSURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
		})

	default:
		return nil, &ConfigurationError{Field: "provider", Reason: fmt.Sprintf("%q is not supported", cfg.Provider)}
	}
}

// newVerifier returns nil when the provider's keys are unknown
func newVerifier(provider Provider, clientID string) *oidc.IDTokenVerifier {
	switch p := provider.(type) {
	case *GoogleProvider:
		return NewIDTokenVerifier(googleIssuer, googleJWKSURL, clientID)
	case *OIDCProvider:
		if p.Issuer() == "" || p.JWKSURL() == "" {
			return nil
		}
		return NewIDTokenVerifier(p.Issuer(), p.JWKSURL(), clientID)
	}
	return nil
}
