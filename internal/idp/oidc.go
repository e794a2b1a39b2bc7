package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// OIDCConfig configures a generic OIDC provider.
type OIDCConfig struct {
	// ProviderType identifies this provider, "oidc" when empty.
	ProviderType string

	// Discovery URL for OIDC discovery (optional if endpoints are provided directly).
	DiscoveryURL string

	// Direct endpoint configuration (used if DiscoveryURL is not set).
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	// Issuer and JWKSURL enable ID token verification. Discovery fills them in.
	Issuer  string
	JWKSURL string

	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// HTTPClient is used for discovery; http.DefaultClient with a timeout when nil.
	HTTPClient *http.Client
}

// OIDCProvider implements the Provider interface for OIDC-compliant identity providers.
type OIDCProvider struct {
	providerType string
	config       oauth2.Config
	userInfoURL  string
	issuer       string
	jwksURL      string
}

type oidcDiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

type oidcUserInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// NewOIDCProvider creates a new OIDC provider. With a DiscoveryURL this
// performs one HTTP request at startup.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	authURL, tokenURL, userInfoURL := cfg.AuthorizationURL, cfg.TokenURL, cfg.UserInfoURL
	issuer, jwksURL := cfg.Issuer, cfg.JWKSURL

	if cfg.DiscoveryURL != "" {
		client := cfg.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 10 * time.Second}
		}
		discovery, err := fetchOIDCDiscovery(ctx, client, cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		authURL = discovery.AuthorizationEndpoint
		tokenURL = discovery.TokenEndpoint
		userInfoURL = discovery.UserInfoEndpoint
		if issuer == "" {
			issuer = discovery.Issuer
		}
		if jwksURL == "" {
			jwksURL = discovery.JWKSURI
		}
	} else if authURL == "" || tokenURL == "" || userInfoURL == "" {
		return nil, fmt.Errorf("either discoveryUrl or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	providerType := cfg.ProviderType
	if providerType == "" {
		providerType = "oidc"
	}

	return &OIDCProvider{
		providerType: providerType,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
				// Auto-detection retries a failed exchange with the other
				// style, which would replay a single-use code.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: userInfoURL,
		issuer:      issuer,
		jwksURL:     jwksURL,
	}, nil
}

func fetchOIDCDiscovery(ctx context.Context, client *http.Client, discoveryURL string) (*oidcDiscoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("discovery endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var discovery oidcDiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if discovery.AuthorizationEndpoint == "" || discovery.TokenEndpoint == "" || discovery.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing required endpoints")
	}

	return &discovery, nil
}

func (p *OIDCProvider) Type() string {
	return p.providerType
}

func (p *OIDCProvider) AuthURL(state, scope string) string {
	return authCodeURL(&p.config, state, scope)
}

func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches user identity from the OIDC userinfo endpoint.
func (p *OIDCProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	var userInfoResp oidcUserInfoResponse
	if err := fetchUserInfo(ctx, &p.config, token, p.userInfoURL, &userInfoResp); err != nil {
		return nil, err
	}

	return &Identity{
		ProviderType:  p.providerType,
		Subject:       userInfoResp.Sub,
		Email:         userInfoResp.Email,
		EmailVerified: userInfoResp.EmailVerified,
		Name:          userInfoResp.Name,
		GivenName:     userInfoResp.GivenName,
		FamilyName:    userInfoResp.FamilyName,
		Picture:       userInfoResp.Picture,
	}, nil
}

// Issuer returns the issuer ID tokens must carry, empty when unknown
func (p *OIDCProvider) Issuer() string {
	return p.issuer
}

// JWKSURL returns where the provider publishes its signing keys, empty when unknown
func (p *OIDCProvider) JWKSURL() string {
	return p.jwksURL
}
