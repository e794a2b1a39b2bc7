package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// DefaultScope is requested from the provider when the caller passes none
const DefaultScope = "openid email profile"

// maxErrorBody bounds how much of a failed provider response is kept
const maxErrorBody = 4096

// Identity represents the verified user attributes returned by a provider
type Identity struct {
	ProviderType  string `json:"provider_type"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// DisplayName is the name to show for the identity, falling back to the email
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// Provider abstracts the protocol of one identity provider. Access policy
// lives in Client, not here.
type Provider interface {
	// Type returns the provider type identifier (e.g., "google", "oidc").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow. An empty
	// scope keeps the provider's configured scopes.
	AuthURL(state, scope string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the identity bound to token.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// authCodeURL builds the redirect with offline access and forced consent.
// Forcing consent stops the provider from silently reusing a stale session.
func authCodeURL(cfg *oauth2.Config, state, scope string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	}
	if scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", scope))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// fetchUserInfo performs the bearer GET against a userinfo endpoint and
// decodes the JSON body into v
func fetchUserInfo(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, userInfoURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return &UpstreamIdentityError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cfg.Client(ctx, token).Do(req)
	if err != nil {
		return &UpstreamIdentityError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamIdentityError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &UpstreamIdentityError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode user info: %w", err)}
	}
	return nil
}
