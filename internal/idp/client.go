package idp

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Client wraps a Provider with the broker's access policy: the allow-list
// and, when available, ID token verification.
type Client struct {
	provider  Provider
	allowList AllowList
	verifier  *oidc.IDTokenVerifier
}

// NewClientWithProvider builds a Client around an existing provider.
// verifier may be nil, in which case ID tokens are ignored and only the
// authenticated userinfo response is trusted.
func NewClientWithProvider(provider Provider, allowedEmails []string, verifier *oidc.IDTokenVerifier) (*Client, error) {
	if provider == nil {
		return nil, &ConfigurationError{Field: "provider", Reason: "is required"}
	}
	allowList := NewAllowList(allowedEmails)
	if allowList.Len() == 0 {
		return nil, &ConfigurationError{Field: "allowedEmails", Reason: "must contain at least one email"}
	}
	return &Client{
		provider:  provider,
		allowList: allowList,
		verifier:  verifier,
	}, nil
}

// ProviderType returns the type of the underlying provider
func (c *Client) ProviderType() string {
	return c.provider.Type()
}

// VerifiesIDTokens reports whether ID tokens are checked
func (c *Client) VerifiesIDTokens() bool {
	return c.verifier != nil
}

// BuildAuthorizationURL returns the provider redirect for stateKey
func (c *Client) BuildAuthorizationURL(stateKey, scope string) string {
	if scope == "" {
		scope = DefaultScope
	}
	return c.provider.AuthURL(stateKey, scope)
}

// ExchangeCode trades an authorization code for tokens. It is never retried,
// codes are single use.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, asExchangeError(err)
	}
	return token, nil
}

// FetchIdentity returns the identity bound to token
func (c *Client) FetchIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	identity, err := c.provider.UserInfo(ctx, token)
	if err != nil {
		var identityErr *UpstreamIdentityError
		if errors.As(err, &identityErr) {
			return nil, err
		}
		return nil, &UpstreamIdentityError{Err: err}
	}

	if identity.Email == "" {
		return nil, &UpstreamIdentityError{Err: fmt.Errorf("provider returned no email")}
	}

	if c.verifier != nil {
		if err := verifyIDToken(ctx, c.verifier, token, identity); err != nil {
			return nil, &UpstreamIdentityError{Err: err}
		}
	}
	return identity, nil
}

// IsAllowed reports whether email may complete authentication
func (c *Client) IsAllowed(email string) bool {
	return c.allowList.Contains(email)
}

// Authenticate runs the callback leg of the login: exchange, identity fetch
// and allow-list check, strictly in that order. A denied identity is returned
// along with an *AllowListDeniedError so callers can report the email.
func (c *Client) Authenticate(ctx context.Context, code string) (*Identity, error) {
	token, err := c.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	identity, err := c.FetchIdentity(ctx, token)
	if err != nil {
		return nil, err
	}

	if !c.IsAllowed(identity.Email) {
		return identity, &AllowListDeniedError{Email: identity.Email}
	}
	return identity, nil
}
