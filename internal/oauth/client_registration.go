package oauth

import (
	"fmt"
	"net/url"
	"strings"
)

// ClientRegistration is the parsed body of an RFC 7591 registration request
type ClientRegistration struct {
	ClientName   string
	RedirectURIs []string
	Scopes       []string
	Public       bool
}

// ParseClientRegistration parses dynamic client registration metadata.
// token_endpoint_auth_method "none" (the default) registers a public client,
// "client_secret_post" and "client_secret_basic" a confidential one.
// Failures are returned as *OAuthError carrying the RFC 7591 error code.
func ParseClientRegistration(metadata map[string]any) (*ClientRegistration, error) {
	reg := &ClientRegistration{Public: true}

	if uris, ok := metadata["redirect_uris"].([]any); ok {
		for _, uri := range uris {
			uriStr, ok := uri.(string)
			if !ok {
				continue
			}
			if err := validateRedirectURI(uriStr); err != nil {
				return nil, NewOAuthError(ErrCodeInvalidRedirectURI, err.Error())
			}
			reg.RedirectURIs = append(reg.RedirectURIs, uriStr)
		}
	}
	if len(reg.RedirectURIs) == 0 {
		return nil, NewOAuthError(ErrCodeInvalidRedirectURI, "no valid redirect URIs provided")
	}

	reg.Scopes = DefaultClientScopes()
	if clientScopes, ok := metadata["scope"].(string); ok {
		if strings.TrimSpace(clientScopes) != "" {
			reg.Scopes = strings.Fields(clientScopes)
		}
	}

	if name, ok := metadata["client_name"].(string); ok {
		reg.ClientName = name
	}

	if method, ok := metadata["token_endpoint_auth_method"].(string); ok {
		switch method {
		case "", "none":
		case "client_secret_post", "client_secret_basic":
			reg.Public = false
		default:
			return nil, NewOAuthError(ErrCodeInvalidClientMetadata,
				fmt.Sprintf("unsupported token_endpoint_auth_method %q", method))
		}
	}

	return reg, nil
}

// validateRedirectURI accepts absolute https URIs and plain http on loopback
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid redirect URI %q", raw)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI %q must not contain a fragment", raw)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("redirect URI %q must use https", raw)
	default:
		return fmt.Errorf("redirect URI %q has unsupported scheme", raw)
	}
}
