package oauth

import (
	"net/url"
	"strings"
)

// AuthorizationServerMetadata builds OAuth 2.0 Authorization Server Metadata per RFC 8414
// https://datatracker.ietf.org/doc/html/rfc8414
func AuthorizationServerMetadata(issuer string) (map[string]any, error) {
	authzEndpoint, err := url.JoinPath(issuer, "authorize")
	if err != nil {
		return nil, err
	}

	tokenEndpoint, err := url.JoinPath(issuer, "token")
	if err != nil {
		return nil, err
	}

	registerEndpoint, err := url.JoinPath(issuer, "register")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"issuer":                 issuer,
		"authorization_endpoint": authzEndpoint,
		"token_endpoint":         tokenEndpoint,
		"registration_endpoint":  registerEndpoint,
		"response_types_supported": []string{
			"code",
		},
		"grant_types_supported": []string{
			"authorization_code",
			"refresh_token",
		},
		"code_challenge_methods_supported": []string{
			"S256",
		},
		"token_endpoint_auth_methods_supported": []string{
			"none",
			"client_secret_post",
			"client_secret_basic",
		},
		"scopes_supported": DefaultClientScopes(),
	}, nil
}

// AuthorizationServerMetadataURI returns the well-known URI for the authorization server metadata.
func AuthorizationServerMetadataURI(issuer string) (string, error) {
	return url.JoinPath(issuer, ".well-known", "oauth-authorization-server")
}

// ClientMetadata is the RFC 7591 client information response
type ClientMetadata struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   *int64   `json:"client_secret_expires_at,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// BuildClientMetadata describes a registered client. plainSecret is only
// known right after registration and is omitted otherwise.
func BuildClientMetadata(client *RegisteredClient, name, plainSecret string) ClientMetadata {
	md := ClientMetadata{
		ClientID:                client.ID,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
		ClientName:              name,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   strings.Join(client.Scopes, " "),
		TokenEndpointAuthMethod: "none",
	}
	if !client.Public {
		md.TokenEndpointAuthMethod = "client_secret_post"
		if plainSecret != "" {
			md.ClientSecret = plainSecret
			never := int64(0)
			md.ClientSecretExpiresAt = &never
		}
	}
	return md
}
