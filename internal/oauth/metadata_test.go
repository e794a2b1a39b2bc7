package oauth

import (
	"testing"
	"time"

	"github.com/ory/fosite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationServerMetadata(t *testing.T) {
	tests := []struct {
		name      string
		issuer    string
		wantAuthz string
		wantErr   bool
	}{
		{
			name:      "valid issuer",
			issuer:    "https://example.com",
			wantAuthz: "https://example.com/authorize",
		},
		{
			name:      "issuer with path",
			issuer:    "https://example.com/oauth",
			wantAuthz: "https://example.com/oauth/authorize",
		},
		{
			name:    "invalid issuer",
			issuer:  "://invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata, err := AuthorizationServerMetadata(tt.issuer)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.issuer, metadata["issuer"])
			assert.Equal(t, tt.wantAuthz, metadata["authorization_endpoint"])
			assert.NotEmpty(t, metadata["token_endpoint"])
			assert.NotEmpty(t, metadata["registration_endpoint"])
			assert.Equal(t, []string{"S256"}, metadata["code_challenge_methods_supported"])
		})
	}
}

func TestAuthorizationServerMetadataURI(t *testing.T) {
	uri, err := AuthorizationServerMetadataURI("https://auth.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/.well-known/oauth-authorization-server", uri)
}

func TestBuildClientMetadata(t *testing.T) {
	created := time.Unix(1700000000, 0)

	t.Run("public", func(t *testing.T) {
		client := &RegisteredClient{
			DefaultClient: newDefaultClient("abc", []string{"https://app/cb"}, []string{"read_profile", "read_data"}, true),
			CreatedAt:     created,
		}
		md := BuildClientMetadata(client, "My App", "")
		assert.Equal(t, "abc", md.ClientID)
		assert.Equal(t, "none", md.TokenEndpointAuthMethod)
		assert.Equal(t, "read_profile read_data", md.Scope)
		assert.Equal(t, int64(1700000000), md.ClientIDIssuedAt)
		assert.Empty(t, md.ClientSecret)
		assert.Nil(t, md.ClientSecretExpiresAt)
	})

	t.Run("confidential right after registration", func(t *testing.T) {
		client := &RegisteredClient{
			DefaultClient: &fosite.DefaultClient{ID: "def", Secret: []byte("hash")},
			CreatedAt:     created,
		}
		md := BuildClientMetadata(client, "", "plain")
		assert.Equal(t, "client_secret_post", md.TokenEndpointAuthMethod)
		assert.Equal(t, "plain", md.ClientSecret)
		require.NotNil(t, md.ClientSecretExpiresAt)
		assert.Zero(t, *md.ClientSecretExpiresAt)
	})
}

func TestDescribeScopes(t *testing.T) {
	got := DescribeScopes([]string{"read_data", "custom"})
	require.Len(t, got, 2)
	assert.Equal(t, "Access your stored data", got[0].Description)
	assert.Equal(t, ScopeDescription{Name: "custom", Description: "custom"}, got[1])

	catalogue := ScopeCatalogue()
	catalogue[0].Name = "mutated"
	assert.Equal(t, "read_profile", ScopeCatalogue()[0].Name)
}
