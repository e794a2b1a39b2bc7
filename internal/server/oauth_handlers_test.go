package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dgellow/idbroker/internal/config"
	"github.com/dgellow/idbroker/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://auth.example.com"

func newTestOAuthHandlers(t *testing.T) (*OAuthHandlers, *oauth.FositeGrantService) {
	t.Helper()
	clients, err := oauth.NewClientStore([]config.ClientConfig{
		{ID: "cli", Public: true, RedirectURIs: []string{"https://app.example.com/callback"}},
	})
	require.NoError(t, err)
	provider, err := oauth.NewOAuthProvider(oauth.ProviderConfig{
		Issuer: testIssuer,
		Secret: []byte(strings.Repeat("s", 32)),
	}, clients)
	require.NoError(t, err)
	grants, err := oauth.NewFositeGrantService(provider, testIssuer)
	require.NoError(t, err)
	return NewOAuthHandlers(provider, clients, testIssuer), grants
}

func TestWellKnownHandler(t *testing.T) {
	h, _ := newTestOAuthHandlers(t)

	rr := httptest.NewRecorder()
	h.WellKnownHandler(rr, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var md map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &md))
	assert.Equal(t, testIssuer, md["issuer"])
	assert.Equal(t, testIssuer+"/token", md["token_endpoint"])

	rr = httptest.NewRecorder()
	h.WellKnownHandler(rr, httptest.NewRequest(http.MethodPost, "/.well-known/oauth-authorization-server", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET", rr.Header().Get("Allow"))
}

func TestRegisterHandler(t *testing.T) {
	h, _ := newTestOAuthHandlers(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantSecret bool
	}{
		{
			name:       "public client",
			body:       `{"redirect_uris":["https://app.example.com/cb"],"client_name":"My App"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "confidential client",
			body:       `{"redirect_uris":["https://app.example.com/cb"],"token_endpoint_auth_method":"client_secret_post"}`,
			wantStatus: http.StatusCreated,
			wantSecret: true,
		},
		{
			name:       "bad redirect",
			body:       `{"redirect_uris":["http://app.example.com/cb"]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_redirect_uri",
		},
		{
			name:       "bad auth method",
			body:       `{"redirect_uris":["https://app.example.com/cb"],"token_endpoint_auth_method":"private_key_jwt"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_client_metadata",
		},
		{
			name:       "not json",
			body:       `nope`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_client_metadata",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.RegisterHandler(rr, httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(tt.body)))

			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
				return
			}

			clientID, _ := resp["client_id"].(string)
			require.NotEmpty(t, clientID)
			_, hasSecret := resp["client_secret"]
			assert.Equal(t, tt.wantSecret, hasSecret)

			// the registered client can be looked up afterwards, without its secret
			lookup := httptest.NewRequest(http.MethodGet, "/clients/"+clientID, nil)
			lookup.SetPathValue("client_id", clientID)
			got := httptest.NewRecorder()
			h.ClientMetadataHandler(got, lookup)
			require.Equal(t, http.StatusOK, got.Code)
			assert.NotContains(t, got.Body.String(), "client_secret\"")
		})
	}
}

func TestRegisterHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestOAuthHandlers(t)
	rr := httptest.NewRecorder()
	h.RegisterHandler(rr, httptest.NewRequest(http.MethodGet, "/register", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "POST", rr.Header().Get("Allow"))
}

func TestClientMetadataHandler_NotFound(t *testing.T) {
	h, _ := newTestOAuthHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/clients/nobody", nil)
	req.SetPathValue("client_id", "nobody")
	rr := httptest.NewRecorder()
	h.ClientMetadataHandler(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTokenHandler_RedeemsApprovedCode(t *testing.T) {
	h, grants := newTestOAuthHandlers(t)
	ctx := context.Background()

	verifier := strings.Repeat("v", 50)
	sum := sha256.Sum256([]byte(verifier))
	params := url.Values{
		"client_id":             {"cli"},
		"redirect_uri":          {"https://app.example.com/callback"},
		"response_type":         {"code"},
		"state":                 {"client-state-123"},
		"scope":                 {"read_profile"},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(sum[:])},
		"code_challenge_method": {"S256"},
	}
	pending, err := grants.ParseAuthorizationRequest(ctx, httptest.NewRequest(http.MethodGet, testIssuer+"/authorize?"+params.Encode(), nil))
	require.NoError(t, err)

	result, err := grants.CompleteAuthorization(ctx, oauth.CompleteAuthorizationOptions{
		Request: *pending,
		UserID:  "alice@example.com",
		Scope:   pending.Scopes,
	})
	require.NoError(t, err)
	redirect, err := url.Parse(result.RedirectTo)
	require.NoError(t, err)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {redirect.Query().Get("code")},
		"redirect_uri":  {"https://app.example.com/callback"},
		"client_id":     {"cli"},
		"code_verifier": {verifier},
	}
	exchange := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		h.TokenHandler(rr, req)
		return rr
	}

	rr := exchange()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tokens map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens["access_token"])
	assert.Equal(t, "bearer", strings.ToLower(tokens["token_type"].(string)))

	replay := exchange()
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Contains(t, replay.Body.String(), "invalid_grant")
}

func TestTokenHandler_Garbage(t *testing.T) {
	h, _ := newTestOAuthHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("grant_type=password"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.TokenHandler(rr, req)
	assert.GreaterOrEqual(t, rr.Code, 400)
}
