package server

import (
	"encoding/json"
	"errors"
	"net/http"

	jsonwriter "github.com/dgellow/idbroker/internal/json"
	"github.com/dgellow/idbroker/internal/log"
	"github.com/dgellow/idbroker/internal/oauth"
	"github.com/ory/fosite"
)

// OAuthHandlers serves the machine-facing endpoints of the authorization
// server: discovery, token exchange and client registration
type OAuthHandlers struct {
	provider fosite.OAuth2Provider
	clients  *oauth.ClientStore
	issuer   string
}

// NewOAuthHandlers creates the OAuth endpoint handlers
func NewOAuthHandlers(provider fosite.OAuth2Provider, clients *oauth.ClientStore, issuer string) *OAuthHandlers {
	return &OAuthHandlers{
		provider: provider,
		clients:  clients,
		issuer:   issuer,
	}
}

// WellKnownHandler serves OAuth 2.0 Authorization Server Metadata (RFC 8414)
func (h *OAuthHandlers) WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}

	metadata, err := oauth.AuthorizationServerMetadata(h.issuer)
	if err != nil {
		log.LogError("Failed to build authorization server metadata: %v", err)
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	if err := jsonwriter.Write(w, metadata); err != nil {
		log.LogError("Failed to encode well-known metadata: %v", err)
	}
}

// TokenHandler redeems authorization codes and refresh tokens. The session
// recorded at approval time is restored by fosite from the code.
func (h *OAuthHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accessRequest, err := h.provider.NewAccessRequest(ctx, r, oauth.NewSession())
	if err != nil {
		rfcErr := fosite.ErrorToRFC6749Error(err)
		log.LogWarnWithFields("oauth", "Token request rejected", map[string]any{
			"error":       rfcErr.ErrorField,
			"description": rfcErr.GetDescription(),
		})
		h.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	response, err := h.provider.NewAccessResponse(ctx, accessRequest)
	if err != nil {
		log.LogError("Access response error: %v", err)
		h.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	log.LogInfoWithFields("oauth", "Issued tokens", map[string]any{
		"client_id":  accessRequest.GetClient().GetID(),
		"grant_type": accessRequest.GetGrantTypes(),
		"subject":    accessRequest.GetSession().GetSubject(),
	})
	h.provider.WriteAccessResponse(ctx, w, accessRequest, response)
}

// RegisterHandler handles dynamic client registration (RFC 7591)
func (h *OAuthHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}

	var metadata map[string]any
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		oauth.WriteError(w, http.StatusBadRequest,
			oauth.NewOAuthError(oauth.ErrCodeInvalidClientMetadata, "request body must be a JSON object"))
		return
	}

	reg, err := oauth.ParseClientRegistration(metadata)
	if err != nil {
		var oauthErr *oauth.OAuthError
		if !errors.As(err, &oauthErr) {
			oauthErr = oauth.NewOAuthError(oauth.ErrCodeInvalidClientMetadata, err.Error())
		}
		log.LogWarnWithFields("oauth", "Client registration rejected", map[string]any{
			"error": oauthErr.Error(),
		})
		oauth.WriteError(w, http.StatusBadRequest, oauthErr)
		return
	}

	client, secret, err := h.clients.RegisterClient(*reg)
	if err != nil {
		log.LogError("Failed to register client: %v", err)
		oauth.WriteError(w, http.StatusInternalServerError,
			oauth.NewOAuthError(oauth.ErrCodeServerError, "failed to register client"))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if err := jsonwriter.WriteResponse(w, http.StatusCreated, oauth.BuildClientMetadata(client, reg.ClientName, secret)); err != nil {
		log.LogError("Failed to encode registration response: %v", err)
	}
}

// ClientMetadataHandler returns the public metadata of a registered client
func (h *OAuthHandlers) ClientMetadataHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}

	clientID := r.PathValue("client_id")
	client, err := h.clients.GetRegisteredClient(r.Context(), clientID)
	if err != nil {
		jsonwriter.WriteNotFound(w, "Client not found")
		return
	}

	if err := jsonwriter.Write(w, oauth.BuildClientMetadata(client, "", "")); err != nil {
		log.LogError("Failed to encode client metadata: %v", err)
	}
}
