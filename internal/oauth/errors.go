package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgellow/idbroker/internal/log"
)

type ErrorCode string

// Registration error codes from RFC 7591 section 3.2.2
const (
	ErrCodeInvalidRedirectURI    ErrorCode = "invalid_redirect_uri"
	ErrCodeInvalidClientMetadata ErrorCode = "invalid_client_metadata"
	ErrCodeServerError           ErrorCode = "server_error"
)

type OAuthError struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return string(e.Code)
}

func NewOAuthError(code ErrorCode, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description}
}

// WriteError writes an OAuth JSON error body that must not be cached
func WriteError(w http.ResponseWriter, status int, oauthErr *OAuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(oauthErr); err != nil {
		log.LogError("Failed to encode OAuth error response: %v", err)
	}
}
