package oauth

import (
	"context"
	"errors"
	"net/http"
)

// ErrInvalidRequest is wrapped by every authorization request the grant
// service refuses to parse or complete
var ErrInvalidRequest = errors.New("invalid authorization request")

// PendingAuthorizationRequest is a validated inbound authorization request.
// It survives the identity provider round trip and the consent form, so it
// must stay JSON serializable.
type PendingAuthorizationRequest struct {
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	Scopes              []string `json:"scopes,omitempty"`
	State               string   `json:"state"`
	ResponseType        string   `json:"response_type"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	Resource            string   `json:"resource,omitempty"`
}

// GrantMetadata is shown to the user when listing grants
type GrantMetadata struct {
	Label   string `json:"label"`
	Picture string `json:"picture,omitempty"`
}

// GrantProps travel with the grant into issued tokens
type GrantProps struct {
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName"`
}

// CompleteAuthorizationOptions finalizes an approved request
type CompleteAuthorizationOptions struct {
	Request  PendingAuthorizationRequest
	UserID   string
	Scope    []string
	Metadata GrantMetadata
	Props    GrantProps
}

// CompleteAuthorizationResult carries where to send the user agent next
type CompleteAuthorizationResult struct {
	RedirectTo string
}

// GrantService parses upstream authorization requests and issues the final
// grant once the user has approved it
type GrantService interface {
	ParseAuthorizationRequest(ctx context.Context, r *http.Request) (*PendingAuthorizationRequest, error)
	CompleteAuthorization(ctx context.Context, opts CompleteAuthorizationOptions) (*CompleteAuthorizationResult, error)
}
