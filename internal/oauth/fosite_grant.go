package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/dgellow/idbroker/internal/log"
	"github.com/ory/fosite"
)

// FositeGrantService implements GrantService on top of a fosite provider
type FositeGrantService struct {
	provider     fosite.OAuth2Provider
	authorizeURL string
}

// NewFositeGrantService creates a grant service. issuer is used to rebuild
// authorization requests when an approval comes back from the consent form.
func NewFositeGrantService(provider fosite.OAuth2Provider, issuer string) (*FositeGrantService, error) {
	authorizeURL, err := url.JoinPath(issuer, "authorize")
	if err != nil {
		return nil, fmt.Errorf("building authorize URL: %w", err)
	}
	return &FositeGrantService{
		provider:     provider,
		authorizeURL: authorizeURL,
	}, nil
}

// ParseAuthorizationRequest validates r and returns its descriptor
func (s *FositeGrantService) ParseAuthorizationRequest(ctx context.Context, r *http.Request) (*PendingAuthorizationRequest, error) {
	ar, err := s.provider.NewAuthorizeRequest(ctx, r)
	if err != nil {
		return nil, invalidRequest(err)
	}

	form := ar.GetRequestForm()
	pending := &PendingAuthorizationRequest{
		ClientID:            ar.GetClient().GetID(),
		RedirectURI:         ar.GetRedirectURI().String(),
		Scopes:              []string(ar.GetRequestedScopes()),
		State:               ar.GetState(),
		ResponseType:        strings.Join(ar.GetResponseTypes(), " "),
		CodeChallenge:       form.Get("code_challenge"),
		CodeChallengeMethod: form.Get("code_challenge_method"),
		Resource:            form.Get("resource"),
	}

	// fosite only checks PKCE when the response is built, after login and
	// consent. Refuse early instead of sending the user through both.
	if ar.GetClient().IsPublic() && pending.CodeChallenge == "" {
		return nil, fmt.Errorf("%w: public clients must use PKCE", ErrInvalidRequest)
	}
	if pending.CodeChallenge != "" && pending.CodeChallengeMethod != "S256" {
		return nil, fmt.Errorf("%w: code_challenge_method must be S256", ErrInvalidRequest)
	}

	log.LogDebugWithFields("oauth", "Parsed authorization request", map[string]any{
		"client_id":    pending.ClientID,
		"redirect_uri": pending.RedirectURI,
		"scopes":       pending.Scopes,
	})
	return pending, nil
}

// CompleteAuthorization issues an authorization code for an approved
// request. The request is re-validated against the client registry since it
// came back through the browser.
func (s *FositeGrantService) CompleteAuthorization(ctx context.Context, opts CompleteAuthorizationOptions) (*CompleteAuthorizationResult, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.authorizeURL+"?"+opts.Request.AuthorizeQuery().Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("rebuilding authorization request: %w", err)
	}

	ar, err := s.provider.NewAuthorizeRequest(ctx, req)
	if err != nil {
		return nil, invalidRequest(err)
	}

	// Only scopes the client actually asked for can be granted
	requested := ar.GetRequestedScopes()
	for _, scope := range opts.Scope {
		if slices.Contains(requested, scope) {
			ar.GrantScope(scope)
		}
	}

	session := &Session{
		DefaultSession: &fosite.DefaultSession{
			Subject:  opts.UserID,
			Username: opts.UserID,
		},
		Label:   opts.Metadata.Label,
		Picture: opts.Metadata.Picture,
		Props:   opts.Props,
	}
	if opts.Request.Resource != "" {
		session.DefaultSession.Extra = map[string]any{"resource": opts.Request.Resource}
	}

	resp, err := s.provider.NewAuthorizeResponse(ctx, ar, session)
	if err != nil {
		return nil, fmt.Errorf("issuing authorization code: %w", err)
	}

	redirect := *ar.GetRedirectURI()
	q := redirect.Query()
	for key, values := range resp.GetParameters() {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	redirect.RawQuery = q.Encode()

	log.LogInfoWithFields("oauth", "Authorization granted", map[string]any{
		"client_id": opts.Request.ClientID,
		"user":      opts.UserID,
		"scopes":    []string(ar.GetGrantedScopes()),
	})
	return &CompleteAuthorizationResult{RedirectTo: redirect.String()}, nil
}

// AuthorizeQuery serializes the descriptor back into authorize parameters
func (p PendingAuthorizationRequest) AuthorizeQuery() url.Values {
	q := url.Values{}
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("response_type", p.ResponseType)
	q.Set("state", p.State)
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	if p.CodeChallenge != "" {
		q.Set("code_challenge", p.CodeChallenge)
		q.Set("code_challenge_method", p.CodeChallengeMethod)
	}
	if p.Resource != "" {
		q.Set("resource", p.Resource)
	}
	return q
}

func invalidRequest(err error) error {
	rfcErr := fosite.ErrorToRFC6749Error(err)
	return fmt.Errorf("%w: %s: %s", ErrInvalidRequest, rfcErr.ErrorField, rfcErr.GetDescription())
}

var _ GrantService = (*FositeGrantService)(nil)
