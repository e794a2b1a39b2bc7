package idp

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ConfigurationError is returned by NewClient when the provider cannot be
// used at all. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("identity provider configuration: %s %s", e.Field, e.Reason)
}

// UpstreamExchangeError reports a failed authorization code exchange.
// Body holds the provider's raw response for logging; it is never shown to users.
type UpstreamExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("code exchange failed: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("code exchange failed: %v", e.Err)
}

func (e *UpstreamExchangeError) Unwrap() error {
	return e.Err
}

// asExchangeError converts errors from oauth2.Config.Exchange
func asExchangeError(err error) *UpstreamExchangeError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		body := retrieveErr.Body
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &UpstreamExchangeError{StatusCode: status, Body: string(body), Err: err}
	}
	return &UpstreamExchangeError{Err: err}
}

// UpstreamIdentityError reports a failed identity fetch or an identity that
// could not be verified
type UpstreamIdentityError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamIdentityError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("failed to get user info: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("failed to get user info: %v", e.Err)
}

func (e *UpstreamIdentityError) Unwrap() error {
	return e.Err
}

// AllowListDeniedError is returned when an authenticated identity is not
// permitted. The email is part of the message on purpose, the user already
// knows which account they signed in with.
type AllowListDeniedError struct {
	Email string
}

func (e *AllowListDeniedError) Error() string {
	return fmt.Sprintf("%s is not allowed to sign in", e.Email)
}
