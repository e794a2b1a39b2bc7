package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRFProtection provides stateless HMAC-based CSRF token generation and validation.
// Tokens are self-contained: nonce:timestamp:signature, and are bound to a
// caller-chosen subject (the session token) so one session's form cannot be
// replayed under another.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
}

// NewCSRFProtection creates a new CSRF protection instance
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

// Generate creates a new CSRF token bound to subject
func (c *CSRFProtection) Generate(subject string) (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := SignData(subject+":"+nonce+":"+timestamp, c.signingKey)

	return fmt.Sprintf("%s:%s:%s", nonce, timestamp, signature), nil
}

// Validate checks if a CSRF token is valid for subject and not expired
func (c *CSRFProtection) Validate(subject, token string) bool {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return false
	}

	nonce, timestampStr, signature := parts[0], parts[1], parts[2]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return false
	}

	if time.Since(time.Unix(timestamp, 0)) > c.ttl {
		return false
	}

	return ValidateSignedData(subject+":"+nonce+":"+timestampStr, signature, c.signingKey)
}
