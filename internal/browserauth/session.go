package browserauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/idbroker/internal/crypto"
	"github.com/dgellow/idbroker/internal/emailutil"
	"github.com/dgellow/idbroker/internal/idp"
	"github.com/dgellow/idbroker/internal/log"
	"github.com/dgellow/idbroker/internal/storage"
)

// IdentitySession is the record stored under session:{token}
type IdentitySession struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DisplayName is the name to show for the session, falling back to the email
func (s *IdentitySession) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Email
}

// Status is the outcome of a session lookup
type Status int

const (
	StatusAbsent Status = iota
	StatusValid
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	default:
		return "absent"
	}
}

// Result of Validate. Session is set only when Status is StatusValid.
type Result struct {
	Status  Status
	Session *IdentitySession
}

// Valid reports whether the token identifies a live session
func (r Result) Valid() bool {
	return r.Status == StatusValid && r.Session != nil
}

// Manager issues and checks browser sessions backed by a storage.Store
type Manager struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a session manager with the standard session lifetime
func NewManager(store storage.Store) *Manager {
	return &Manager{
		store: store,
		ttl:   storage.SessionTTL,
		now:   time.Now,
	}
}

// SetClock replaces the time source. Used by tests to move past expiry.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// TTL is the lifetime of new sessions, also used as the cookie max-age
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create stores a new session for identity and returns its token and the
// normalized email to put in the cookies. The record's ExpiresAt and the
// store TTL are derived from the same instant.
func (m *Manager) Create(ctx context.Context, identity *idp.Identity) (token, email string, err error) {
	token, err = crypto.GenerateSecureToken()
	if err != nil {
		return "", "", fmt.Errorf("generating session token: %w", err)
	}

	email = emailutil.Normalize(identity.Email)
	record := IdentitySession{
		Email:     email,
		Name:      identity.Name,
		Picture:   identity.Picture,
		ExpiresAt: m.now().Add(m.ttl),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", "", fmt.Errorf("encoding session: %w", err)
	}

	if err := m.store.Put(ctx, storage.SessionKey(token), data, m.ttl); err != nil {
		return "", "", fmt.Errorf("storing session: %w", err)
	}

	log.LogDebugWithFields("session", "Session created", map[string]any{
		"email":      email,
		"expires_at": record.ExpiresAt,
	})
	return token, email, nil
}

// Validate looks up token. Records past ExpiresAt are deleted and reported
// as expired even if the store still returned them.
func (m *Manager) Validate(ctx context.Context, token string) (Result, error) {
	if token == "" {
		return Result{Status: StatusAbsent}, nil
	}

	key := storage.SessionKey(token)
	data, err := m.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Status: StatusAbsent}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("loading session: %w", err)
	}

	var record IdentitySession
	if err := json.Unmarshal(data, &record); err != nil {
		log.LogWarnWithFields("session", "Discarding unreadable session record", map[string]any{
			"error": err.Error(),
		})
		if err := m.store.Delete(ctx, key); err != nil {
			return Result{}, fmt.Errorf("deleting unreadable session: %w", err)
		}
		return Result{Status: StatusAbsent}, nil
	}

	if !m.now().Before(record.ExpiresAt) {
		if err := m.store.Delete(ctx, key); err != nil {
			return Result{}, fmt.Errorf("deleting expired session: %w", err)
		}
		log.LogDebugWithFields("session", "Expired session deleted", map[string]any{
			"email": record.Email,
		})
		return Result{Status: StatusExpired}, nil
	}

	return Result{Status: StatusValid, Session: &record}, nil
}

// Destroy deletes the session. Clearing cookies is the caller's job.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, storage.SessionKey(token)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
