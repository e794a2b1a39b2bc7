package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

func TestTokenSigner_RoundTrip(t *testing.T) {
	signer := NewTokenSigner([]byte(strings.Repeat("k", 32)), 10*time.Minute)

	in := payload{ClientID: "client-1", Scopes: []string{"read_data", "write_data"}}
	token, err := signer.Sign(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, signer.Verify(token, &out))
	assert.Equal(t, in, out)
}

func TestTokenSigner_Rejects(t *testing.T) {
	key := []byte(strings.Repeat("k", 32))
	signer := NewTokenSigner(key, 10*time.Minute)
	token, err := signer.Sign(payload{ClientID: "client-1"})
	require.NoError(t, err)

	t.Run("tampered payload", func(t *testing.T) {
		other, err := signer.Sign(payload{ClientID: "client-2"})
		require.NoError(t, err)
		forged := strings.Split(other, ".")[0] + "." + strings.Split(token, ".")[1]
		err = signer.Verify(forged, &payload{})
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		otherSigner := NewTokenSigner([]byte(strings.Repeat("x", 32)), 10*time.Minute)
		assert.ErrorIs(t, otherSigner.Verify(token, &payload{}), ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		assert.ErrorIs(t, signer.Verify("no-dot-here", &payload{}), ErrInvalidToken)
		assert.ErrorIs(t, signer.Verify(".", &payload{}), ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expiring := NewTokenSigner(key, time.Minute)
		expiring.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
		old, err := expiring.Sign(payload{ClientID: "client-1"})
		require.NoError(t, err)
		assert.ErrorIs(t, signer.Verify(old, &payload{}), ErrTokenExpired)
	})
}

func TestCSRFProtection(t *testing.T) {
	csrf := NewCSRFProtection([]byte(strings.Repeat("c", 32)), time.Hour)

	token, err := csrf.Generate("session-a")
	require.NoError(t, err)

	assert.True(t, csrf.Validate("session-a", token))
	assert.False(t, csrf.Validate("session-b", token), "token is bound to its subject")
	assert.False(t, csrf.Validate("session-a", token+"x"))
	assert.False(t, csrf.Validate("session-a", "garbage"))

	expired := NewCSRFProtection([]byte(strings.Repeat("c", 32)), -time.Second)
	assert.False(t, expired.Validate("session-a", token))
}

func TestEncryptor(t *testing.T) {
	_, err := NewEncryptor([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key must be 32 bytes")

	enc, err := NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	ct, err := enc.Encrypt(`{"email":"a@x.com"}`)
	require.NoError(t, err)
	assert.NotContains(t, ct, "a@x.com")

	pt, err := enc.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, `{"email":"a@x.com"}`, pt)

	_, err = enc.Decrypt("bm90LWNpcGhlcnRleHQ=")
	assert.Error(t, err)
}
