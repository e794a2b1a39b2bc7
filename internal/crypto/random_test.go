package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// 32 bytes of raw base64url
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "=")
}

func TestHashClientSecret(t *testing.T) {
	secret := "test-client-secret-12345"

	hashed, err := HashClientSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(secret), hashed)

	assert.NoError(t, bcrypt.CompareHashAndPassword(hashed, []byte(secret)))
	assert.Error(t, bcrypt.CompareHashAndPassword(hashed, []byte("wrong-password")))

	// Same secret produces different hashes due to salt
	hashed2, err := HashClientSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, hashed, hashed2)
}
