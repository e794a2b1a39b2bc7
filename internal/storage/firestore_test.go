package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dgellow/idbroker/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreStoreConfig(t *testing.T) {
	ctx := context.Background()
	encryptor, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreStore(ctx, "", "(default)", "idbroker_state", encryptor)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("nil encryptor", func(t *testing.T) {
		_, err := NewFirestoreStore(ctx, "test-project", "(default)", "idbroker_state", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryptor is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreStore(ctx, "test-project", "(default)", "", encryptor)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection is required")
	})
}

func TestDocIDIsPathSafe(t *testing.T) {
	id := docID(SessionKey("a/b+c"))
	assert.NotContains(t, id, "/")
	assert.NotEqual(t, docID(StateKey("x")), docID(SessionKey("x")))
}

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set
func TestFirestoreStoreEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	encryptor, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewFirestoreStore(ctx, "idbroker-test", "", "state_contract", encryptor)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})

	t.Run("expired documents are absent", func(t *testing.T) {
		s, err := NewFirestoreStore(ctx, "idbroker-test", "", "state_expiry", encryptor)
		require.NoError(t, err)
		defer s.Close()

		now := time.Now()
		s.now = func() time.Time { return now }
		require.NoError(t, s.Put(ctx, StateKey("old"), []byte("v"), time.Minute))

		now = now.Add(2 * time.Minute)
		_, err = s.Get(ctx, StateKey("old"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
