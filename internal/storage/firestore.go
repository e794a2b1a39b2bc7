package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/idbroker/internal/crypto"
	"github.com/dgellow/idbroker/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore is a Store backed by Google Cloud Firestore.
//
// Values are encrypted before they are written since session records carry
// user identities. Firestore TTL policies delete documents up to a day late,
// so expires_at is also checked on every read and stale documents are
// removed eagerly.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
	now        func() time.Time
}

// entryDoc represents a store entry in Firestore. Configure the collection's
// TTL policy on expires_at.
type entryDoc struct {
	Value     string    `firestore:"value"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore state store ready", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		encryptor:  encryptor,
		now:        time.Now,
	}, nil
}

// docID maps a store key to a Firestore document ID. Keys may contain
// characters Firestore reserves, so they are base64url encoded.
func docID(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(docID(key))
}

func (s *FirestoreStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("storage: ttl must be positive, got %s", ttl)
	}

	encrypted, err := s.encryptor.Encrypt(string(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt entry: %w", err)
	}

	entry := entryDoc{
		Value:     encrypted,
		ExpiresAt: s.now().Add(ttl),
	}
	if _, err := s.doc(key).Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to store entry in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry from Firestore: %w", err)
	}

	var entry entryDoc
	if err := snap.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	if !s.now().Before(entry.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			log.LogWarnWithFields("storage", "Failed to delete expired entry", map[string]any{
				"error": err.Error(),
			})
		}
		return nil, ErrNotFound
	}

	plain, err := s.encryptor.Decrypt(entry.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt entry: %w", err)
	}
	return []byte(plain), nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	if _, err := s.doc(key).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete entry from Firestore: %w", err)
	}
	return nil
}

// PurgeExpired deletes documents whose expires_at has passed. It lets the
// cleanup loop keep the collection small when no TTL policy is configured.
func (s *FirestoreStore) PurgeExpired(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).Where("expires_at", "<=", s.now()).Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, fmt.Errorf("failed to query expired entries: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return purged, fmt.Errorf("failed to delete expired entry: %w", err)
		}
		purged++
	}
	return purged, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
