package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	defaultFirestoreCollection = "storefront_visitors"
	defaultDialTimeout         = 10 * time.Second
	envEmulatorHost            = "FIRESTORE_EMULATOR_HOST"
)

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding visitor documents.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore keeps one document per namespace with one string field per key.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{client: client, collection: defaultFirestoreCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// NewFirestoreClient creates a client for projectID, talking to the emulator when emulatorHost is set.
func NewFirestoreClient(ctx context.Context, projectID, emulatorHost string, opts ...option.ClientOption) (*firestore.Client, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("kv: firestore project id is required")
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	clientOpts := append([]option.ClientOption(nil), opts...)
	if host := strings.TrimSpace(emulatorHost); host != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, host)
		}
		clientOpts = append(clientOpts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := firestore.NewClient(dialCtx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("kv: create firestore client: %w", err)
	}
	return client, nil
}

// Get implements the Storage interface.
func (s *FirestoreStore) Get(ctx context.Context, namespace, key string) (string, error) {
	if err := validate(namespace, key); err != nil {
		return "", err
	}
	snap, err := s.client.Collection(s.collection).Doc(namespace).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv: firestore get %s: %w", key, err)
	}
	raw, ok := snap.Data()[key]
	if !ok {
		return "", ErrNotFound
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("kv: firestore field %s holds %T, want string", key, raw)
	}
	return value, nil
}

// Set implements the Storage interface.
func (s *FirestoreStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	ref := s.client.Collection(s.collection).Doc(namespace)
	data := map[string]any{
		key:         value,
		"updatedAt": time.Now().UTC(),
	}
	if _, err := ref.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("kv: firestore set %s: %w", key, err)
	}
	return nil
}

// Delete implements the Storage interface.
func (s *FirestoreStore) Delete(ctx context.Context, namespace, key string) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	ref := s.client.Collection(s.collection).Doc(namespace)
	_, err := ref.Update(ctx, []firestore.Update{{FieldPath: firestore.FieldPath{key}, Value: firestore.Delete}})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("kv: firestore delete %s: %w", key, err)
	}
	return nil
}
