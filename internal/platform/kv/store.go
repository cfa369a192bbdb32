// Package kv provides the string-valued key-value storage that backs each storefront
// visitor. Keys are grouped by namespace (one namespace per visitor) and values are
// opaque strings, usually JSON documents.
package kv

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("kv: key not found")
	// ErrInvalidKey is returned when the namespace or key is blank.
	ErrInvalidKey = errors.New("kv: namespace and key are required")
)

// Storage persists string values addressed by namespace and key.
type Storage interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
}

// Bucket binds a Storage to a single namespace.
type Bucket struct {
	storage   Storage
	namespace string
}

// NewBucket returns a Bucket for namespace.
func NewBucket(storage Storage, namespace string) Bucket {
	return Bucket{storage: storage, namespace: namespace}
}

// Namespace reports the namespace the bucket writes to.
func (b Bucket) Namespace() string { return b.namespace }

// Get returns the value stored under key or ErrNotFound.
func (b Bucket) Get(ctx context.Context, key string) (string, error) {
	if b.storage == nil {
		return "", ErrNotFound
	}
	return b.storage.Get(ctx, b.namespace, key)
}

// Set stores value under key.
func (b Bucket) Set(ctx context.Context, key, value string) error {
	if b.storage == nil {
		return errors.New("kv: storage is not configured")
	}
	return b.storage.Set(ctx, b.namespace, key, value)
}

// Delete removes key. Deleting a missing key is not an error.
func (b Bucket) Delete(ctx context.Context, key string) error {
	if b.storage == nil {
		return nil
	}
	return b.storage.Delete(ctx, b.namespace, key)
}

func validate(namespace, key string) error {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
