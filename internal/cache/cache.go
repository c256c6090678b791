// Package cache holds the result cache used by the catalog query engine:
// a small key/value contract, optional bulk capabilities, and the namespace
// helper that key building and invalidation share.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable wraps every backend failure. Callers treat it as a miss.
var ErrUnavailable = errors.New("cache unavailable")

type Cache interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// KeyLister is implemented by backends that can enumerate keys.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// PrefixDeleter is implemented by backends with a native bulk delete by prefix.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Clearer drops every entry in the backend.
type Clearer interface {
	Clear(ctx context.Context) error
}

const sep = ":"

// Namespace is the one place a key prefix is spelled out. Entries written
// with Key are exactly the entries matched by Prefix.
type Namespace string

func (n Namespace) Prefix() string {
	return string(n) + sep
}

func (n Namespace) Key(parts ...string) string {
	return n.Prefix() + strings.Join(parts, sep)
}

func (n Namespace) Owns(key string) bool {
	return strings.HasPrefix(key, n.Prefix())
}
