// Package store defines the persistent document store the caching and
// rate-limiting layers are built on, and its Postgres and in-memory
// implementations. All shared mutable state of the service lives here;
// stateless request handlers synchronize only through the store's atomic
// upsert primitives.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no live record matches.
var ErrNotFound = errors.New("store: not found")

// CacheEntry is a single expiring key/value document. Value is opaque JSON;
// the entry is logically dead once now > ExpiresAt, whether or not the
// backend has reclaimed it yet.
type CacheEntry struct {
	Key       string
	Value     json.RawMessage
	ExpiresAt time.Time
}

// RateLimitRecord is a sliding-window counter document. At most one live
// record exists per (identifier, class) pair.
type RateLimitRecord struct {
	Identifier  string
	Class       string
	Count       int
	WindowStart time.Time
	ExpiresAt   time.Time
}

// Store is the contract the cache manager, rate limiter, profile and
// application services consume. Implementations must make UpsertEntry and IncrementWindow atomic:
// concurrent calls for the same key or the same (identifier, class) pair
// must serialize at the store, never lose updates.
type Store interface {
	// GetEntry returns the entry for key if it exists and is unexpired,
	// ErrNotFound otherwise.
	GetEntry(ctx context.Context, key string) (*CacheEntry, error)

	// UpsertEntry atomically inserts or replaces the entry for key. Value
	// and expiry are replaced together; no partial state is observable.
	UpsertEntry(ctx context.Context, key string, value json.RawMessage, expiresAt time.Time) error

	// DeleteEntry removes a single entry. Deleting an absent key is not an
	// error.
	DeleteEntry(ctx context.Context, key string) error

	// DeleteEntriesByPrefix removes every entry whose key starts with
	// prefix, as of call time.
	DeleteEntriesByPrefix(ctx context.Context, prefix string) error

	// GetEntries returns the unexpired entries among keys, in no
	// particular order. Missing and expired keys are simply absent.
	GetEntries(ctx context.Context, keys []string) ([]CacheEntry, error)

	// BulkUpsertEntries writes all entries in one round-trip. Keys must be
	// distinct within one call; partial success is acceptable.
	BulkUpsertEntries(ctx context.Context, entries []CacheEntry) error

	// IncrementWindow is the find-matching-and-increment-or-insert
	// primitive behind the rate limiter. If a record for (identifier,
	// class) exists with WindowStart > threshold its count is incremented;
	// otherwise a fresh record with count 1, windowStart and expiresAt is
	// written in its place. The updated record is returned.
	IncrementWindow(ctx context.Context, identifier, class string, threshold, windowStart, expiresAt time.Time) (*RateLimitRecord, error)

	// GetWindow returns the live record for (identifier, class) with
	// WindowStart > threshold, or ErrNotFound. Never increments.
	GetWindow(ctx context.Context, identifier, class string, threshold time.Time) (*RateLimitRecord, error)

	// SaveProfile persists the user's parsed resume profile document.
	SaveProfile(ctx context.Context, userID string, profile json.RawMessage) error

	// GetProfile returns the stored profile or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (json.RawMessage, error)

	// DeleteProfile removes the stored profile; idempotent.
	DeleteProfile(ctx context.Context, userID string) error

	// PutApplication inserts or replaces the user's application document
	// for one external job id.
	PutApplication(ctx context.Context, userID, jobID string, doc json.RawMessage) error

	// GetApplication returns the stored application document or
	// ErrNotFound.
	GetApplication(ctx context.Context, userID, jobID string) (json.RawMessage, error)

	// ListApplications returns all of the user's application documents, in
	// no particular order.
	ListApplications(ctx context.Context, userID string) ([]json.RawMessage, error)

	// DeleteApplication removes one application document, ErrNotFound when
	// none exists.
	DeleteApplication(ctx context.Context, userID, jobID string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
