// Package cache implements the TTL cache layer over the persistent store.
// The cache is an optimization, never a source of truth: every store fault
// degrades to a miss or a no-op and is reported to logs only, so a store
// outage costs latency, not availability.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/store"
)

const opTimeout = 3 * time.Second

// Manager provides get/set/delete over opaque JSON-serializable values with
// per-entry TTL. A miss is indistinguishable from "never set" on purpose;
// callers recompute either way.
type Manager struct {
	store  store.Store
	logger *zap.Logger
}

// NewManager wires a cache manager to the given store.
func NewManager(st store.Store, logger *zap.Logger) *Manager {
	return &Manager{store: st, logger: logger}
}

// Get loads the value for key into dest and reports whether there was an
// unexpired hit. Store faults and undecodable stored values are both
// treated as misses.
func (m *Manager) Get(ctx context.Context, key string, dest any) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	entry, err := m.store.GetEntry(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(entry.Value, dest); err != nil {
		// Stored shape no longer matches the caller's type, likely a
		// schema change. Recompute instead of crashing.
		m.logger.Warn("cache entry is malformed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return false
	}

	return true
}

// Set stores value under key for ttl. Failures are swallowed after logging;
// a cache write must never fail the computation that produced the value.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("cache set failed to marshal value", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := m.store.UpsertEntry(ctx, key, data, time.Now().Add(ttl)); err != nil {
		m.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes a single entry. Deleting an absent key is a no-op.
func (m *Manager) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := m.store.DeleteEntry(ctx, key); err != nil {
		m.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// DeletePrefix removes every entry whose key starts with prefix.
func (m *Manager) DeletePrefix(ctx context.Context, prefix string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := m.store.DeleteEntriesByPrefix(ctx, prefix); err != nil {
		m.logger.Warn("cache prefix delete failed", zap.String("prefix", prefix), zap.Error(err))
	}
}
