package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Memory is a Store kept entirely in process memory. It backs local
// development and tests; a multi-instance deployment needs Postgres since
// rate-limit counters must be shared across handlers.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]CacheEntry
	windows  map[string]RateLimitRecord
	profiles map[string]json.RawMessage
	apps     map[string]map[string]json.RawMessage
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[string]CacheEntry),
		windows:  make(map[string]RateLimitRecord),
		profiles: make(map[string]json.RawMessage),
		apps:     make(map[string]map[string]json.RawMessage),
	}
}

func (m *Memory) GetEntry(_ context.Context, key string) (*CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || !entry.ExpiresAt.After(time.Now()) {
		return nil, ErrNotFound
	}

	out := entry
	out.Value = append(json.RawMessage(nil), entry.Value...)
	return &out, nil
}

func (m *Memory) UpsertEntry(_ context.Context, key string, value json.RawMessage, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = CacheEntry{
		Key:       key,
		Value:     append(json.RawMessage(nil), value...),
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) DeleteEntriesByPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *Memory) GetEntries(_ context.Context, keys []string) ([]CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var entries []CacheEntry
	for _, key := range keys {
		entry, ok := m.entries[key]
		if !ok || !entry.ExpiresAt.After(now) {
			continue
		}
		out := entry
		out.Value = append(json.RawMessage(nil), entry.Value...)
		entries = append(entries, out)
	}
	return entries, nil
}

func (m *Memory) BulkUpsertEntries(_ context.Context, entries []CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range entries {
		entry.Value = append(json.RawMessage(nil), entry.Value...)
		m.entries[entry.Key] = entry
	}
	return nil
}

func (m *Memory) IncrementWindow(_ context.Context, identifier, class string, threshold, windowStart, expiresAt time.Time) (*RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identifier + "\x00" + class
	record, ok := m.windows[key]
	if ok && record.WindowStart.After(threshold) {
		record.Count++
	} else {
		record = RateLimitRecord{
			Identifier:  identifier,
			Class:       class,
			Count:       1,
			WindowStart: windowStart,
			ExpiresAt:   expiresAt,
		}
	}
	m.windows[key] = record

	out := record
	return &out, nil
}

func (m *Memory) GetWindow(_ context.Context, identifier, class string, threshold time.Time) (*RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.windows[identifier+"\x00"+class]
	if !ok || !record.WindowStart.After(threshold) {
		return nil, ErrNotFound
	}

	out := record
	return &out, nil
}

func (m *Memory) SaveProfile(_ context.Context, userID string, profile json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[userID] = append(json.RawMessage(nil), profile...)
	return nil
}

func (m *Memory) GetProfile(_ context.Context, userID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), profile...), nil
}

func (m *Memory) DeleteProfile(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.profiles, userID)
	return nil
}

func (m *Memory) PutApplication(_ context.Context, userID, jobID string, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byJob, ok := m.apps[userID]
	if !ok {
		byJob = make(map[string]json.RawMessage)
		m.apps[userID] = byJob
	}
	byJob[jobID] = append(json.RawMessage(nil), doc...)
	return nil
}

func (m *Memory) GetApplication(_ context.Context, userID, jobID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.apps[userID][jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), doc...), nil
}

func (m *Memory) ListApplications(_ context.Context, userID string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []json.RawMessage
	for _, doc := range m.apps[userID] {
		docs = append(docs, append(json.RawMessage(nil), doc...))
	}
	return docs, nil
}

func (m *Memory) DeleteApplication(_ context.Context, userID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[userID][jobID]; !ok {
		return ErrNotFound
	}
	delete(m.apps[userID], jobID)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
