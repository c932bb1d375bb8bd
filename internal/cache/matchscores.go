package cache

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/store"
)

const matchKeyPrefix = "match:"

// DefaultMatchScoreTTL bounds how long a computed score may be served
// without recomputation against a fresh posting.
const DefaultMatchScoreTTL = 30 * time.Minute

// MatchScore is the cached compatibility result between a user's resume and
// a job posting.
type MatchScore struct {
	Score          int      `json:"score"`
	MatchedSkills  []string `json:"matchedSkills"`
	MissingSkills  []string `json:"missingSkills"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// MatchScores caches AI-computed match results keyed by (userID, jobID).
// All of a user's keys share the "match:<user>:" prefix, which is what makes
// per-user invalidation a single prefix delete.
type MatchScores struct {
	store  store.Store
	cache  *Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewMatchScores builds the match-score cache. A non-positive ttl falls back
// to DefaultMatchScoreTTL.
func NewMatchScores(st store.Store, logger *zap.Logger, ttl time.Duration) *MatchScores {
	if ttl <= 0 {
		ttl = DefaultMatchScoreTTL
	}
	return &MatchScores{
		store:  st,
		cache:  NewManager(st, logger),
		ttl:    ttl,
		logger: logger,
	}
}

// Key derives the cache key for a (userID, jobID) pair. Both ids are
// escaped so an id containing the delimiter cannot collide with another
// user's keyspace or break prefix invalidation.
func Key(userID, jobID string) string {
	return matchKeyPrefix + url.QueryEscape(userID) + ":" + url.QueryEscape(jobID)
}

func userPrefix(userID string) string {
	return matchKeyPrefix + url.QueryEscape(userID) + ":"
}

// GetOne returns the cached score for one job, or nil on a miss.
func (c *MatchScores) GetOne(ctx context.Context, userID, jobID string) *MatchScore {
	var result MatchScore
	if !c.cache.Get(ctx, Key(userID, jobID), &result) {
		return nil
	}
	return &result
}

// SetOne caches the score for one job.
func (c *MatchScores) SetOne(ctx context.Context, userID, jobID string, result MatchScore) {
	c.cache.Set(ctx, Key(userID, jobID), result, c.ttl)
}

// GetMany returns the cached scores for the given jobs in a single store
// round-trip, keyed back by jobID. Only hits appear in the result; an empty
// input returns an empty map without touching the store.
func (c *MatchScores) GetMany(ctx context.Context, userID string, jobIDs []string) map[string]MatchScore {
	results := make(map[string]MatchScore, len(jobIDs))
	if len(jobIDs) == 0 {
		return results
	}

	keys := make([]string, 0, len(jobIDs))
	byKey := make(map[string]string, len(jobIDs))
	for _, jobID := range jobIDs {
		key := Key(userID, jobID)
		keys = append(keys, key)
		byKey[key] = jobID
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	entries, err := c.store.GetEntries(ctx, keys)
	if err != nil {
		c.logger.Warn("match score batch get failed", zap.String("user_id", userID), zap.Error(err))
		return results
	}

	for _, entry := range entries {
		jobID, ok := byKey[entry.Key]
		if !ok {
			continue
		}
		var result MatchScore
		if err := json.Unmarshal(entry.Value, &result); err != nil {
			c.logger.Warn("cached match score is malformed, treating as miss",
				zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		results[jobID] = result
	}

	return results
}

// JobScore pairs a jobID with its result for bulk writes.
type JobScore struct {
	JobID string
	MatchScore
}

// SetMany caches freshly computed scores in one bulk write. Partial success
// is acceptable; a lost write only means a recomputation later.
func (c *MatchScores) SetMany(ctx context.Context, userID string, scores []JobScore) {
	if len(scores) == 0 {
		return
	}

	expiresAt := time.Now().Add(c.ttl)
	entries := make([]store.CacheEntry, 0, len(scores))
	// Bulk writes require distinct keys; a repeated job collapses to its
	// last score.
	index := make(map[string]int, len(scores))
	for _, score := range scores {
		data, err := json.Marshal(score.MatchScore)
		if err != nil {
			c.logger.Warn("match score failed to marshal", zap.String("job_id", score.JobID), zap.Error(err))
			continue
		}
		entry := store.CacheEntry{
			Key:       Key(userID, score.JobID),
			Value:     data,
			ExpiresAt: expiresAt,
		}
		if i, ok := index[entry.Key]; ok {
			entries[i] = entry
			continue
		}
		index[entry.Key] = len(entries)
		entries = append(entries, entry)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.store.BulkUpsertEntries(ctx, entries); err != nil {
		c.logger.Warn("match score bulk set failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// InvalidateUser drops every cached score for the user. Callers must run
// this synchronously after a resume change completes, before answering the
// request, so no later read can serve a score computed against the old
// resume. Requests already in flight may still return the old score once;
// that narrow window is accepted for this domain.
func (c *MatchScores) InvalidateUser(ctx context.Context, userID string) {
	c.cache.DeletePrefix(ctx, userPrefix(userID))
}
