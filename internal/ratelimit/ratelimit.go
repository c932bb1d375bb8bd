// Package ratelimit enforces per-identifier request budgets across endpoint
// classes using sliding windows persisted in the shared store, so the count
// is correct no matter which instance handles a request.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/store"
)

// Class names a category of rate-limited operation with its own budget.
type Class string

const (
	ClassAIScoring   Class = "AI_SCORING"
	ClassAIChat      Class = "AI_CHAT"
	ClassResumeParse Class = "RESUME_PARSE"
	ClassGeneral     Class = "GENERAL"
)

// Limit is one class's budget: at most Limit requests per Window.
type Limit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// DefaultLimits mirrors production tuning: scoring gets a generous short
// window, chat a tighter one, resume parsing is expensive and long-windowed,
// and everything else shares the general budget.
func DefaultLimits() map[Class]Limit {
	return map[Class]Limit{
		ClassAIScoring:   {Limit: 50, Window: time.Minute},
		ClassAIChat:      {Limit: 20, Window: time.Minute},
		ClassResumeParse: {Limit: 10, Window: time.Hour},
		ClassGeneral:     {Limit: 100, Window: time.Minute},
	}
}

// Result is the outcome of a limit check. Allowed=false is a first-class
// condition, not an error; ResetAt tells the client when to retry.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

const opTimeout = 3 * time.Second

// Limiter checks and increments per-(identifier, class) counters. Limits are
// injected at construction so deployments and tests can tune them.
type Limiter struct {
	store  store.Store
	limits map[Class]Limit
	logger *zap.Logger
}

// New builds a limiter with the given per-class limits. Nil or empty limits
// fall back to DefaultLimits.
func New(st store.Store, limits map[Class]Limit, logger *zap.Logger) *Limiter {
	if len(limits) == 0 {
		limits = DefaultLimits()
	}
	return &Limiter{store: st, limits: limits, logger: logger}
}

// Check records one request for (identifier, class) and reports whether it
// is within budget. The counter is incremented before the comparison, so a
// rejected request is still charged and visible in diagnostics. If the store
// is unreachable the limiter fails open with a full budget: availability of
// the feature outweighs strict quota enforcement during an outage.
func (l *Limiter) Check(ctx context.Context, identifier string, class Class) Result {
	cfg := l.config(class)
	now := time.Now()
	threshold := now.Add(-cfg.Window)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := l.store.IncrementWindow(ctx, identifier, string(class), threshold, now, now.Add(cfg.Window))
	if err != nil {
		l.logger.Error("rate limit check failed, failing open",
			zap.String("identifier", identifier), zap.String("class", string(class)), zap.Error(err))
		return l.open(cfg, now)
	}

	return Result{
		Allowed:   record.Count <= cfg.Limit,
		Limit:     cfg.Limit,
		Remaining: remaining(cfg.Limit, record.Count),
		ResetAt:   record.ExpiresAt,
	}
}

// Status reports the current window without charging a request. Used for
// status displays.
func (l *Limiter) Status(ctx context.Context, identifier string, class Class) Result {
	cfg := l.config(class)
	now := time.Now()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := l.store.GetWindow(ctx, identifier, string(class), now.Add(-cfg.Window))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.logger.Error("rate limit status failed, failing open",
				zap.String("identifier", identifier), zap.String("class", string(class)), zap.Error(err))
		}
		return l.open(cfg, now)
	}

	return Result{
		Allowed:   record.Count < cfg.Limit,
		Limit:     cfg.Limit,
		Remaining: remaining(cfg.Limit, record.Count),
		ResetAt:   record.ExpiresAt,
	}
}

// Classes lists the configured classes.
func (l *Limiter) Classes() []Class {
	classes := make([]Class, 0, len(l.limits))
	for class := range l.limits {
		classes = append(classes, class)
	}
	return classes
}

// config resolves a class's budget; unknown classes get the general budget.
func (l *Limiter) config(class Class) Limit {
	if cfg, ok := l.limits[class]; ok {
		return cfg
	}
	if cfg, ok := l.limits[ClassGeneral]; ok {
		return cfg
	}
	return Limit{Limit: 100, Window: time.Minute}
}

func (l *Limiter) open(cfg Limit, now time.Time) Result {
	return Result{
		Allowed:   true,
		Limit:     cfg.Limit,
		Remaining: cfg.Limit,
		ResetAt:   now.Add(cfg.Window),
	}
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
