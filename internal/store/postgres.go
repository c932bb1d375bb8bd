package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	defaultMaxOpenConns = 10
	defaultSweepEvery   = 10 * time.Minute
)

// Timestamps persist as epoch milliseconds so expiry comparisons stay in
// integer arithmetic on the database side.
const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	expires_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS cache_entries_expires_at_idx ON cache_entries (expires_at);

CREATE TABLE IF NOT EXISTS rate_limits (
	identifier   TEXT NOT NULL,
	class        TEXT NOT NULL,
	count        INTEGER NOT NULL,
	window_start BIGINT NOT NULL,
	expires_at   BIGINT NOT NULL,
	PRIMARY KEY (identifier, class)
);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id    TEXT PRIMARY KEY,
	profile    JSONB NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS applications (
	user_id    TEXT NOT NULL,
	job_id     TEXT NOT NULL,
	doc        JSONB NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (user_id, job_id)
);
`

// Postgres is the production Store implementation.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
	done   chan struct{}
}

// NewPostgres opens a connection pool, applies the schema and starts the
// background sweeper for expired rows. The sweeper is an optimization only;
// every read already filters on expiry.
func NewPostgres(dsn string, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	p := &Postgres{
		db:     db,
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.sweepLoop(defaultSweepEvery)

	return p, nil
}

func (p *Postgres) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = $1 AND expires_at > $2`,
		key, toMillis(time.Now()),
	)

	entry := CacheEntry{Key: key}
	var expires int64
	if err := row.Scan((*[]byte)(&entry.Value), &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	entry.ExpiresAt = fromMillis(expires)

	return &entry, nil
}

func (p *Postgres) UpsertEntry(ctx context.Context, key string, value json.RawMessage, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, []byte(value), toMillis(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteEntry(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteEntriesByPrefix(ctx context.Context, prefix string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE $1 ESCAPE '\'`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return fmt.Errorf("delete entries by prefix: %w", err)
	}
	return nil
}

func (p *Postgres) GetEntries(ctx context.Context, keys []string) ([]CacheEntry, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT key, value, expires_at FROM cache_entries WHERE key = ANY($1) AND expires_at > $2`,
		pq.Array(keys), toMillis(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var entry CacheEntry
		var expires int64
		if err := rows.Scan(&entry.Key, (*[]byte)(&entry.Value), &expires); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.ExpiresAt = fromMillis(expires)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}

	return entries, nil
}

func (p *Postgres) BulkUpsertEntries(ctx context.Context, entries []CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(entries)*3)
	)
	sb.WriteString(`INSERT INTO cache_entries (key, value, expires_at) VALUES `)
	for i, entry := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, entry.Key, []byte(entry.Value), toMillis(entry.ExpiresAt))
	}
	sb.WriteString(` ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`)

	if _, err := p.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("bulk upsert entries: %w", err)
	}
	return nil
}

// IncrementWindow runs as a single upsert statement so concurrent requests
// for the same (identifier, class) serialize on the row and no increment is
// lost. A record whose window_start fell behind the threshold is replaced by
// a fresh window with count 1.
func (p *Postgres) IncrementWindow(ctx context.Context, identifier, class string, threshold, windowStart, expiresAt time.Time) (*RateLimitRecord, error) {
	row := p.db.QueryRowContext(ctx,
		`INSERT INTO rate_limits (identifier, class, count, window_start, expires_at)
		 VALUES ($1, $2, 1, $3, $4)
		 ON CONFLICT (identifier, class) DO UPDATE SET
			count        = CASE WHEN rate_limits.window_start > $5 THEN rate_limits.count + 1 ELSE 1 END,
			window_start = CASE WHEN rate_limits.window_start > $5 THEN rate_limits.window_start ELSE EXCLUDED.window_start END,
			expires_at   = CASE WHEN rate_limits.window_start > $5 THEN rate_limits.expires_at ELSE EXCLUDED.expires_at END
		 RETURNING count, window_start, expires_at`,
		identifier, class, toMillis(windowStart), toMillis(expiresAt), toMillis(threshold),
	)

	record := RateLimitRecord{Identifier: identifier, Class: class}
	var start, expires int64
	if err := row.Scan(&record.Count, &start, &expires); err != nil {
		return nil, fmt.Errorf("increment window: %w", err)
	}
	record.WindowStart = fromMillis(start)
	record.ExpiresAt = fromMillis(expires)

	return &record, nil
}

func (p *Postgres) GetWindow(ctx context.Context, identifier, class string, threshold time.Time) (*RateLimitRecord, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT count, window_start, expires_at FROM rate_limits
		 WHERE identifier = $1 AND class = $2 AND window_start > $3`,
		identifier, class, toMillis(threshold),
	)

	record := RateLimitRecord{Identifier: identifier, Class: class}
	var start, expires int64
	if err := row.Scan(&record.Count, &start, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get window: %w", err)
	}
	record.WindowStart = fromMillis(start)
	record.ExpiresAt = fromMillis(expires)

	return &record, nil
}

func (p *Postgres) SaveProfile(ctx context.Context, userID string, profile json.RawMessage) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, profile, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at`,
		userID, []byte(profile), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (p *Postgres) GetProfile(ctx context.Context, userID string) (json.RawMessage, error) {
	var profile []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT profile FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (p *Postgres) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func (p *Postgres) PutApplication(ctx context.Context, userID, jobID string, doc json.RawMessage) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO applications (user_id, job_id, doc, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, job_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		userID, jobID, []byte(doc), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put application: %w", err)
	}
	return nil
}

func (p *Postgres) GetApplication(ctx context.Context, userID, jobID string) (json.RawMessage, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT doc FROM applications WHERE user_id = $1 AND job_id = $2`, userID, jobID,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return doc, nil
}

func (p *Postgres) ListApplications(ctx context.Context, userID string) ([]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT doc FROM applications WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	return docs, nil
}

func (p *Postgres) DeleteApplication(ctx context.Context, userID, jobID string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM applications WHERE user_id = $1 AND job_id = $2`, userID, jobID,
	)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	close(p.done)
	return p.db.Close()
}

// sweepLoop reclaims expired rows in the background. Reads never depend on
// it having run.
func (p *Postgres) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			now := toMillis(time.Now())
			if _, err := p.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= $1`, now); err != nil {
				p.logger.Warn("sweeping expired cache entries failed", zap.Error(err))
			}
			if _, err := p.db.Exec(`DELETE FROM rate_limits WHERE expires_at <= $1`, now); err != nil {
				p.logger.Warn("sweeping expired rate limit records failed", zap.Error(err))
			}
		}
	}
}

// escapeLike neutralizes LIKE wildcards so a prefix is matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
