package audiocache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Cache = (*Postgres)(nil)

const ddlAudioCache = `
CREATE TABLE IF NOT EXISTS tts_audio_cache (
    key          TEXT         PRIMARY KEY,
    content_type TEXT         NOT NULL DEFAULT '',
    provider     TEXT         NOT NULL DEFAULT '',
    data         BYTEA        NOT NULL,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tts_audio_cache_created_at
    ON tts_audio_cache (created_at);
`

// Migrate creates the cache table if it does not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlAudioCache); err != nil {
		return fmt.Errorf("audiocache: migrate: %w", err)
	}
	return nil
}

// Postgres is a [Cache] backed by the tts_audio_cache table. Entries older
// than the TTL are ignored on read and removed by [Postgres.Purge].
type Postgres struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgres connects to dsn, verifies the connection, and runs [Migrate].
// A zero ttl keeps entries forever.
func NewPostgres(ctx context.Context, dsn string, ttl time.Duration) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audiocache: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audiocache: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audiocache: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool, ttl: ttl}, nil
}

// Get implements [Cache].
func (p *Postgres) Get(ctx context.Context, key string) (Entry, error) {
	const q = `
		SELECT data, content_type, provider, created_at
		FROM   tts_audio_cache
		WHERE  key = $1
		  AND  ($2::bigint = 0 OR created_at > now() - make_interval(secs => $2::bigint))`

	var e Entry
	err := p.pool.QueryRow(ctx, q, key, int64(p.ttl/time.Second)).
		Scan(&e.Data, &e.ContentType, &e.Provider, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("audiocache: get: %w", err)
	}
	return e, nil
}

// Put implements [Cache]. An existing entry for key is overwritten and its
// age reset.
func (p *Postgres) Put(ctx context.Context, key string, e Entry) error {
	const q = `
		INSERT INTO tts_audio_cache (key, content_type, provider, data, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (key) DO UPDATE
		   SET content_type = EXCLUDED.content_type,
		       provider     = EXCLUDED.provider,
		       data         = EXCLUDED.data,
		       created_at   = EXCLUDED.created_at`

	if _, err := p.pool.Exec(ctx, q, key, e.ContentType, e.Provider, e.Data); err != nil {
		return fmt.Errorf("audiocache: put: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (p *Postgres) Purge(ctx context.Context) (int64, error) {
	if p.ttl <= 0 {
		return 0, nil
	}
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM tts_audio_cache WHERE created_at <= now() - make_interval(secs => $1::bigint)`,
		int64(p.ttl/time.Second))
	if err != nil {
		return 0, fmt.Errorf("audiocache: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping implements [Cache].
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Pool returns the underlying connection pool.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }
