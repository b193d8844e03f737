// Package kvstore provides the persistent string key/value backends that hold
// the client session between runs. Every backend stores plain strings keyed by
// short names; the session layer decides what the keys mean.
package kvstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown session backend")

// Store is a minimal string key/value store. Get reports found=false for a
// missing key instead of returning an error. Delete of a missing key is not an
// error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend       string
	FilePath      string
	RedisURL      string
	KeyPrefix     string
	TTL           time.Duration
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	EncryptionKey string // hex encoded, 32 bytes; empty disables encryption
}

// Open builds the backend named by opts.Backend. The returned close function
// releases any connection the backend holds and is always non-nil.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	var (
		store   Store
		closeFn = func() {}
	)

	switch opts.Backend {
	case BackendFile, "":
		store = NewFile(opts.FilePath)

	case BackendMemory:
		store = NewMemory()

	case BackendRedis:
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, closeFn, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, closeFn, fmt.Errorf("ping redis: %w", err)
		}
		store = NewRedis(rdb, opts.KeyPrefix, opts.TTL)
		closeFn = func() { rdb.Close() }

	case BackendPostgres:
		pool, err := newPool(ctx, opts.DatabaseURL, opts.DBMaxConns, opts.DBMinConns)
		if err != nil {
			return nil, closeFn, err
		}
		pg := NewPostgresFromPool(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, closeFn, err
		}
		store = pg
		closeFn = pool.Close

	default:
		return nil, closeFn, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}

	if opts.EncryptionKey != "" {
		key, err := hex.DecodeString(opts.EncryptionKey)
		if err != nil {
			closeFn()
			return nil, func() {}, fmt.Errorf("session encryption key is not valid hex: %w", err)
		}
		enc, err := NewEncrypted(store, key)
		if err != nil {
			closeFn()
			return nil, func() {}, err
		}
		store = enc
	}

	return store, closeFn, nil
}

func newPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
