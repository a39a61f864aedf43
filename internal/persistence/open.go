package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	_ "modernc.org/sqlite"
)

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a history backend.
type Options struct {
	Backend string

	// SQLitePath is a file path or ":memory:".
	SQLitePath string

	RedisAddr   string
	RedisPrefix string
	RedisTTL    time.Duration
}

// Open builds the EventStore named by opts.Backend. The returned close
// function releases any connection the store owns and is never nil.
func Open(ctx context.Context, opts Options) (EventStore, func() error, error) {
	noClose := func() error { return nil }

	switch opts.Backend {
	case "", BackendNone:
		return NoopEventStore{}, noClose, nil

	case BackendMemory:
		return NewInMemoryEventStore(), noClose, nil

	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite history %q: %w", path, err)
		}
		if path == ":memory:" {
			// Each connection to :memory: is its own database.
			db.SetMaxOpenConns(1)
		}
		store, err := NewSQLiteEventStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("init sqlite history: %w", err)
		}
		return store, db.Close, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis history ping %s: %w", opts.RedisAddr, err)
		}
		store := NewRedisEventStore(client, opts.RedisPrefix).WithTTL(opts.RedisTTL)
		return store, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
