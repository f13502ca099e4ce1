// Package persist records conversation turns outside the process. Drivers are
// best-effort sinks: the in-memory registry stays the source of truth.
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chadiek/glass-bridge/internal/session"
)

// Driver names a persistence backend.
type Driver string

const (
	DriverNone     Driver = "none"
	DriverSQLite   Driver = "sqlite"
	DriverRedis    Driver = "redis"
	DriverSupabase Driver = "supabase"
)

var (
	ErrInvalidDriver = errors.New("persist: unknown driver")
	ErrInvalidConfig = errors.New("persist: invalid driver configuration")
)

// Store is the persistence contract used by the response pipeline.
type Store interface {
	SaveConversationEntry(ctx context.Context, sessionID string, entry session.ConversationEntry) error
	TouchSessionUpdatedAt(ctx context.Context, sessionID string) error
	Close() error
}

// Option configures a driver.
type Option func(*options)

type options struct {
	sqlitePath  string
	redisClient *redis.Client
	redisTTL    time.Duration
	redisMaxLen int64
	supabaseURL string
	supabaseKey string
	now         func() time.Time
}

// WithSQLitePath sets the database file for the sqlite driver.
func WithSQLitePath(path string) Option {
	return func(o *options) { o.sqlitePath = path }
}

// WithRedisClient sets the client for the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithRedisTTL sets the expiry of redis keys.
func WithRedisTTL(ttl time.Duration) Option {
	return func(o *options) { o.redisTTL = ttl }
}

// WithRedisMaxLen caps the stored conversation list per session.
func WithRedisMaxLen(n int) Option {
	return func(o *options) { o.redisMaxLen = int64(n) }
}

// WithSupabase sets the credentials for the supabase driver.
func WithSupabase(url, serviceRoleKey string) Option {
	return func(o *options) { o.supabaseURL, o.supabaseKey = url, serviceRoleKey }
}

// WithClock overrides the time source for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewStore creates a Store for the given driver. An empty driver is "none".
func NewStore(driver Driver, opts ...Option) (Store, error) {
	cfg := &options{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case "", DriverNone:
		return nopStore{}, nil
	case DriverSQLite:
		if cfg.sqlitePath == "" {
			return nil, ErrInvalidConfig
		}
		s, err := openSQLite(cfg.sqlitePath, cfg.now)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := cfg.redisTTL
		if ttl <= 0 {
			ttl = 7 * 24 * time.Hour
		}
		maxLen := cfg.redisMaxLen
		if maxLen <= 0 {
			maxLen = 100
		}
		return &redisStore{client: cfg.redisClient, ttl: ttl, maxLen: maxLen, now: cfg.now}, nil
	case DriverSupabase:
		if cfg.supabaseURL == "" || cfg.supabaseKey == "" {
			return nil, ErrInvalidConfig
		}
		s, err := newSupabaseStore(cfg.supabaseURL, cfg.supabaseKey, cfg.now)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, ErrInvalidDriver
	}
}

type nopStore struct{}

func (nopStore) SaveConversationEntry(context.Context, string, session.ConversationEntry) error {
	return nil
}
func (nopStore) TouchSessionUpdatedAt(context.Context, string) error { return nil }
func (nopStore) Close() error                                        { return nil }
