package initfile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// KeyPrefix is prepended to the file name; each file is a hash of
// section -> definition.
const KeyPrefix = "projinit:"

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

// Redis resolves sections with HGET projinit:<file> <section>.
type Redis struct {
	rdb     *redis.Client
	observe func(result string)
}

func NewRedis(ctx context.Context, addr string, observe func(result string), opts ...Option) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Redis{rdb: rdb, observe: observe}, nil
}

func (r *Redis) Lookup(ctx context.Context, file, section string) (string, error) {
	def, err := r.rdb.HGet(ctx, KeyPrefix+file, section).Result()
	switch {
	case errors.Is(err, redis.Nil):
		r.observe("not_found")
		return "", fmt.Errorf("%w: %s:%s", ErrNotFound, file, section)
	case err != nil:
		r.observe("error")
		return "", &model.Error{Code: model.ErrOtherNetworkError, Msg: fmt.Sprintf("redis HGET %s%s: %v", KeyPrefix, file, err)}
	}
	r.observe("hit")
	return def, nil
}

// Store writes a section, used by tooling and tests to seed definitions.
func (r *Redis) Store(ctx context.Context, file, section, definition string) error {
	if err := r.rdb.HSet(ctx, KeyPrefix+file, section, definition).Err(); err != nil {
		return fmt.Errorf("redis HSET %s%s: %w", KeyPrefix, file, err)
	}
	return nil
}

// Ping backs the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	if err := r.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
