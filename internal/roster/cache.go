package roster

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cached keeps program rosters in Redis for ttl. Single-student reads go straight to the
// underlying registry.
type Cached struct {
	inner  Registry
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

var _ Registry = (*Cached)(nil)

// NewCached wraps inner with a Redis read-through cache.
func NewCached(inner Registry, client *redis.Client, ttl time.Duration, log *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{inner: inner, client: client, ttl: ttl, log: log.Named("roster-cache")}
}

func programKey(program string) string {
	return "roster:program:" + program
}

// ByProgram serves the roster from Redis when possible. Cache failures fall back to the
// registry.
func (c *Cached) ByProgram(ctx context.Context, program string) ([]Student, error) {
	key := programKey(program)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var students []Student
		if err := json.Unmarshal(raw, &students); err == nil {
			return students, nil
		}
		c.log.Warn("discarding corrupt roster cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("roster cache read failed", zap.String("key", key), zap.Error(err))
	}

	students, err := c.inner.ByProgram(ctx, program)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(students); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("roster cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return students, nil
}

func (c *Cached) Get(ctx context.Context, id string) (Student, error) {
	return c.inner.Get(ctx, id)
}

func (c *Cached) Lookup(ctx context.Context, ids []string) (map[string]Student, error) {
	return c.inner.Lookup(ctx, ids)
}

// Upsert writes through and drops the cached rosters of the old and new program.
func (c *Cached) Upsert(ctx context.Context, s Student) (Student, error) {
	keys := []string{programKey(s.Program)}
	if prev, err := c.inner.Get(ctx, s.ID); err == nil && prev.Program != s.Program {
		keys = append(keys, programKey(prev.Program))
	}
	out, err := c.inner.Upsert(ctx, s)
	if err != nil {
		return Student{}, err
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("roster cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return out, nil
}
