// Package sessioncache caches user profiles in Redis so that identity
// resolution on protected endpoints does not hit Postgres on every request.
package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/dmitrijs2005/contactkeeper/internal/server/redisx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	profilePrefix    = "profile:"
	generationPrefix = "profile-gen:"
)

// putIfCurrent sets KEYS[1] only while the generation in KEYS[2] still
// equals ARGV[1].
var putIfCurrent = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if (cur or "0") ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// Loader fetches the authoritative profile on a cache miss.
type Loader func(ctx context.Context) (*models.Profile, error)

// Cache is a read-through profile cache.
//
// Every Invalidate bumps a per-subject generation counter. A load that
// started before the bump does not write its result back, so a stale
// profile cannot land in the cache after the invalidation returned.
type Cache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	policy common.RetryPolicy
	logger logging.Logger
	group  singleflight.Group
}

func NewCache(rdb redis.Cmdable, ttl time.Duration, policy common.RetryPolicy, logger logging.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, policy: policy, logger: logger}
}

func profileKey(subject string) string    { return profilePrefix + subject }
func generationKey(subject string) string { return generationPrefix + subject }

// GetOrLoad returns the cached profile for subject, or calls loader, caches
// its result for the configured TTL and returns it. Concurrent misses for
// the same subject share one loader call.
//
// Cache failures are logged and degrade to the loader; loader errors are
// always returned.
func (c *Cache) GetOrLoad(ctx context.Context, subject string, loader Loader) (*models.Profile, error) {
	if p, ok := c.get(ctx, subject); ok {
		return p, nil
	}

	v, err, _ := c.group.Do(subject, func() (any, error) {
		gen, genErr := c.generation(ctx, subject)

		p, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		if genErr != nil {
			c.logger.Warn(ctx, "session cache generation read failed, not caching", "user_id", subject, "error", genErr)
			return p, nil
		}
		c.put(ctx, subject, gen, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Profile), nil
}

// Invalidate drops subject's cached profile. It returns only after Redis
// acknowledged the delete.
func (c *Cache) Invalidate(ctx context.Context, subject string) error {
	err := common.Retry(ctx, c.policy, func(ctx context.Context) error {
		_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, profileKey(subject))
			pipe.Incr(ctx, generationKey(subject))
			pipe.Expire(ctx, generationKey(subject), c.ttl)
			return nil
		})
		return redisx.Transient(err)
	})
	c.group.Forget(subject)
	return err
}

func (c *Cache) get(ctx context.Context, subject string) (*models.Profile, bool) {
	raw, err := common.RetryValue(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		b, err := c.rdb.Get(ctx, profileKey(subject)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, redisx.Transient(err)
	})
	if err != nil {
		c.logger.Warn(ctx, "session cache read failed, falling back to store", "user_id", subject, "error", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}

	var p models.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn(ctx, "session cache entry is corrupt", "user_id", subject, "error", err)
		return nil, false
	}
	return &p, true
}

func (c *Cache) generation(ctx context.Context, subject string) (int64, error) {
	return common.RetryValue(ctx, c.policy, func(ctx context.Context) (int64, error) {
		n, err := c.rdb.Get(ctx, generationKey(subject)).Int64()
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return n, redisx.Transient(err)
	})
}

// put stores p unless an invalidation happened since gen was read.
func (c *Cache) put(ctx context.Context, subject string, gen int64, p *models.Profile) {
	raw, err := json.Marshal(p)
	if err != nil {
		c.logger.Error(ctx, "encode cached profile", "user_id", subject, "error", err)
		return
	}

	stored, err := common.RetryValue(ctx, c.policy, func(ctx context.Context) (int64, error) {
		n, err := putIfCurrent.Run(ctx, c.rdb,
			[]string{profileKey(subject), generationKey(subject)},
			strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds(),
		).Int64()
		return n, redisx.Transient(err)
	})
	if err != nil {
		c.logger.Warn(ctx, "session cache write failed", "user_id", subject, "error", err)
		return
	}
	if stored == 0 {
		c.logger.Debug(ctx, "session cache write skipped after invalidation", "user_id", subject)
	}
}
