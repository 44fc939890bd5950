// Package revocation keeps the one valid refresh-token identifier per user
// in Redis. The key expires together with the refresh token it names, so
// abandoned sessions clean themselves up.
package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/server/redisx"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "refresh:"

type Registry struct {
	rdb    redis.Cmdable
	policy common.RetryPolicy
}

func NewRegistry(rdb redis.Cmdable, policy common.RetryPolicy) *Registry {
	return &Registry{rdb: rdb, policy: policy}
}

func key(subject string) string {
	return keyPrefix + subject
}

// Record makes tokenID the current refresh identifier for subject,
// unconditionally replacing any previous one. Concurrent rotations resolve
// last-write-wins.
func (r *Registry) Record(ctx context.Context, subject, tokenID string, ttl time.Duration) error {
	return common.Retry(ctx, r.policy, func(ctx context.Context) error {
		return redisx.Transient(r.rdb.Set(ctx, key(subject), tokenID, ttl).Err())
	})
}

// IsCurrent reports whether tokenID is the identifier on record. A missing
// entry (never issued, expired or revoked) is simply false.
func (r *Registry) IsCurrent(ctx context.Context, subject, tokenID string) (bool, error) {
	current, err := common.RetryValue(ctx, r.policy, func(ctx context.Context) (string, error) {
		v, err := r.rdb.Get(ctx, key(subject)).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return v, redisx.Transient(err)
	})
	if err != nil {
		return false, err
	}
	return current != "" && current == tokenID, nil
}

// Revoke drops subject's entry; the next refresh fails with
// common.ErrTokenRevoked. Revoking an absent entry is not an error.
func (r *Registry) Revoke(ctx context.Context, subject string) error {
	return common.Retry(ctx, r.policy, func(ctx context.Context) error {
		return redisx.Transient(r.rdb.Del(ctx, key(subject)).Err())
	})
}
