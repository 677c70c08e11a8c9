package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares the revocation set across processes. Staleness is bounded by
// redis replication lag, in practice well under the few-seconds budget the
// pipeline tolerates for a just-revoked token.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "revoked"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(jti string) string { return r.prefix + ":" + jti }

func (r *Redis) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(ctx, r.key(jti), "1", ttl).Err()
}

func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
