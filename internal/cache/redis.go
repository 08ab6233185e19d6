package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis stores values in Redis and tracks the keys of every namespace in a
// set so a namespace can be dropped without scanning the keyspace
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps a connected client
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key Key, dest interface{}) (bool, error) {
	val, err := r.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key Key, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key.String(), data, ttl)
	pipe.SAdd(ctx, namespaceSet(key.TenantID, key.Namespace), key.String())
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Invalidate(ctx context.Context, tenantID uuid.UUID, namespaces ...Namespace) error {
	for _, ns := range namespaces {
		set := namespaceSet(tenantID, ns)
		members, err := r.client.SMembers(ctx, set).Result()
		if err != nil {
			return err
		}
		keys := append(members, set)
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}
