package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes resolved permission sets per user in Redis. Each user has a
// generation counter and the data key embeds the current generation, so
// invalidation touches exactly one user, never a global flush. Invalidate
// bumps the counter instead of deleting: a load that was already in flight
// when the mutation committed writes under the old generation, which no
// reader consults anymore. The TTL is a backstop that reclaims superseded
// entries; correctness comes from Invalidate being called synchronously
// after every successful mutation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client degrades to
// loader-passthrough, which keeps tests and single-binary setups working.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func generationKey(userID int64) string {
	return "permissions:user:" + strconv.FormatInt(userID, 10) + ":gen"
}

func permissionsKey(userID, gen int64) string {
	return "permissions:user:" + strconv.FormatInt(userID, 10) + ":effective:" + strconv.FormatInt(gen, 10)
}

// generation returns the user's current cache generation, initialising it on
// first use. SetNX keeps a concurrent Invalidate bump from being overwritten.
func (c *Cache) generation(ctx context.Context, userID int64) (int64, error) {
	key := generationKey(userID)
	gen, err := c.client.Get(ctx, key).Int64()
	if err == nil {
		return gen, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}
	if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
		return 0, err
	}
	return c.client.Get(ctx, key).Int64()
}

// Effective returns the cached effective permission set for userID,
// populating it with loader on a miss. Concurrent misses for the same user
// and generation collapse into a single load.
func (c *Cache) Effective(ctx context.Context, userID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if loader == nil {
		return nil, errors.New("rbac: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	gen, err := c.generation(ctx, userID)
	if err != nil {
		return nil, err
	}
	key := permissionsKey(userID, gen)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var codes []string
		if err := json.Unmarshal(payload, &codes); err == nil {
			return codes, nil
		}
		// Corrupt entry: fall through and rebuild.
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		codes, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(codes)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return codes, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// Invalidate bumps the cache generation for one user. Called by the mutation
// engine before a mutation returns, so every read issued afterwards misses
// the old entries and recomputes from fresh state, even when a pre-mutation
// load is still writing its result.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, generationKey(userID)).Err()
}
