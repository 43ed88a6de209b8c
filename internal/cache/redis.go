package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"
)

// RedisCache shares resolved groups across broker replicas. A zero TTL
// stores entries without expiry.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed group cache.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "group:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(groupID string) string {
	return c.prefix + groupID
}

func (c *RedisCache) Get(ctx context.Context, groupID string) (identity.Group, bool) {
	val, err := c.client.Get(ctx, c.key(groupID)).Result()
	if err != nil {
		// redis.Nil and transport errors both read as a miss; the
		// caller falls through to the directory.
		return identity.Group{}, false
	}

	var g identity.Group
	if err := json.Unmarshal([]byte(val), &g); err != nil {
		return identity.Group{}, false
	}

	return g, true
}

func (c *RedisCache) Add(ctx context.Context, g identity.Group) {
	data, err := json.Marshal(g)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(g.ID), data, c.ttl)
}
