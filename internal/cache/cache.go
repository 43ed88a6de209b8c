// Package cache provides the directory-side group lookup cache. Group
// names are assumed immutable for the lifetime of a cache entry; renames
// are only picked up after the entry is evicted or expires.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"
)

// GroupCache maps directory group ids to resolved groups. Implementations
// must be safe for concurrent use.
type GroupCache interface {
	Get(ctx context.Context, groupID string) (identity.Group, bool)
	Add(ctx context.Context, g identity.Group)
}

// DefaultSize bounds the in-process cache. Directory deployments hold at
// most a few hundred groups, so entries are effectively never evicted.
const DefaultSize = 4096

// LRUCache is the default in-process backend. Entries never expire by
// time; eviction only happens under capacity pressure.
type LRUCache struct {
	inner *lru.Cache[string, identity.Group]
}

// NewLRU builds an in-process cache holding up to size groups. A size of
// zero or less falls back to DefaultSize.
func NewLRU(size int) (*LRUCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	inner, err := lru.New[string, identity.Group](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(_ context.Context, groupID string) (identity.Group, bool) {
	return c.inner.Get(groupID)
}

func (c *LRUCache) Add(_ context.Context, g identity.Group) {
	c.inner.Add(g.ID, g)
}
