package likes

import (
	"context"
	"sync"

	errs "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/metrics"
	"likesync/pkg/twitter"
)

// UserLookup resolves user ids to users in a single batched call
type UserLookup interface {
	FetchUsersByIDs(ctx context.Context, ids []string) ([]twitter.User, error)
}

// AuthorCache maps user ids to users for the lifetime of the process.
// Entries are never replaced or evicted.
type AuthorCache struct {
	mu     sync.RWMutex
	users  map[string]twitter.User
	lookup UserLookup
	logger logger.Logger
}

// NewAuthorCache creates an empty cache that resolves misses through lookup
func NewAuthorCache(lookup UserLookup, log logger.Logger) *AuthorCache {
	if log == nil {
		log = logger.GetLogger()
	}
	return &AuthorCache{
		users:  make(map[string]twitter.User),
		lookup: lookup,
		logger: log,
	}
}

// Get returns the cached user for id
func (c *AuthorCache) Get(id string) (twitter.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

// Len returns the number of cached users
func (c *AuthorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// Seed inserts users that are not cached yet
func (c *AuthorCache) Seed(users ...twitter.User) {
	c.mu.Lock()
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if _, exists := c.users[u.ID]; !exists {
			c.users[u.ID] = u
		}
	}
	n := len(c.users)
	c.mu.Unlock()

	metrics.AuthorCacheSize.Set(float64(n))
}

// Missing returns the distinct ids absent from the cache, in first-seen order
func (c *AuthorCache) Missing(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool, len(ids))
	var missing []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := c.users[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Resolve returns the users for ids. Hits are served from the cache and
// all misses go to one batched lookup. Ids the lookup does not return are
// absent from the result. A failed lookup is logged and tolerated unless
// it is an authentication failure or ctx ended, which are returned.
func (c *AuthorCache) Resolve(ctx context.Context, ids []string) (map[string]twitter.User, error) {
	missing := c.Missing(ids)

	if len(missing) > 0 {
		c.logger.DebugWithFields("resolving uncached authors", map[string]interface{}{
			"count": len(missing),
		})

		users, err := c.lookup.FetchUsersByIDs(ctx, missing)
		// keep whatever arrived before a failure
		c.Seed(users...)

		if err != nil {
			if errs.IsAuth(err) || ctx.Err() != nil {
				return c.snapshot(ids), err
			}
			c.logger.WithError(err).WithField("count", len(missing)).
				Warn("Author lookup failed; affected posts will be skipped")
		} else if len(users) < len(missing) {
			c.logger.DebugWithFields("author lookup returned fewer users than requested", map[string]interface{}{
				"requested": len(missing),
				"returned":  len(users),
			})
		}
	}

	return c.snapshot(ids), nil
}

func (c *AuthorCache) snapshot(ids []string) map[string]twitter.User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]twitter.User, len(ids))
	for _, id := range ids {
		if u, ok := c.users[id]; ok {
			out[id] = u
		}
	}
	return out
}
