package ledger

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"famledger/internal/cache"
	"famledger/internal/core"
)

// CategoryLookup resolves categories through a TTL cache. Categories are
// read-only for the ledger, so a stale entry can only delay seeing a newly
// deactivated category by one TTL.
type CategoryLookup struct {
	cache *cache.LRUCache[core.Category]
	group singleflight.Group
}

func NewCategoryLookup(size int, ttl time.Duration) *CategoryLookup {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CategoryLookup{cache: cache.NewLRUCache[core.Category](size, ttl)}
}

// Get returns the category with id, reading through r on a miss.
func (l *CategoryLookup) Get(ctx context.Context, r Reader, id string) (core.Category, error) {
	if c, ok := l.cache.Get(id); ok {
		return c, nil
	}
	v, err, _ := l.group.Do(id, func() (any, error) {
		c, err := r.GetCategory(ctx, id)
		if err != nil {
			return core.Category{}, err
		}
		l.cache.Set(id, c)
		return c, nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return v.(core.Category), nil
}

// Forget drops id from the cache.
func (l *CategoryLookup) Forget(id string) {
	l.cache.Delete(id)
}

// Cache exposes the underlying cache for the periodic cleaner.
func (l *CategoryLookup) Cache() *cache.LRUCache[core.Category] {
	return l.cache
}
