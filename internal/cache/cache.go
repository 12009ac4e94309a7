package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// NoExpiration keeps entries for the lifetime of the cache.
const NoExpiration = gocache.NoExpiration

// Cache is a typed view over go-cache. Keys are mapped to strings by the
// key function, which may also normalize them.
type Cache[K comparable, V any] struct {
	store *gocache.Cache
	key   func(K) string
}

// New builds a cache whose entries live for ttl. A zero ttl means one hour.
func New[K comparable, V any](ttl time.Duration, key func(K) string) *Cache[K, V] {
	if ttl == 0 {
		ttl = time.Hour
	}

	cleanup := ttl / 2
	if ttl < 0 {
		cleanup = 0
	}

	return &Cache[K, V]{
		store: gocache.New(ttl, cleanup),
		key:   key,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V

	value, found := c.store.Get(c.key(key))
	if !found {
		return zero, false
	}

	typed, ok := value.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.store.Set(c.key(key), value, gocache.DefaultExpiration)
}

// GetOrLoad returns the cached value for key, calling load on a miss. Load
// errors are returned and nothing is stored.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, bool, error) {
	if value, ok := c.Get(key); ok {
		return value, true, nil
	}

	value, err := load()
	if err != nil {
		var zero V
		return zero, false, err
	}

	c.Set(key, value)
	return value, false, nil
}

func (c *Cache[K, V]) Delete(key K) {
	c.store.Delete(c.key(key))
}

func (c *Cache[K, V]) Len() int {
	return c.store.ItemCount()
}

func (c *Cache[K, V]) Clear() {
	c.store.Flush()
}
