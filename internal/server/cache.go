package server

import (
	"time"

	"herald/internal/cache"
)

type FeedType string

const (
	TypeRSS  FeedType = "rss"
	TypeAtom FeedType = "atom"
	TypeJSON FeedType = "json"
)

func newRenderCache(ttl time.Duration) *cache.Cache[FeedType, string] {
	return cache.New[FeedType, string](ttl, func(k FeedType) string {
		return "feed:" + string(k)
	})
}
