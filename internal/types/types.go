package types

import (
	"context"
	"net/url"
	"strings"
	"time"

	"herald/internal/config"
)

type Variant string

const (
	VariantFeed     Variant = "feed"
	VariantTimeline Variant = "timeline"
)

var timelineHosts = map[string]bool{
	"twitter.com":        true,
	"www.twitter.com":    true,
	"mobile.twitter.com": true,
	"x.com":              true,
	"www.x.com":          true,
}

// VariantOf infers the source variant from its address. Anything that is not a
// timeline host is treated as a syndication feed.
func VariantOf(address string) Variant {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return VariantFeed
	}
	if timelineHosts[strings.ToLower(u.Hostname())] {
		return VariantTimeline
	}
	return VariantFeed
}

// Item is one normalized entry produced by a source fetch. Items are never
// persisted; only the fingerprint of their token is.
type Item struct {
	ID        string
	Title     string
	Link      string
	Content   string
	Author    string
	ImageURL  string
	Published string
	Timestamp time.Time
}

// Source fetches and normalizes the current item window of one configured source.
type Source interface {
	Variant() Variant
	Fetch(ctx context.Context, cfg config.SourceConfig) ([]*Item, error)
	// Identify returns the origin-specific unique token of an item. An empty
	// token means the item cannot be deduplicated.
	Identify(item *Item) string
}

// Screener is implemented by sources that fetch items which must be
// fingerprinted but are not candidates for notification.
type Screener interface {
	Eligible(item *Item) bool
}

type DispatchResult struct {
	Requests int
	Failed   int
}

// Dispatcher delivers newly detected items to the endpoints of a source.
type Dispatcher interface {
	Dispatch(ctx context.Context, variant Variant, items []*Item, cfg config.SourceConfig) DispatchResult
}
