package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/feeds"

	"herald/internal/cache"
	"herald/internal/config"
	"herald/internal/types"
	"herald/internal/utils/hash"
)

// History keeps the most recently notified items and renders them as
// syndication feeds.
type History struct {
	name  string
	size  int
	mu    sync.RWMutex
	items []*feeds.Item
	cache *cache.Cache[FeedType, string]
	now   func() time.Time
}

func NewHistory(name string, size int) *History {
	if size <= 0 {
		size = 100
	}

	return &History{
		name:  name,
		size:  size,
		items: make([]*feeds.Item, 0, size),
		cache: newRenderCache(time.Hour),
		now:   time.Now,
	}
}

func (h *History) Record(cfg config.SourceConfig, items []*types.Item) {
	if len(items) == 0 {
		return
	}

	converted := make([]*feeds.Item, 0, len(items))
	for _, item := range items {
		converted = append(converted, h.convert(cfg, item))
	}

	h.mu.Lock()
	h.items = append(h.items, converted...)
	if len(h.items) > h.size {
		h.items = h.items[len(h.items)-h.size:]
	}
	h.mu.Unlock()

	h.cache.Clear()
}

func (h *History) convert(cfg config.SourceConfig, item *types.Item) *feeds.Item {
	created := item.Timestamp
	if created.IsZero() {
		created = h.now()
	}

	title := item.Title
	if title == "" {
		title = item.Link
	}

	author := item.Author
	if author == "" {
		author = cfg.Username
	}

	return &feeds.Item{
		Id:      hash.Fingerprint(cfg.URL + "\n" + item.Link + "\n" + item.ID),
		Title:   title,
		Link:    &feeds.Link{Href: item.Link},
		Author:  &feeds.Author{Name: author},
		Content: item.Content,
		Created: created,
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// Items returns the recorded items newest first.
func (h *History) Items() []*feeds.Item {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*feeds.Item, 0, len(h.items))
	for i := len(h.items) - 1; i >= 0; i-- {
		out = append(out, h.items[i])
	}
	return out
}

// Render returns the feed in the requested format, cached until the next
// Record.
func (h *History) Render(kind FeedType) (string, error) {
	if cached, found := h.cache.Get(kind); found {
		return cached, nil
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s notifications", h.name),
		Link:        &feeds.Link{Href: "http://localhost/"},
		Description: "Items recently forwarded to webhooks",
		Author:      &feeds.Author{Name: h.name},
		Created:     h.now().UTC(),
		Items:       h.Items(),
	}

	var (
		out string
		err error
	)
	switch kind {
	case TypeRSS:
		out, err = feed.ToRss()
	case TypeAtom:
		out, err = feed.ToAtom()
	case TypeJSON:
		out, err = feed.ToJSON()
	default:
		return "", fmt.Errorf("unknown feed type %q", kind)
	}
	if err != nil {
		return "", fmt.Errorf("failed to render %s feed: %w", kind, err)
	}

	h.cache.Set(kind, out)
	return out, nil
}
