package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"herald/internal/cache"
	"herald/internal/config"
	"herald/internal/platforms"
	"herald/internal/types"
)

const timelineDateLayout = "2006-01-02T15:04:05.000Z07:00"

type TimelineClient interface {
	LookupUserID(ctx context.Context, handle string) (string, error)
	RecentTweets(ctx context.Context, userID string) ([]platforms.Tweet, error)
}

// TimelineSource polls a user timeline. Handles are resolved to account IDs
// once and cached for the life of the process.
type TimelineSource struct {
	client TimelineClient
	ids    *cache.Cache[string, string]
	logger *slog.Logger
	now    func() time.Time
}

// NewTimelineSource accepts a nil client; every fetch then fails with
// types.ErrCredentialMissing.
func NewTimelineSource(client TimelineClient, logger *slog.Logger) *TimelineSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &TimelineSource{
		client: client,
		ids:    cache.New[string, string](cache.NoExpiration, strings.ToLower),
		logger: logger,
		now:    time.Now,
	}
}

func (t *TimelineSource) Variant() types.Variant {
	return types.VariantTimeline
}

func (t *TimelineSource) Enabled() bool {
	return t.client != nil
}

func (t *TimelineSource) Fetch(ctx context.Context, cfg config.SourceConfig) ([]*types.Item, error) {
	if t.client == nil {
		return nil, types.ErrCredentialMissing
	}

	handle, err := Handle(cfg.URL)
	if err != nil {
		return nil, types.NewSourceError(cfg.Name(), types.StageLookup, err)
	}

	userID, err := t.resolve(ctx, handle)
	if err != nil {
		return nil, types.NewSourceError(cfg.Name(), types.StageLookup, err)
	}

	tweets, err := t.client.RecentTweets(ctx, userID)
	if err != nil {
		return nil, types.NewSourceError(cfg.Name(), types.StageFetch, err)
	}

	items := make([]*types.Item, 0, len(tweets))
	for _, tw := range tweets {
		items = append(items, &types.Item{
			ID:        tw.ID,
			Title:     tw.Text,
			Link:      Permalink(handle, tw.ID),
			Content:   tw.Text,
			Author:    handle,
			Published: tw.CreatedAt.UTC().Format(timelineDateLayout),
			Timestamp: tw.CreatedAt,
		})
	}

	return items, nil
}

func (t *TimelineSource) resolve(ctx context.Context, handle string) (string, error) {
	id, hit, err := t.ids.GetOrLoad(handle, func() (string, error) {
		return t.client.LookupUserID(ctx, handle)
	})
	if err != nil {
		return "", err
	}

	if !hit {
		t.logger.Debug("Resolved timeline handle", "handle", handle, "user_id", id)
	}
	return id, nil
}

func (t *TimelineSource) Identify(item *types.Item) string {
	return item.ID
}

// Eligible reports whether the post was created on the current local
// calendar day. Older posts are still fingerprinted so they never fire once
// the day rolls over.
func (t *TimelineSource) Eligible(item *types.Item) bool {
	if item.Timestamp.IsZero() {
		return false
	}
	return sameDay(item.Timestamp.In(time.Local), t.now().In(time.Local))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Handle returns the account handle of a timeline address, the first path
// segment of the URL.
func Handle(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid timeline url: %w", err)
	}

	segment := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)[0]
	segment = strings.TrimPrefix(segment, "@")
	if segment == "" {
		return "", fmt.Errorf("timeline url %s has no handle", address)
	}
	return segment, nil
}

func Permalink(handle, id string) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", handle, id)
}
