package sources

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"herald/internal/config"
	"herald/internal/types"
)

const feedUserAgent = "herald/1.0"

// FeedSource polls RSS, Atom and JSON feeds.
type FeedSource struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

func NewFeedSource(timeout time.Duration, logger *slog.Logger) *FeedSource {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: http.DefaultTransport},
	}

	return &FeedSource{
		parser: parser,
		logger: logger,
	}
}

type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", feedUserAgent)
	return t.base.RoundTrip(req)
}

func (f *FeedSource) Variant() types.Variant {
	return types.VariantFeed
}

func (f *FeedSource) Fetch(ctx context.Context, cfg config.SourceConfig) ([]*types.Item, error) {
	f.logger.Debug("Feed source fetching", "source", cfg.Name(), "url", cfg.URL)

	feed, err := f.parser.ParseURLWithContext(cfg.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]*types.Item, 0, len(feed.Items))
	for _, feedItem := range feed.Items {
		if feedItem == nil {
			continue
		}
		items = append(items, convertFeedItem(feedItem))
	}

	f.logger.Debug("Feed source retrieved items", "source", cfg.Name(), "count", len(items))
	return items, nil
}

// Identify uses the item link. Feeds that omit links fall back to the title,
// then the GUID; titles are not guaranteed unique so such feeds dedup on a
// best-effort basis.
func (f *FeedSource) Identify(item *types.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if item.Title != "" {
		return item.Title
	}
	return item.ID
}

func convertFeedItem(feedItem *gofeed.Item) *types.Item {
	var timestamp time.Time
	if feedItem.PublishedParsed != nil {
		timestamp = *feedItem.PublishedParsed
	} else if feedItem.UpdatedParsed != nil {
		timestamp = *feedItem.UpdatedParsed
	}

	content := feedItem.Content
	if content == "" {
		content = feedItem.Description
	}

	published := feedItem.Published
	if published == "" {
		published = feedItem.Updated
	}

	return &types.Item{
		ID:        strings.TrimSpace(feedItem.GUID),
		Title:     cleanText(feedItem.Title),
		Link:      strings.TrimSpace(feedItem.Link),
		Content:   content,
		Author:    feedAuthor(feedItem),
		ImageURL:  feedImage(feedItem),
		Published: published,
		Timestamp: timestamp,
	}
}

func feedAuthor(feedItem *gofeed.Item) string {
	if feedItem.Author != nil && feedItem.Author.Name != "" {
		return feedItem.Author.Name
	}
	for _, a := range feedItem.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if feedItem.DublinCoreExt != nil && len(feedItem.DublinCoreExt.Creator) > 0 {
		return feedItem.DublinCoreExt.Creator[0]
	}
	return ""
}

// feedImage prefers an enclosure, then the item image, then the first <img>
// in the item markup.
func feedImage(feedItem *gofeed.Item) string {
	for _, enc := range feedItem.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}

	if feedItem.Image != nil && feedItem.Image.URL != "" {
		return feedItem.Image.URL
	}

	if src := firstImage(feedItem.Content); src != "" {
		return src
	}
	return firstImage(feedItem.Description)
}

func firstImage(markup string) string {
	if !strings.Contains(markup, "<img") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	src, _ := doc.Find("img").First().Attr("src")
	return strings.TrimSpace(src)
}

var htmlStripper = bluemonday.StrictPolicy()

// cleanText removes markup and decodes entities.
func cleanText(s string) string {
	s = htmlStripper.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}
