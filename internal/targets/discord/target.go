package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"herald/internal/config"
	"herald/internal/metrics"
	"herald/internal/platforms"
	"herald/internal/types"
)

// Sender delivers one JSON payload to one endpoint.
type Sender interface {
	Post(ctx context.Context, endpoint string, payload any) error
}

// Recorder is notified of items that reached at least one endpoint.
type Recorder interface {
	Record(cfg config.SourceConfig, items []*types.Item)
}

type Config struct {
	Sender     Sender
	EmbedColor int
	BatchSize  int
	Recorder   Recorder
	Logger     *slog.Logger
}

// Target formats new items as webhook messages and sends them to every
// endpoint of their source. Delivery is at most once: failed sends are
// logged and never retried.
type Target struct {
	sender     Sender
	embedColor int
	batchSize  int
	recorder   Recorder
	logger     *slog.Logger
}

func New(cfg Config) *Target {
	if cfg.EmbedColor == 0 {
		cfg.EmbedColor = config.DefaultEmbedColor
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxEmbedsPerMessage {
		cfg.BatchSize = MaxEmbedsPerMessage
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Target{
		sender:     cfg.Sender,
		embedColor: cfg.EmbedColor,
		batchSize:  cfg.BatchSize,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
	}
}

// Dispatch sends items in order. Feed items are grouped into multi-embed
// messages; timeline items are sent one plain message each.
func (t *Target) Dispatch(ctx context.Context, variant types.Variant, items []*types.Item, cfg config.SourceConfig) types.DispatchResult {
	var result types.DispatchResult
	if len(items) == 0 || len(cfg.Webhooks) == 0 {
		return result
	}

	switch variant {
	case types.VariantTimeline:
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			sent := t.fanOut(ctx, variant, cfg, contentParams(cfg, item.Link), &result)
			if sent > 0 {
				t.record(cfg, []*types.Item{item})
			}
		}
	default:
		for _, batch := range Chunk(items, t.batchSize) {
			if ctx.Err() != nil {
				break
			}

			embeds := make([]*discordgo.MessageEmbed, 0, len(batch))
			for _, item := range batch {
				embeds = append(embeds, EmbedFrom(item, t.embedColor))
			}

			sent := t.fanOut(ctx, variant, cfg, embedParams(cfg, embeds), &result)
			if sent > 0 {
				t.record(cfg, batch)
			}
		}
	}

	return result
}

// fanOut posts payload to every endpoint of cfg concurrently and waits for
// all of them. It returns the number of successful sends.
func (t *Target) fanOut(ctx context.Context, variant types.Variant, cfg config.SourceConfig, payload any, result *types.DispatchResult) int {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)

	for _, endpoint := range cfg.Webhooks {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()

			err := t.sender.Post(ctx, endpoint, payload)

			mu.Lock()
			defer mu.Unlock()
			result.Requests++

			if err != nil {
				result.Failed++
				t.logSendError(cfg, endpoint, variant, err)
				return
			}

			sent++
			metrics.Notifications.WithLabelValues(string(variant), "sent").Inc()
			t.logger.Info("Webhook sent", "source", cfg.Name(), "username", cfg.Username, "endpoint", platforms.Redact(endpoint))
		}(endpoint)
	}

	wg.Wait()
	return sent
}

func (t *Target) logSendError(cfg config.SourceConfig, endpoint string, variant types.Variant, err error) {
	var sendErr *types.SendError
	if errors.As(err, &sendErr) && sendErr.StatusCode == 429 {
		metrics.Notifications.WithLabelValues(string(variant), "rate_limited").Inc()
		t.logger.Warn("Webhook rate limited, not retrying",
			"source", cfg.Name(),
			"endpoint", sendErr.Endpoint,
			"retry_after", sendErr.RetryAfter,
		)
		return
	}

	metrics.Notifications.WithLabelValues(string(variant), "failed").Inc()
	t.logger.Error("Failed to send webhook", "source", cfg.Name(), "endpoint", platforms.Redact(endpoint), "error", err)
}

func (t *Target) record(cfg config.SourceConfig, items []*types.Item) {
	if t.recorder != nil {
		t.recorder.Record(cfg, items)
	}
}
