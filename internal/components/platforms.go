package components

import (
	"context"
	"fmt"
	"log/slog"

	"herald/internal/config"
	"herald/internal/platforms"
)

type PlatformComponent struct {
	dispatch config.DispatchConfig
	timeline config.TimelineConfig
	logger   *slog.Logger

	webhooks *platforms.WebhookClient
	twitter  *platforms.TwitterClient
}

func NewPlatformComponent(dispatch config.DispatchConfig, timeline config.TimelineConfig, logger *slog.Logger) *PlatformComponent {
	if logger == nil {
		logger = slog.Default()
	}

	return &PlatformComponent{
		dispatch: dispatch,
		timeline: timeline,
		logger:   logger,
	}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

func (c *PlatformComponent) Dependencies() []string {
	return []string{}
}

func (c *PlatformComponent) Validate() error {
	return nil
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	webhooks := platforms.NewWebhookClient(c.dispatch.TimeoutDuration(), c.dispatch.RatePerSec, c.dispatch.Burst)
	if err := webhooks.Validate(); err != nil {
		return fmt.Errorf("webhook client validation failed: %w", err)
	}
	if err := webhooks.Initialize(ctx); err != nil {
		return fmt.Errorf("webhook client initialization failed: %w", err)
	}
	c.webhooks = webhooks

	twitter := platforms.NewTwitterClient(c.timeline, c.logger)
	if twitter == nil {
		c.logger.Warn("Timeline credential not configured, timeline sources will be skipped")
		return nil
	}
	if err := twitter.Validate(); err != nil {
		return fmt.Errorf("twitter client validation failed: %w", err)
	}
	if err := twitter.Initialize(ctx); err != nil {
		return fmt.Errorf("twitter client initialization failed: %w", err)
	}
	c.twitter = twitter
	return nil
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	if c.webhooks != nil {
		c.webhooks.Close(ctx)
	}
	if c.twitter != nil {
		c.twitter.Close(ctx)
	}
	return nil
}

func (c *PlatformComponent) Webhooks() *platforms.WebhookClient {
	return c.webhooks
}

// Twitter returns nil when no timeline credential is configured.
func (c *PlatformComponent) Twitter() *platforms.TwitterClient {
	return c.twitter
}
