package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"herald/internal/components"
	"herald/internal/config"
	"herald/internal/core"
	"herald/internal/sources"
	"herald/internal/state"
	"herald/internal/targets/discord"
	"herald/internal/types"
)

type Loader struct {
	config *config.Config
	logger *slog.Logger
}

func NewLoader(cfg *config.Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		config: cfg,
		logger: logger,
	}
}

// Initialize starts every component and assembles the pipeline and bot. The
// bot's shutdown closes the components in reverse order.
func (l *Loader) Initialize(ctx context.Context) (*state.State, error) {
	registry := components.NewRegistry(l.logger)
	l.logger.Info("Initializing all components")

	var current atomic.Pointer[core.Pipeline]
	status := func() any {
		p := current.Load()
		if p == nil {
			return nil
		}
		report, ok := p.LastReport()
		if !ok {
			return nil
		}
		return report
	}

	storageComp := components.NewStorageComponent(l.config.Storage)
	if err := registry.Register(storageComp); err != nil {
		return nil, fmt.Errorf("failed to register storage component: %w", err)
	}

	platformComp := components.NewPlatformComponent(l.config.Dispatch, l.config.Timeline, l.logger)
	if err := registry.Register(platformComp); err != nil {
		return nil, fmt.Errorf("failed to register platform component: %w", err)
	}

	serverComp := components.NewServerComponent(l.config.Bot.Name, l.config.Server, status, l.logger)
	if err := registry.Register(serverComp); err != nil {
		return nil, fmt.Errorf("failed to register server component: %w", err)
	}

	if err := registry.InitializeAll(ctx); err != nil {
		return nil, fmt.Errorf("component initialization failed: %w", err)
	}

	l.logger.Info("All components initialized successfully")

	pipeline := l.buildPipeline(storageComp, platformComp, serverComp)
	current.Store(pipeline)

	appState := state.NewState(l.config, registry, pipeline)
	appState.History = serverComp.History()
	appState.Bot = core.NewBot(core.BotConfig{
		Name:     l.config.Bot.Name,
		Pipeline: pipeline,
		Interval: l.config.Bot.IntervalDuration(),
		RunOnce:  l.config.Bot.RunOnce,
		Logger:   l.logger,
		ShutdownFn: func() error {
			return registry.CloseAll(context.Background())
		},
	})

	return appState, nil
}

func (l *Loader) buildPipeline(storageComp *components.StorageComponent, platformComp *components.PlatformComponent, serverComp *components.ServerComponent) *core.Pipeline {
	targetCfg := discord.Config{
		Sender:     platformComp.Webhooks(),
		EmbedColor: l.config.Dispatch.EmbedColor,
		BatchSize:  l.config.Dispatch.BatchSize,
		Logger:     l.logger,
	}
	if serverComp.Enabled() {
		targetCfg.Recorder = serverComp.History()
	}

	pipeline := core.NewPipeline(core.PipelineConfig{
		Store:      storageComp.Store(),
		Dispatcher: discord.New(targetCfg),
		Logger:     l.logger,
	})

	feed := sources.NewFeedSource(0, l.logger)

	// A nil *TwitterClient must stay a nil interface so the timeline source
	// reports the missing credential.
	var client sources.TimelineClient
	if twitter := platformComp.Twitter(); twitter != nil {
		client = twitter
	}
	timeline := sources.NewTimelineSource(client, l.logger)

	for _, src := range l.config.Sources {
		var source types.Source = feed
		if types.VariantOf(src.URL) == types.VariantTimeline {
			source = timeline
			if !timeline.Enabled() {
				l.logger.Warn("Timeline source will be skipped until a credential is configured", "source", src.Name())
			}
		}
		pipeline.AddRoute(core.Route{Config: src, Source: source})
	}

	return pipeline
}

func LoadAndBuild(ctx context.Context, configPath string, logger *slog.Logger) (*state.State, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	loader := NewLoader(cfg, logger)
	return loader.Initialize(ctx)
}
