package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/metrics"
	"herald/internal/types"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

type Bot struct {
	name       string
	pipeline   *Pipeline
	interval   time.Duration
	runOnce    bool
	logger     *slog.Logger
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	closeOnce  sync.Once
	shutdownFn func() error
}

type BotConfig struct {
	Name       string
	Pipeline   *Pipeline
	Interval   time.Duration
	RunOnce    bool
	Logger     *slog.Logger
	ShutdownFn func() error
}

func NewBot(config BotConfig) *Bot {
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Bot{
		name:       config.Name,
		pipeline:   config.Pipeline,
		interval:   config.Interval,
		runOnce:    config.RunOnce,
		logger:     config.Logger,
		running:    false,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		shutdownFn: config.ShutdownFn,
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called. In run-once mode it returns after the first
// pass. A tick that fires while a pass is still running is skipped.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	b.running = true
	b.mu.Unlock()

	defer close(b.doneCh)

	if err := b.pipeline.Initialize(ctx); err != nil {
		b.markStopped()
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if b.runOnce {
		return b.runOnceMode(ctx)
	}

	return b.runContinuousMode(ctx)
}

func (b *Bot) runOnceMode(ctx context.Context) error {
	defer b.markStopped()

	if _, err := b.pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	return nil
}

func (b *Bot) runContinuousMode(ctx context.Context) error {
	defer b.markStopped()

	b.executeRun(ctx)

	logger := newCronLogger(b.logger)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(b.interval), cron.FuncJob(func() {
		b.executeRun(ctx)
	}))
	c.Start()

	b.logger.Info("Scheduler started", "name", b.name, "interval", b.interval)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-b.stopCh:
	}

	// Wait for an in-flight pass to finish.
	<-c.Stop().Done()
	b.logger.Info("Scheduler stopped", "name", b.name)
	return err
}

func (b *Bot) executeRun(ctx context.Context) {
	_, err := b.pipeline.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrPassInProgress):
		metrics.PassesSkipped.Inc()
		b.logger.Warn("Previous pass still running, skipping tick")
	case errors.Is(err, context.Canceled):
	default:
		b.logger.Error("Pass failed", "error", err)
	}
}

// Stop ends the schedule, waits for the running pass and releases the
// components behind the bot.
func (b *Bot) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stopCh) })

	if b.IsRunning() {
		select {
		case <-b.doneCh:
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for pass to finish: %w", ctx.Err())
		}
	}

	var err error
	b.closeOnce.Do(func() {
		if b.shutdownFn != nil {
			if shutdownErr := b.shutdownFn(); shutdownErr != nil {
				err = fmt.Errorf("custom shutdown failed: %w", shutdownErr)
			}
		}
	})
	return err
}

func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// State reports whether a pass is in progress.
func (b *Bot) State() State {
	if b.pipeline.IsRunning() {
		return StateRunning
	}
	return StateIdle
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) Pipeline() *Pipeline {
	return b.pipeline
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// cronLogger routes cron's internal logging to slog and counts ticks the
// scheduler dropped because a pass was still running.
type cronLogger struct {
	logger *slog.Logger
}

func newCronLogger(logger *slog.Logger) cronLogger {
	return cronLogger{logger: logger.With("component", "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		metrics.PassesSkipped.Inc()
		l.logger.Warn("Previous pass still running, skipping tick")
		return
	}
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
