package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"herald/internal/config"
	"herald/internal/metrics"
	"herald/internal/storage"
	"herald/internal/types"
	"herald/internal/utils/hash"
)

type Route struct {
	Config config.SourceConfig
	Source types.Source
}

// PassReport summarizes one sweep over all routes.
type PassReport struct {
	ID        string        `json:"id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Sources   int           `json:"sources"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	NewItems  int           `json:"new_items"`
	Requests  int           `json:"requests"`
	SendFails int           `json:"send_failures"`
	Committed bool          `json:"committed"`
	Cancelled bool          `json:"cancelled"`
	CommitErr error         `json:"-"`
}

type PipelineConfig struct {
	Store      storage.Store
	Dispatcher types.Dispatcher
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline runs passes: every route is fetched, compared against the ledger
// and dispatched strictly one after another, then the working ledger is
// committed once. Only the last committed ledger is kept between passes.
type Pipeline struct {
	routes     []Route
	store      storage.Store
	dispatcher types.Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	running bool
	ledger  storage.Ledger
	last    *PassReport
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{
		routes:     make([]Route, 0),
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

func (p *Pipeline) AddRoute(route Route) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, route)
	return p
}

func (p *Pipeline) Routes() []Route {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Route, len(p.routes))
	copy(out, p.routes)
	return out
}

// Initialize loads the ledger. A missing or unreadable ledger starts empty.
func (p *Pipeline) Initialize(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("pipeline: store is required")
	}
	if p.dispatcher == nil {
		return fmt.Errorf("pipeline: dispatcher is required")
	}

	ledger := storage.Load(ctx, p.store, p.logger)

	p.mu.Lock()
	p.ledger = ledger
	p.mu.Unlock()

	metrics.LedgerSources.Set(float64(len(ledger)))
	p.logger.Info("Pipeline initialized", "routes", len(p.routes), "ledger_sources", len(ledger))
	return nil
}

func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Ledger returns a copy of the last committed ledger.
func (p *Pipeline) Ledger() storage.Ledger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.Clone()
}

func (p *Pipeline) LastReport() (PassReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return PassReport{}, false
	}
	return *p.last, true
}

// Run executes one pass. It returns types.ErrPassInProgress when another
// pass has not finished yet. Source failures never fail the pass; only
// cancellation and a failed commit are returned as errors.
func (p *Pipeline) Run(ctx context.Context) (PassReport, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return PassReport{}, types.ErrPassInProgress
	}
	p.running = true
	loaded := p.ledger != nil
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if !loaded {
		if err := p.Initialize(ctx); err != nil {
			return PassReport{}, err
		}
	}

	routes := p.Routes()
	report := PassReport{
		ID:      uuid.NewString(),
		Started: p.now(),
		Sources: len(routes),
	}
	logger := p.logger.With("pass_id", report.ID)
	logger.Info("Processing sources", "count", len(routes), "at", report.Started.UTC().Format(time.RFC1123))

	working := p.Ledger()

	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			return p.finishCancelled(logger, report, err)
		}

		err := p.processRoute(ctx, logger, route, working, &report)
		if err != nil && ctx.Err() != nil {
			// Interrupted by shutdown, not a source failure.
			return p.finishCancelled(logger, report, ctx.Err())
		}

		switch {
		case err == nil:
		case errors.Is(err, types.ErrCredentialMissing):
			report.Skipped++
			metrics.SourcesSkipped.WithLabelValues("credential_missing").Inc()
			logger.Warn("Timeline credential not configured, skipping source", "source", route.Config.Name())
		default:
			report.Failed++
			stage := types.StageFetch
			var se *types.SourceError
			if errors.As(err, &se) {
				stage = se.Stage
			}
			metrics.SourceErrors.WithLabelValues(string(stage)).Inc()
			logger.Error("Source failed, ledger entry unchanged", "source", route.Config.Name(), "stage", stage, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return p.finishCancelled(logger, report, err)
	}

	if err := p.store.Commit(ctx, working); err != nil {
		report.CommitErr = err
		report.Duration = time.Since(report.Started)
		metrics.PassesTotal.WithLabelValues("commit_failed").Inc()
		logger.Error("Failed to commit ledger, pass progress lost", "error", err)
		p.setLast(report)
		return report, fmt.Errorf("ledger commit failed: %w", err)
	}

	report.Committed = true
	report.Duration = time.Since(report.Started)

	p.mu.Lock()
	p.ledger = working
	p.mu.Unlock()

	metrics.PassesTotal.WithLabelValues("committed").Inc()
	metrics.PassDuration.Observe(report.Duration.Seconds())
	metrics.LedgerSources.Set(float64(len(working)))

	logger.Info("Pass complete",
		"sources", report.Sources,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"new_items", report.NewItems,
		"requests", report.Requests,
		"duration", report.Duration,
	)
	p.setLast(report)
	return report, nil
}

func (p *Pipeline) finishCancelled(logger *slog.Logger, report PassReport, err error) (PassReport, error) {
	report.Cancelled = true
	report.Duration = time.Since(report.Started)
	metrics.PassesTotal.WithLabelValues("cancelled").Inc()
	logger.Warn("Pass cancelled, ledger not committed", "error", err)
	p.setLast(report)
	return report, err
}

func (p *Pipeline) setLast(report PassReport) {
	p.mu.Lock()
	p.last = &report
	p.mu.Unlock()
}

// processRoute fetches one source, replaces its entry in working and
// dispatches the new items. A fetch or detection failure leaves working
// untouched.
func (p *Pipeline) processRoute(ctx context.Context, logger *slog.Logger, route Route, working storage.Ledger, report *PassReport) (err error) {
	name := route.Config.Name()

	defer func() {
		if r := recover(); r != nil {
			err = types.NewSourceError(name, types.StageDetect, fmt.Errorf("panic: %v", r))
		}
	}()

	logger.Debug("Fetching source", "source", name, "variant", route.Source.Variant())

	items, err := route.Source.Fetch(ctx, route.Config)
	if err != nil {
		if errors.Is(err, types.ErrCredentialMissing) || types.IsSourceError(err) {
			return err
		}
		return types.NewSourceError(name, types.StageFetch, err)
	}

	var screen types.Screener
	if s, ok := route.Source.(types.Screener); ok {
		screen = s
	}

	identity := hash.Identity(route.Config.URL)
	detection := Detect(items, working.EntryFor(identity), route.Source.Identify, screen, p.now())
	working[identity] = detection.Entry

	variant := string(route.Source.Variant())
	metrics.ItemsDetected.WithLabelValues(variant, "new").Add(float64(len(detection.New)))
	metrics.ItemsDetected.WithLabelValues(variant, "seen").Add(float64(detection.Seen))
	metrics.ItemsDetected.WithLabelValues(variant, "screened").Add(float64(detection.Screened))
	metrics.ItemsDetected.WithLabelValues(variant, "tokenless").Add(float64(detection.Tokenless))

	if detection.Tokenless > 0 {
		logger.Debug("Items without a dedup token ignored", "source", name, "count", detection.Tokenless)
	}

	logger.Info(fmt.Sprintf("%s - Found %d new of %d total", name, len(detection.New), detection.Total), "source", name)
	report.NewItems += len(detection.New)

	if len(detection.New) == 0 {
		return nil
	}

	result := p.dispatcher.Dispatch(ctx, route.Source.Variant(), detection.New, route.Config)
	report.Requests += result.Requests
	report.SendFails += result.Failed
	return nil
}
