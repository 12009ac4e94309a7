package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/config"
	"herald/internal/metrics"
	"herald/internal/storage"
	"herald/internal/storage/file"
	"herald/internal/types"
	"herald/internal/utils/hash"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	variant types.Variant
	fetch   func(ctx context.Context, cfg config.SourceConfig) ([]*types.Item, error)
	calls   int
}

func (s *fakeSource) Variant() types.Variant {
	if s.variant == "" {
		return types.VariantFeed
	}
	return s.variant
}

func (s *fakeSource) Fetch(ctx context.Context, cfg config.SourceConfig) ([]*types.Item, error) {
	s.calls++
	return s.fetch(ctx, cfg)
}

func (s *fakeSource) Identify(item *types.Item) string {
	return item.Link
}

func returning(links ...string) *fakeSource {
	return &fakeSource{fetch: func(context.Context, config.SourceConfig) ([]*types.Item, error) {
		return linkItems(links...), nil
	}}
}

func failing(err error) *fakeSource {
	return &fakeSource{fetch: func(context.Context, config.SourceConfig) ([]*types.Item, error) {
		return nil, err
	}}
}

type dispatchCall struct {
	source string
	links  []string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, variant types.Variant, items []*types.Item, cfg config.SourceConfig) types.DispatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{source: cfg.URL, links: links(items)})
	return types.DispatchResult{Requests: len(cfg.Webhooks)}
}

func (d *recordingDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

type failingCommitStore struct {
	storage.Store
}

func (s failingCommitStore) Commit(context.Context, storage.Ledger) error {
	return errors.New("disk full")
}

func sourceConfig(url string) config.SourceConfig {
	return config.SourceConfig{
		URL:      url,
		Username: "tester",
		Webhooks: []string{"https://discord.test/api/webhooks/1/a", "https://discord.test/api/webhooks/1/b"},
	}
}

func newFileStore(t *testing.T) *file.FileStorage {
	t.Helper()
	store, err := file.New(filepath.Join(t.TempDir(), "hashes.json"))
	require.NoError(t, err)
	return store
}

func newTestPipeline(store storage.Store, dispatcher types.Dispatcher) *Pipeline {
	return NewPipeline(PipelineConfig{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     discardLogger(),
		Now:        func() time.Time { return detectNow },
	})
}

func seedLedger(t *testing.T, store storage.Store, url string, tokens ...string) {
	t.Helper()
	ledger := storage.NewLedger()
	ledger[hash.Identity(url)] = entryOf(tokens...)
	require.NoError(t, store.Commit(context.Background(), ledger))
}

func TestPassEmptyLedgerAllNew(t *testing.T) {
	store := newFileStore(t)
	dispatcher := &recordingDispatcher{}
	cfg := sourceConfig("https://example.com/a.xml")

	p := newTestPipeline(store, dispatcher)
	p.AddRoute(Route{Config: cfg, Source: returning("x", "y", "z")})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Committed)
	assert.Equal(t, 3, report.NewItems)
	assert.Equal(t, 2, report.Requests)
	require.Len(t, dispatcher.Calls(), 1)
	assert.Equal(t, []string{"x", "y", "z"}, dispatcher.Calls()[0].links)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hashes(entryOf("x", "y", "z")), hashes(persisted[hash.Identity(cfg.URL)]))
}

func TestPassOnlyUnseenDispatched(t *testing.T) {
	store := newFileStore(t)
	cfg := sourceConfig("https://example.com/a.xml")
	seedLedger(t, store, cfg.URL, "x", "y")

	dispatcher := &recordingDispatcher{}
	p := newTestPipeline(store, dispatcher)
	p.AddRoute(Route{Config: cfg, Source: returning("x", "y", "z")})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.NewItems)
	require.Len(t, dispatcher.Calls(), 1)
	assert.Equal(t, []string{"z"}, dispatcher.Calls()[0].links)
}

func TestPassFailedSourceIsolated(t *testing.T) {
	store := newFileStore(t)
	first := sourceConfig("https://example.com/1.xml")
	second := sourceConfig("https://example.com/2.xml")
	third := sourceConfig("https://example.com/3.xml")
	seedLedger(t, store, second.URL, "kept")

	before := testutil.ToFloat64(metrics.SourceErrors.WithLabelValues(string(types.StageFetch)))

	dispatcher := &recordingDispatcher{}
	p := newTestPipeline(store, dispatcher)
	p.AddRoute(Route{Config: first, Source: returning("a")})
	p.AddRoute(Route{Config: second, Source: failing(errors.New("connection reset"))})
	p.AddRoute(Route{Config: third, Source: returning("c")})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Committed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SourceErrors.WithLabelValues(string(types.StageFetch)))-before)

	calls := dispatcher.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, first.URL, calls[0].source)
	assert.Equal(t, third.URL, calls[1].source)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hashes(entryOf("a")), hashes(persisted[hash.Identity(first.URL)]))
	assert.Equal(t, hashes(entryOf("kept")), hashes(persisted[hash.Identity(second.URL)]))
	assert.Equal(t, hashes(entryOf("c")), hashes(persisted[hash.Identity(third.URL)]))
}

func TestPassSkipsSourceWithoutCredential(t *testing.T) {
	store := newFileStore(t)
	timeline := sourceConfig("https://twitter.com/someone")
	feed := sourceConfig("https://example.com/feed.xml")

	before := testutil.ToFloat64(metrics.SourcesSkipped.WithLabelValues("credential_missing"))

	dispatcher := &recordingDispatcher{}
	p := newTestPipeline(store, dispatcher)
	p.AddRoute(Route{Config: timeline, Source: &fakeSource{
		variant: types.VariantTimeline,
		fetch: func(context.Context, config.SourceConfig) ([]*types.Item, error) {
			return nil, types.ErrCredentialMissing
		},
	}})
	p.AddRoute(Route{Config: feed, Source: returning("f")})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SourcesSkipped.WithLabelValues("credential_missing"))-before)
	require.Len(t, dispatcher.Calls(), 1)
	assert.Equal(t, feed.URL, dispatcher.Calls()[0].source)

	_, tracked := p.Ledger()[hash.Identity(timeline.URL)]
	assert.False(t, tracked)
}

func TestPassRepeatedFetchIsQuiet(t *testing.T) {
	store := newFileStore(t)
	dispatcher := &recordingDispatcher{}

	p := newTestPipeline(store, dispatcher)
	p.AddRoute(Route{Config: sourceConfig("https://example.com/a.xml"), Source: returning("x", "y")})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.NewItems)
	assert.Len(t, dispatcher.Calls(), 1)
}

func TestPassResumesFromPersistedLedger(t *testing.T) {
	store := newFileStore(t)
	cfg := sourceConfig("https://example.com/a.xml")

	first := newTestPipeline(store, &recordingDispatcher{})
	first.AddRoute(Route{Config: cfg, Source: returning("x")})
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	reopened, err := file.New(store.Path())
	require.NoError(t, err)
	dispatcher := &recordingDispatcher{}
	second := newTestPipeline(reopened, dispatcher)
	second.AddRoute(Route{Config: cfg, Source: returning("x", "y")})

	_, err = second.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, dispatcher.Calls(), 1)
	assert.Equal(t, []string{"y"}, dispatcher.Calls()[0].links)
}

func TestPassCommitFailureKeepsPreviousLedger(t *testing.T) {
	base := newFileStore(t)
	cfg := sourceConfig("https://example.com/a.xml")
	seedLedger(t, base, cfg.URL, "x")

	dispatcher := &recordingDispatcher{}
	p := newTestPipeline(failingCommitStore{Store: base}, dispatcher)
	p.AddRoute(Route{Config: cfg, Source: returning("x", "y")})

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.False(t, report.Committed)
	assert.Error(t, report.CommitErr)

	// Dispatch already happened; the persisted and in-memory ledgers are untouched.
	require.Len(t, dispatcher.Calls(), 1)
	assert.Equal(t, hashes(entryOf("x")), hashes(p.Ledger()[hash.Identity(cfg.URL)]))

	persisted, err := base.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hashes(entryOf("x")), hashes(persisted[hash.Identity(cfg.URL)]))
}

func TestPassCancelledDoesNotCommit(t *testing.T) {
	store := newFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	first := sourceConfig("https://example.com/1.xml")
	second := sourceConfig("https://example.com/2.xml")
	secondSource := returning("b")

	p := newTestPipeline(store, &recordingDispatcher{})
	p.AddRoute(Route{Config: first, Source: &fakeSource{fetch: func(context.Context, config.SourceConfig) ([]*types.Item, error) {
		cancel()
		return linkItems("a"), nil
	}}})
	p.AddRoute(Route{Config: second, Source: secondSource})

	report, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Cancelled)
	assert.False(t, report.Committed)
	assert.Equal(t, 0, secondSource.calls)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestPassRecoversPanickingSource(t *testing.T) {
	store := newFileStore(t)
	dispatcher := &recordingDispatcher{}

	p := newTestPipeline(store, dispatcher)
	p.AddRoute(Route{Config: sourceConfig("https://example.com/bad.xml"), Source: &fakeSource{
		fetch: func(context.Context, config.SourceConfig) ([]*types.Item, error) {
			panic("malformed entry")
		},
	}})
	p.AddRoute(Route{Config: sourceConfig("https://example.com/good.xml"), Source: returning("g")})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Len(t, dispatcher.Calls(), 1)
}

func TestPassRejectsOverlap(t *testing.T) {
	store := newFileStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})

	p := newTestPipeline(store, &recordingDispatcher{})
	p.AddRoute(Route{Config: sourceConfig("https://example.com/slow.xml"), Source: &fakeSource{
		fetch: func(context.Context, config.SourceConfig) ([]*types.Item, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}})

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()

	<-entered
	assert.True(t, p.IsRunning())
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrPassInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, p.IsRunning())
}

func TestPassRequiresStoreAndDispatcher(t *testing.T) {
	p := NewPipeline(PipelineConfig{Logger: discardLogger()})
	_, err := p.Run(context.Background())
	assert.Error(t, err)
}

func TestPassLastReport(t *testing.T) {
	p := newTestPipeline(newFileStore(t), &recordingDispatcher{})
	p.AddRoute(Route{Config: sourceConfig("https://example.com/a.xml"), Source: returning("a")})

	_, ok := p.LastReport()
	assert.False(t, ok)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	last, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.ID, last.ID)
	assert.NotEmpty(t, last.ID)
}

func TestPassCancelledDuringFetchIsNotASourceFailure(t *testing.T) {
	store := newFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	before := testutil.ToFloat64(metrics.SourceErrors.WithLabelValues(string(types.StageFetch)))

	p := newTestPipeline(store, &recordingDispatcher{})
	p.AddRoute(Route{Config: sourceConfig("https://example.com/slow.xml"), Source: &fakeSource{
		fetch: func(ctx context.Context, cfg config.SourceConfig) ([]*types.Item, error) {
			cancel()
			return nil, ctx.Err()
		},
	}})

	report, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SourceErrors.WithLabelValues(string(types.StageFetch)))-before)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestPassReportsSeenSeparatelyFromScreened(t *testing.T) {
	store := newFileStore(t)
	cfg := sourceConfig("https://example.com/a.xml")
	seedLedger(t, store, cfg.URL, "x")

	seen := metrics.ItemsDetected.WithLabelValues(string(types.VariantFeed), "seen")
	tokenless := metrics.ItemsDetected.WithLabelValues(string(types.VariantFeed), "tokenless")
	seenBefore, tokenlessBefore := testutil.ToFloat64(seen), testutil.ToFloat64(tokenless)

	p := newTestPipeline(store, &recordingDispatcher{})
	p.AddRoute(Route{Config: cfg, Source: &fakeSource{fetch: func(context.Context, config.SourceConfig) ([]*types.Item, error) {
		return []*types.Item{{Link: "x"}, {Link: "y"}, {Link: ""}}, nil
	}}})

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(seen)-seenBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(tokenless)-tokenlessBefore)
}
