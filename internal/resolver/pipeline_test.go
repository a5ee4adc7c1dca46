package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/store/memory"
	"github.com/MrSnakeDoc/sitemeta/internal/supervisor"
)

const exampleURL = "https://example.com"

type harness struct {
	sup      *supervisor.Supervisor
	cache    *memory.Cache
	history  *memory.History
	network  *fakeNetwork
	pipeline *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sup:     supervisor.New(supervisor.Options{IOWorkers: 8, CPUWorkers: 2}, logger.NewNop()),
		cache:   memory.NewCache(),
		history: memory.NewHistory(),
		network: newFakeNetwork(),
	}
	h.pipeline = New(Stores{Cache: h.cache, History: h.history, Network: h.network}, h.sup, Options{}, logger.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.sup.Shutdown(ctx)
	})
	return h
}

func example(title string) domain.Website {
	return domain.Website{URL: exampleURL, Title: title, ThemeColor: domain.NoColor, VisitCount: 1}
}

func TestResolveCacheHit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.cache.Save(ctx, example("Cached"))
	require.NoError(t, err)

	got := h.pipeline.Resolve(ctx, exampleURL, domain.Persisting)
	require.Equal(t, "Cached", got.Title)
	require.Zero(t, h.network.Calls())

	h.sup.Wait()
	require.Zero(t, h.history.Stats().Gets, "a cache hit must not consult the history")
	require.Equal(t, 1, h.history.Stats().Upserts)

	recorded, err := h.history.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.Equal(t, int64(1), recorded.VisitCount)
}

func TestResolveHistoryHitPromotesToCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.history.Upsert(ctx, example("Recorded")))

	got := h.pipeline.Resolve(ctx, exampleURL, domain.Persisting)
	require.Equal(t, "Recorded", got.Title)
	require.Equal(t, int64(1), got.VisitCount)
	require.Zero(t, h.network.Calls())

	h.sup.Wait()
	recorded, err := h.history.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.Equal(t, int64(2), recorded.VisitCount)

	cached, err := h.cache.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, "Recorded", cached.Title)
}

func TestResolveNetworkHitWritesBothTiers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.network.add(example("Live"))

	got := h.pipeline.Resolve(ctx, exampleURL, domain.Persisting)
	require.Equal(t, "Live", got.Title)
	require.Equal(t, 1, h.network.Calls())

	h.sup.Wait()
	cached, err := h.cache.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.NotNil(t, cached)

	recorded, err := h.history.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.NotNil(t, recorded)
	require.Equal(t, int64(1), recorded.VisitCount)
}

func TestResolveConverges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.network.add(example("Live"))

	first := h.pipeline.Resolve(ctx, exampleURL, domain.Persisting)
	h.sup.Wait()
	second := h.pipeline.Resolve(ctx, "HTTPS://Example.com/", domain.Persisting)
	h.sup.Wait()

	require.Equal(t, first.Title, second.Title)
	require.Equal(t, 1, h.network.Calls(), "second resolution must be served from the cache")

	recorded, err := h.history.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.Equal(t, int64(2), recorded.VisitCount)
}

func TestResolveReadOnlyNeverWritesHistory(t *testing.T) {
	tests := []struct {
		name       string
		seed       func(t *testing.T, h *harness)
		wantTitle  string
		wantSaves  int
		wantCached bool
	}{
		{
			name: "cache hit",
			seed: func(t *testing.T, h *harness) {
				_, err := h.cache.Save(context.Background(), example("Cached"))
				require.NoError(t, err)
			},
			wantTitle:  "Cached",
			wantSaves:  1,
			wantCached: true,
		},
		{
			name: "history hit",
			seed: func(t *testing.T, h *harness) {
				require.NoError(t, h.history.Upsert(context.Background(), example("Recorded")))
			},
			wantTitle: "Recorded",
		},
		{
			name:       "network hit",
			seed:       func(t *testing.T, h *harness) { h.network.add(example("Live")) },
			wantTitle:  "Live",
			wantSaves:  1,
			wantCached: true,
		},
		{
			name: "total miss",
			seed: func(*testing.T, *harness) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.seed(t, h)
			upsertsBefore := h.history.Stats().Upserts

			got := h.pipeline.Resolve(context.Background(), exampleURL, domain.ReadOnly)
			h.sup.Wait()

			require.Equal(t, tt.wantTitle, got.Title)
			require.Equal(t, upsertsBefore, h.history.Stats().Upserts)
			require.Equal(t, tt.wantSaves, h.cache.Stats().Saves)

			cached, err := h.cache.Get(context.Background(), exampleURL)
			require.NoError(t, err)
			require.Equal(t, tt.wantCached, cached != nil)
		})
	}
}

func TestResolveFallback(t *testing.T) {
	h := newHarness(t)

	got := h.pipeline.Resolve(context.Background(), "https://nowhere.invalid/page", domain.Persisting)
	h.sup.Wait()

	require.Equal(t, domain.FallbackWebsite("https://nowhere.invalid/page"), got)
	require.True(t, got.IsFallback())
	require.Zero(t, h.cache.Stats().Saves)
	require.Zero(t, h.history.Stats().Upserts)
}

func TestResolveEmptyURL(t *testing.T) {
	h := newHarness(t)

	got := h.pipeline.Resolve(context.Background(), "   ", domain.Persisting)
	require.Equal(t, domain.FallbackWebsite("   "), got)
	require.Zero(t, h.cache.Stats().Gets)
	require.Zero(t, h.history.Stats().Gets)
	require.Zero(t, h.network.Calls())
}

func TestResolveIsTotal(t *testing.T) {
	tests := []struct {
		name    string
		stores  func(n *fakeNetwork) Stores
		network func(n *fakeNetwork)
	}{
		{
			name: "every tier errors",
			stores: func(n *fakeNetwork) Stores {
				return Stores{Cache: brokenStore{}, History: brokenStore{}, Network: n}
			},
			network: func(n *fakeNetwork) { n.err = errStoreDown },
		},
		{
			name: "every tier panics",
			stores: func(n *fakeNetwork) Stores {
				return Stores{Cache: brokenStore{panics: true}, History: brokenStore{panics: true}, Network: n}
			},
			network: func(n *fakeNetwork) { n.panics = true },
		},
		{
			name: "network hangs",
			stores: func(n *fakeNetwork) Stores {
				return Stores{Cache: memory.NewCache(), History: memory.NewHistory(), Network: n}
			},
			network: func(n *fakeNetwork) { n.release = make(chan struct{}) },
		},
		{
			name: "no stores configured",
			stores: func(*fakeNetwork) Stores {
				return Stores{}
			},
			network: func(*fakeNetwork) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := supervisor.New(supervisor.Options{}, logger.NewNop())
			n := newFakeNetwork()
			n.add(example("Live"))
			tt.network(n)
			if n.release != nil {
				t.Cleanup(func() { close(n.release) })
			}

			p := New(tt.stores(n), sup, Options{NetworkTimeout: 50 * time.Millisecond}, logger.NewNop())

			start := time.Now()
			var got domain.Website
			require.NotPanics(t, func() {
				got = p.Resolve(context.Background(), exampleURL, domain.Persisting)
			})
			require.Less(t, time.Since(start), 2*time.Second)
			require.Equal(t, domain.FallbackWebsite(exampleURL), got)

			sup.Wait()
		})
	}
}

func TestResolveSkipsMismatchedValues(t *testing.T) {
	sup := supervisor.New(supervisor.Options{}, logger.NewNop())
	history := memory.NewHistory()
	require.NoError(t, history.Upsert(context.Background(), example("Recorded")))

	cache := &fixedCache{Cache: memory.NewCache(), website: domain.Website{URL: "https://other.example", Title: "Wrong"}}
	p := New(Stores{Cache: cache, History: history}, sup, Options{}, logger.NewNop())

	got := p.Resolve(context.Background(), exampleURL, domain.ReadOnly)
	require.Equal(t, "Recorded", got.Title)
	sup.Wait()
}

func TestResolveClampsVisitCount(t *testing.T) {
	sup := supervisor.New(supervisor.Options{}, logger.NewNop())
	stale := example("Cached")
	stale.VisitCount = 0
	cache := &fixedCache{Cache: memory.NewCache(), website: stale}
	p := New(Stores{Cache: cache}, sup, Options{}, logger.NewNop())

	got := p.Resolve(context.Background(), exampleURL, domain.ReadOnly)
	require.Equal(t, int64(1), got.VisitCount)
	sup.Wait()
}

func TestWriteBacksOutliveCaller(t *testing.T) {
	h := newHarness(t)
	h.network.add(example("Live"))

	ctx, cancel := context.WithCancel(context.Background())
	h.pipeline.Resolve(ctx, exampleURL, domain.Persisting)
	cancel()
	h.sup.Wait()

	recorded, err := h.history.Get(context.Background(), exampleURL)
	require.NoError(t, err)
	require.NotNil(t, recorded)
}

func TestWriteBacksKeepPerKeyOrder(t *testing.T) {
	sup := supervisor.New(supervisor.Options{}, logger.NewNop())
	cache := &gatedCache{Cache: memory.NewCache(), gate: make(chan struct{})}
	history := &flakyHistory{History: memory.NewHistory()}
	network := newFakeNetwork()
	ctx := context.Background()

	require.NoError(t, history.Upsert(ctx, example("Stale")))
	network.add(example("Fresh"))

	p := New(Stores{Cache: cache, History: history, Network: network}, sup, Options{}, logger.NewNop())

	// The history hit enqueues an upsert then a cache save that blocks.
	first := p.Resolve(ctx, exampleURL, domain.Persisting)
	require.Equal(t, "Stale", first.Title)

	// The cache is still empty and the history is down, so the network
	// answers and its writes queue behind the blocked save.
	history.failing.Store(true)
	second := p.Resolve(ctx, exampleURL, domain.Persisting)
	require.Equal(t, "Fresh", second.Title)

	close(cache.gate)
	sup.Wait()

	cached, err := cache.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, "Fresh", cached.Title, "the older write must not win")

	history.failing.Store(false)
	recorded, err := history.Get(ctx, exampleURL)
	require.NoError(t, err)
	require.Equal(t, "Fresh", recorded.Title)
	require.Equal(t, int64(3), recorded.VisitCount)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.history.Upsert(ctx, domain.Website{URL: "https://go.dev", Title: "The Go Programming Language"}))
	require.NoError(t, h.history.Upsert(ctx, domain.Website{URL: "https://example.com", Title: "Example"}))

	got := h.pipeline.Search(ctx, "go", 0)
	require.Len(t, got, 1)
	require.Equal(t, "https://go.dev", got[0].URL)

	require.Empty(t, h.pipeline.Search(ctx, "nothing matches", 5))
}

func TestSearchDegradesToEmpty(t *testing.T) {
	sup := supervisor.New(supervisor.Options{}, logger.NewNop())
	p := New(Stores{History: brokenStore{panics: true}}, sup, Options{}, logger.NewNop())

	got := p.Search(context.Background(), "go", 500)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestClearCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.cache.Save(ctx, example("Cached"))
	require.NoError(t, err)

	require.NoError(t, h.pipeline.ClearCache(ctx))
	require.Zero(t, h.cache.Count())

	p := New(Stores{Cache: brokenStore{}}, h.sup, Options{}, logger.NewNop())
	require.ErrorIs(t, p.ClearCache(ctx), errStoreDown)
}
