package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/store/memory"
)

var errStoreDown = errors.New("store down")

// fakeNetwork serves canned pages keyed by normalized URL.
type fakeNetwork struct {
	mu      sync.Mutex
	calls   int
	pages   map[string]domain.Website
	err     error
	panics  bool
	release chan struct{} // non-nil: block until closed, ignoring ctx
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{pages: make(map[string]domain.Website)}
}

func (n *fakeNetwork) add(w domain.Website) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pages[w.Key()] = w
}

func (n *fakeNetwork) Get(_ context.Context, url string) (*domain.Website, error) {
	n.mu.Lock()
	n.calls++
	page, ok := n.pages[domain.NormalizeURL(url)]
	err, panics, release := n.err, n.panics, n.release
	n.mu.Unlock()

	if panics {
		panic("network exploded")
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	page.URL = url
	page.VisitCount = 1
	return &page, nil
}

func (n *fakeNetwork) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// brokenStore fails or panics on every call.
type brokenStore struct {
	panics bool
}

func (b brokenStore) fail() error {
	if b.panics {
		panic("store exploded")
	}
	return errStoreDown
}

func (b brokenStore) Get(context.Context, string) (*domain.Website, error) { return nil, b.fail() }
func (b brokenStore) Save(context.Context, domain.Website) (domain.Website, error) {
	return domain.Website{}, b.fail()
}
func (b brokenStore) Clear(context.Context) error                  { return b.fail() }
func (b brokenStore) Upsert(context.Context, domain.Website) error { return b.fail() }
func (b brokenStore) Search(context.Context, string, int) ([]domain.Website, error) {
	return nil, b.fail()
}

// fixedCache always answers with the same website, whatever the key.
type fixedCache struct {
	*memory.Cache
	website domain.Website
}

func (c *fixedCache) Get(context.Context, string) (*domain.Website, error) {
	w := c.website
	return &w, nil
}

// gatedCache holds its first Save until gate is closed.
type gatedCache struct {
	*memory.Cache
	gate  chan struct{}
	first atomic.Bool
}

func (c *gatedCache) Save(ctx context.Context, w domain.Website) (domain.Website, error) {
	if c.first.CompareAndSwap(false, true) {
		<-c.gate
	}
	return c.Cache.Save(ctx, w)
}

// flakyHistory fails lookups while failing is set. Writes always go through.
type flakyHistory struct {
	*memory.History
	failing atomic.Bool
}

func (h *flakyHistory) Get(ctx context.Context, url string) (*domain.Website, error) {
	if h.failing.Load() {
		return nil, errStoreDown
	}
	return h.History.Get(ctx, url)
}
