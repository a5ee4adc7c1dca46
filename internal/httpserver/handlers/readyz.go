package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

type componentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz runs every configured check concurrently. Any failure answers 503
// so the instance is taken out of rotation; the resolver itself keeps
// degrading to misses.
func Readyz(d deps.Deps) http.HandlerFunc {
	timeout := d.CheckTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	names := make([]string, 0, len(d.Checks))
	for name := range d.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu         sync.Mutex
			wg         sync.WaitGroup
			components = make(map[string]componentStatus, len(names))
		)
		for _, name := range names {
			wg.Add(1)
			go func(name string, check deps.Check) {
				defer wg.Done()
				status := componentStatus{OK: true}
				if err := check(ctx); err != nil {
					status = componentStatus{OK: false, Error: err.Error()}
					d.Logger.Warn("readiness check failed",
						logger.String("component", name),
						logger.Error(err))
				}
				mu.Lock()
				components[name] = status
				mu.Unlock()
			}(name, d.Checks[name])
		}
		wg.Wait()

		ready := true
		for _, c := range components {
			ready = ready && c.OK
		}

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, readyzResponse{Ready: ready, Components: components})
	}
}
