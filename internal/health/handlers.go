// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-b2b/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness; the API flips it off while draining on shutdown.
func SetReady(v bool) { ready.Store(v) }

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks one dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Database probes a PostgreSQL pool.
func Database(p Pinger) Probe {
	return Probe{Name: "db", Timeout: 500 * time.Millisecond, Check: p.Ping}
}

// Redis probes a Redis client.
func Redis(c redis.UniversalClient) Probe {
	return Probe{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
		return c.Ping(ctx).Err()
	}}
}

// Handler exposes the health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.OK(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every probe concurrently and reports 503 when any fails or the
// process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Probes)+1)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range h.Probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := "ok"
			if err := run(r.Context(), p); err != nil {
				result = err.Error()
			}
			mu.Lock()
			status[p.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	healthy := ready.Load()
	if !healthy {
		status["server"] = "draining"
	}
	for _, v := range status {
		if v != "ok" {
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, common.Envelope{Success: healthy, Data: status})
}

func run(ctx context.Context, p Probe) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}
