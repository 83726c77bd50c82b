package daemon

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/basket/go-remind/internal/notify"
	"github.com/basket/go-remind/internal/persistence"
)

// Health is a read-only snapshot of the reminder subsystem. Queue counts
// come from persisted rows, so they survive daemon restarts.
type Health struct {
	Running       bool
	PID           int
	RunID         string
	Uptime        time.Duration
	BestTransport string
	Pending       int
	Sent24h       int
	Failed24h     int
	LastError     string
	MemoryBytes   uint64
}

// Health reports the in-process daemon state plus persisted queue counts.
func (d *Daemon) Health(ctx context.Context) (Health, error) {
	hc, err := d.store.QueueHealth(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("queue health: %w", err)
	}

	d.mu.Lock()
	h := Health{
		Running:   d.running,
		RunID:     d.runID,
		LastError: d.lastErr,
	}
	if d.running {
		h.Uptime = time.Since(d.startedAt)
	}
	d.mu.Unlock()

	h.Pending = hc.Pending
	h.Sent24h = hc.Sent24h
	h.Failed24h = hc.Failed24h
	if h.LastError == "" {
		h.LastError = hc.LastError
	}
	h.BestTransport = d.chain.Best()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.MemoryBytes = ms.Sys
	return h, nil
}

// Inspect builds a health snapshot from outside the daemon process: the
// pid file supplies liveness, the store supplies the counters.
func Inspect(ctx context.Context, store *persistence.Store, chain *notify.Chain, pidPath string) (Health, error) {
	hc, err := store.QueueHealth(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("queue health: %w", err)
	}

	h := Health{
		Pending:       hc.Pending,
		Sent24h:       hc.Sent24h,
		Failed24h:     hc.Failed24h,
		LastError:     hc.LastError,
		BestTransport: chain.Best(),
	}
	if pid, startedAt, err := readPIDFile(pidPath); err == nil && processAlive(pid) {
		h.Running = true
		h.PID = pid
		h.Uptime = time.Since(startedAt)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.MemoryBytes = ms.Sys
	return h, nil
}
