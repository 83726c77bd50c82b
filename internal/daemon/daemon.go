// Package daemon runs the background notification loop: it scans the
// queue for due reminders, delivers them through the transport chain,
// and writes the outcome back to the store.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/basket/go-remind/internal/notify"
	"github.com/basket/go-remind/internal/otel"
	"github.com/basket/go-remind/internal/persistence"
	"github.com/basket/go-remind/internal/temporal"
)

// Intervals holds the adaptive scan cadence.
type Intervals struct {
	Normal time.Duration // baseline
	Idle   time.Duration // after a scan with zero due items
	Fast   time.Duration // after a scan with more than FastThreshold items
}

// Config holds the dependencies and tuning for the daemon.
type Config struct {
	Store     *persistence.Store
	Chain     *notify.Chain
	Logger    *slog.Logger
	Metrics   *otel.Metrics
	Intervals Intervals
	// FastThreshold is the due-item count above which the fast interval
	// kicks in. Zero means the default of 5.
	FastThreshold int
	// BatchSize bounds the due items processed per scan. Zero means 16.
	BatchSize int
	// Leeway widens the due cutoff so coalesced timer wakeups still catch
	// items due moments from now.
	Leeway time.Duration
	// DefaultSound names the chime for messages without a sound hint.
	DefaultSound string
}

// Daemon owns the scan loop. All lifecycle operations are idempotent and
// a stopped daemon can be started again with fresh resources.
type Daemon struct {
	store   *persistence.Store
	chain   *notify.Chain
	logger  *slog.Logger
	metrics *otel.Metrics

	fastThreshold int
	batchSize     int
	leeway        time.Duration
	defaultSound  string

	mu        sync.Mutex
	intervals Intervals
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	runID     string
	startedAt time.Time
	lastErr   string
}

func New(cfg Config) *Daemon {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	iv := cfg.Intervals
	if iv.Normal <= 0 {
		iv.Normal = 60 * time.Second
	}
	if iv.Idle <= 0 {
		iv.Idle = 300 * time.Second
	}
	if iv.Fast <= 0 {
		iv.Fast = 30 * time.Second
	}
	threshold := cfg.FastThreshold
	if threshold <= 0 {
		threshold = 5
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}
	leeway := cfg.Leeway
	if leeway < 0 {
		leeway = 10 * time.Second
	}
	return &Daemon{
		store:         cfg.Store,
		chain:         cfg.Chain,
		logger:        logger,
		metrics:       cfg.Metrics,
		intervals:     iv,
		fastThreshold: threshold,
		batchSize:     batch,
		leeway:        leeway,
		defaultSound:  cfg.DefaultSound,
	}
}

// Start launches the scan loop. Starting a running daemon is a no-op.
func (d *Daemon) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.running = true
	d.runID = uuid.NewString()
	d.startedAt = time.Now()
	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Info("daemon started", "run_id", d.runID,
		"interval", d.intervals.Normal, "batch", d.batchSize)
}

// Stop cancels the loop and waits for the in-flight scan to finish its
// batch. Stopping a stopped daemon is a no-op.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	d.cancel = nil
	d.mu.Unlock()
	d.logger.Info("daemon stopped")
}

// Restart is Stop then Start with fresh loop state.
func (d *Daemon) Restart(ctx context.Context) {
	d.Stop()
	d.Start(ctx)
}

// Running reports whether the scan loop is active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// RunID identifies the current start, empty when never started.
func (d *Daemon) RunID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runID
}

// SetIntervals swaps the cadence, applied on the next timer rearm. Used
// by the config reload path.
func (d *Daemon) SetIntervals(iv Intervals) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iv.Normal > 0 {
		d.intervals.Normal = iv.Normal
	}
	if iv.Idle > 0 {
		d.intervals.Idle = iv.Idle
	}
	if iv.Fast > 0 {
		d.intervals.Fast = iv.Fast
	}
}

// nextInterval picks the cadence from the last scan's due count.
func (d *Daemon) nextInterval(due int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case due == 0:
		return d.intervals.Idle
	case due > d.fastThreshold:
		return d.intervals.Fast
	default:
		return d.intervals.Normal
	}
}

// loop scans immediately on start, then rearms a timer with the adaptive
// interval after every scan.
func (d *Daemon) loop(ctx context.Context) {
	defer d.wg.Done()

	due := d.scanOnce(ctx)
	timer := time.NewTimer(d.nextInterval(due))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			due = d.scanOnce(ctx)
			timer.Reset(d.nextInterval(due))
		}
	}
}

// scanOnce processes one batch of due notifications and returns how many
// were due. Individual failures are persisted and logged; they never
// abort the batch.
func (d *Daemon) scanOnce(ctx context.Context) int {
	start := time.Now()
	cutoff := start.Add(d.leeway)

	due, err := d.store.DueNotifications(ctx, cutoff, d.batchSize)
	if err != nil {
		d.setLastErr(fmt.Sprintf("scan: %v", err))
		d.logger.Error("due notification query failed", "error", err)
		return 0
	}

	for _, item := range due {
		d.deliverOne(ctx, item)
	}

	if d.metrics != nil {
		d.metrics.ScanDuration.Record(ctx, time.Since(start).Seconds())
		d.metrics.DueItems.Add(ctx, int64(len(due)))
	}
	if len(due) > 0 {
		d.logger.Debug("scan complete", "due", len(due), "took", time.Since(start))
	}
	return len(due)
}

// deliverOne renders, delivers and persists the outcome for one item.
func (d *Daemon) deliverOne(ctx context.Context, item persistence.DueNotification) {
	msg := d.render(item)

	transport, err := d.chain.Deliver(ctx, msg)
	if err != nil {
		d.setLastErr(err.Error())
		if markErr := d.store.MarkNotificationFailed(ctx, item.ID, err.Error()); markErr != nil {
			d.logger.Error("failed to persist delivery failure",
				"notification_id", item.ID, "error", markErr)
		}
		if d.metrics != nil {
			d.metrics.NotificationsFailed.Add(ctx, 1)
		}
		d.logger.Warn("notification failed", "notification_id", item.ID, "error", err)
		return
	}

	if err := d.store.MarkNotificationSent(ctx, item.ID, time.Now()); err != nil {
		// Delivery happened but the status write failed; the item stays
		// due and will be re-delivered next scan (at-least-once).
		d.setLastErr(fmt.Sprintf("mark sent: %v", err))
		d.logger.Error("failed to persist delivery success",
			"notification_id", item.ID, "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.NotificationsSent.Add(ctx, 1)
		d.metrics.Deliveries.Add(ctx, 1,
			metric.WithAttributes(attribute.String("transport", transport)))
	}
	d.logger.Info("notification delivered",
		"notification_id", item.ID, "transport", transport)
}

// render builds the message from the linked task, falling back to the
// notification's own fields for custom entries.
func (d *Daemon) render(item persistence.DueNotification) notify.Message {
	title := item.Title
	body := item.Body
	if title == "" && item.TaskTitle != "" {
		title = item.TaskTitle
		if body == "" {
			body = item.TaskDescription
		}
	}
	if title == "" {
		title = "Reminder"
	}

	group := item.GroupID
	if group == "" {
		group = "goremind"
	}
	return notify.Message{
		Title:    title,
		Subtitle: "due " + temporal.FormatRelative(item.ScheduledAt, time.Now()),
		Body:     body,
		Sound:    d.defaultSound,
		Group:    group,
	}
}

func (d *Daemon) setLastErr(msg string) {
	d.mu.Lock()
	d.lastErr = msg
	d.mu.Unlock()
}
