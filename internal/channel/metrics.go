package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MetricsSink receives channel activity events. Counters are used to
// diagnose runaway reload loops; a fake sink makes them testable.
type MetricsSink interface {
	Mount(channel string)
	Reload(channel string)
	Push(channel string)
	Capture(channel string)
	Drop(channel, reason string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Mount(string)        {}
func (NopSink) Reload(string)       {}
func (NopSink) Push(string)         {}
func (NopSink) Capture(string)      {}
func (NopSink) Drop(string, string) {}

// ActivityReporter counts channel events and logs the totals per time
// window, then resets. It is the logging collaborator's view of channel
// health.
type ActivityReporter struct {
	mu       sync.Mutex
	interval time.Duration

	mounts   map[string]int
	reloads  map[string]int
	pushes   map[string]int
	captures map[string]int
	drops    map[string]int
}

// NewActivityReporter creates a reporter that logs every interval.
func NewActivityReporter(interval time.Duration) *ActivityReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ActivityReporter{
		interval: interval,
		mounts:   make(map[string]int),
		reloads:  make(map[string]int),
		pushes:   make(map[string]int),
		captures: make(map[string]int),
		drops:    make(map[string]int),
	}
}

func (r *ActivityReporter) Mount(ch string)   { r.bump(r.mounts, ch) }
func (r *ActivityReporter) Reload(ch string)  { r.bump(r.reloads, ch) }
func (r *ActivityReporter) Push(ch string)    { r.bump(r.pushes, ch) }
func (r *ActivityReporter) Capture(ch string) { r.bump(r.captures, ch) }

func (r *ActivityReporter) Drop(ch, reason string) {
	r.bump(r.drops, ch+"/"+reason)
}

func (r *ActivityReporter) bump(m map[string]int, key string) {
	r.mu.Lock()
	m[key]++
	r.mu.Unlock()
}

// Start begins the reporting loop in a goroutine.
func (r *ActivityReporter) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *ActivityReporter) run(ctx context.Context) {
	slog.Info("channel activity reporter started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("channel activity reporter stopped")
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// report logs and resets the current window.
func (r *ActivityReporter) report() {
	r.mu.Lock()
	mounts, reloads, pushes, captures, drops := r.mounts, r.reloads, r.pushes, r.captures, r.drops
	r.mounts = make(map[string]int)
	r.reloads = make(map[string]int)
	r.pushes = make(map[string]int)
	r.captures = make(map[string]int)
	r.drops = make(map[string]int)
	r.mu.Unlock()

	if len(mounts) == 0 && len(reloads) == 0 && len(pushes) == 0 && len(captures) == 0 && len(drops) == 0 {
		return
	}

	slog.Info("channel activity",
		"window", r.interval,
		"mounts", total(mounts),
		"reloads", total(reloads),
		"pushes", total(pushes),
		"captures", total(captures),
		"drops", drops,
	)
}

func total(m map[string]int) int {
	sum := 0
	for _, v := range m {
		sum += v
	}
	return sum
}

// Snapshot returns current window counters. Used by tests and the ready
// endpoint.
func (r *ActivityReporter) Snapshot() (mounts, reloads, captures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return total(r.mounts), total(r.reloads), total(r.captures)
}
