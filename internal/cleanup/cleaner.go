package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixelclass/render-judge/internal/runtime"
)

// Runtime is the subset of the renderer runtime the cleaner needs.
type Runtime interface {
	ListManaged(ctx context.Context) ([]runtime.Renderer, error)
	Stop(ctx context.Context, containerID string) error
}

// InstanceSource reports which channel instances are still live. Containers
// for any other instance are orphans left behind by channel reopens or
// engine restarts.
type InstanceSource interface {
	ActiveInstances() map[string]bool
}

// Cleaner periodically removes renderer containers that no live channel
// owns, or that have outlived the maximum renderer age.
type Cleaner struct {
	rt        Runtime
	instances InstanceSource
	interval  time.Duration
	maxAge    time.Duration
}

// NewCleaner creates a cleanup worker.
func NewCleaner(rt Runtime, instances InstanceSource, interval, maxAge time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}

	return &Cleaner{
		rt:        rt,
		instances: instances,
		interval:  interval,
		maxAge:    maxAge,
	}
}

// Start begins the cleanup worker in a goroutine.
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "max_age", c.maxAge)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup finds and removes orphaned renderer containers.
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	renderers, err := c.rt.ListManaged(ctx)
	if err != nil {
		slog.Error("failed to list renderer containers", "error", err)
		return
	}

	active := c.instances.ActiveInstances()
	now := time.Now()

	removed := 0
	for _, r := range renderers {
		orphaned := !active[r.Instance]
		tooOld := !r.StartedAt.IsZero() && now.Sub(r.StartedAt) > c.maxAge
		if !orphaned && !tooOld {
			continue
		}

		slog.Info("removing renderer container",
			"container", shortID(r.ContainerID),
			"scenario", r.ScenarioID,
			"channel", r.Channel,
			"orphaned", orphaned,
			"too_old", tooOld,
		)

		if err := c.rt.Stop(ctx, r.ContainerID); err != nil {
			slog.Error("failed to remove renderer container",
				"error", err, "container", shortID(r.ContainerID))
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("cleanup cycle finished", "removed", removed)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
