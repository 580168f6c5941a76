// Package sandbox owns the set of render channels for each scenario: one
// for the reference solution, one for the learner's drawing. It re-creates
// channels when scenario dimensions change and re-pushes code when a bundle
// value changes.
package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pixelclass/render-judge/internal/channel"
	"github.com/pixelclass/render-judge/internal/levels"
	"github.com/pixelclass/render-judge/internal/pixel"
)

// Channel purposes. The names travel on the wire and disambiguate the two
// contexts rendering the same scenario concurrently.
const (
	ChannelSolution = "solution"
	ChannelDrawing  = "drawing"
)

// Common errors
var (
	ErrScenarioUnknown = errors.New("scenario has no open channels")
	ErrChannelUnknown  = errors.New("unknown channel name")
)

// Runtime launches and stops the isolated rendering contexts. The Docker
// manager implements it; tests use a fake. A nil runtime means contexts
// attach on their own (e.g. embedded in the learner's browser).
type Runtime interface {
	Launch(ctx context.Context, scenario levels.Scenario, channelName, instance string) (string, error)
	Stop(ctx context.Context, containerID string) error
}

// CaptureFunc is invoked for every honored capture with the channel it
// arrived on. Latest buffers are available via Buffers.
type CaptureFunc func(scenarioID, channelName string, buf *pixel.Buffer)

type binding struct {
	ch          *channel.Channel
	containerID string
	code        levels.CodeBundle
	latest      *pixel.Buffer
}

type entry struct {
	scenario levels.Scenario
	events   []string
	bindings map[string]*binding
}

// Controller maintains exactly two render channels per scenario and exposes
// the latest pixel buffer per channel. It does not retain capture history.
type Controller struct {
	mu        sync.Mutex
	runtime   Runtime
	metrics   channel.MetricsSink
	onCapture CaptureFunc
	entries   map[string]*entry
}

// NewController creates a controller. runtime may be nil.
func NewController(runtime Runtime, metrics channel.MetricsSink) *Controller {
	return &Controller{
		runtime: runtime,
		metrics: metrics,
		entries: make(map[string]*entry),
	}
}

// OnCapture registers the capture callback shared by all channels.
func (c *Controller) OnCapture(fn CaptureFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCapture = fn
}

// Ensure brings the scenario's channel pair in line with the given code
// bundles. A dimension change tears both channels down and reopens them; a
// code change (by value, not by reference) re-pushes to the affected
// channel only.
func (c *Controller) Ensure(ctx context.Context, scenario levels.Scenario, referenceCode, learnerCode levels.CodeBundle, events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scenario.ID]
	if !ok {
		e = &entry{
			scenario: scenario,
			events:   events,
			bindings: make(map[string]*binding),
		}
		c.entries[scenario.ID] = e
		c.openBinding(ctx, e, ChannelSolution, referenceCode)
		c.openBinding(ctx, e, ChannelDrawing, learnerCode)
		return
	}

	// Dimension or scenario-script changes invalidate the running contexts.
	if e.scenario.Dimensions != scenario.Dimensions || e.scenario.JS != scenario.JS {
		slog.Info("scenario changed, reopening channels",
			"scenario", scenario.ID,
			"width", scenario.Dimensions.Width,
			"height", scenario.Dimensions.Height,
		)
		c.closeBindings(ctx, e)
		e.scenario = scenario
		e.events = events
		c.openBinding(ctx, e, ChannelSolution, referenceCode)
		c.openBinding(ctx, e, ChannelDrawing, learnerCode)
		return
	}

	c.repush(e, ChannelSolution, referenceCode)
	c.repush(e, ChannelDrawing, learnerCode)
}

// openBinding opens a channel and launches its rendering context.
// Callers hold c.mu.
func (c *Controller) openBinding(ctx context.Context, e *entry, name string, code levels.CodeBundle) {
	ch := channel.Open(name, e.scenario, code, e.events, c.metrics)

	b := &binding{ch: ch, code: code}
	e.bindings[name] = b

	scenarioID := e.scenario.ID
	ch.OnCapture(func(buf *pixel.Buffer, meta channel.CaptureMeta) {
		c.recordCapture(scenarioID, meta.Channel, meta.Instance, buf)
	})

	if c.runtime != nil {
		containerID, err := c.runtime.Launch(ctx, e.scenario, name, ch.Instance())
		if err != nil {
			// Not fatal: the scenario just never scores until a context
			// attaches, surfaced as "no data yet".
			slog.Error("failed to launch rendering context",
				"scenario", scenarioID, "channel", name, "error", err)
			return
		}
		b.containerID = containerID
	}
}

// repush sends a bundle when its value differs from the last pushed one.
// Callers hold c.mu.
func (c *Controller) repush(e *entry, name string, code levels.CodeBundle) {
	b, ok := e.bindings[name]
	if !ok {
		return
	}
	if b.code.Equal(code) {
		return
	}
	b.code = code
	b.latest = nil
	if err := b.ch.Push(code, "", e.events); err != nil {
		slog.Warn("failed to push code bundle",
			"scenario", e.scenario.ID, "channel", name, "error", err)
	}
}

// closeBindings tears down a scenario's channels and their contexts.
// Callers hold c.mu.
func (c *Controller) closeBindings(ctx context.Context, e *entry) {
	for name, b := range e.bindings {
		b.ch.Close()
		if c.runtime != nil && b.containerID != "" {
			if err := c.runtime.Stop(ctx, b.containerID); err != nil {
				slog.Warn("failed to stop rendering context",
					"scenario", e.scenario.ID, "channel", name, "error", err)
			}
		}
		delete(e.bindings, name)
	}
}

// recordCapture stores the latest buffer for a binding and forwards it.
// Captures from a superseded channel instance are discarded here as well:
// the instance token must match the current binding.
func (c *Controller) recordCapture(scenarioID, name, instance string, buf *pixel.Buffer) {
	c.mu.Lock()
	e, ok := c.entries[scenarioID]
	if !ok {
		c.mu.Unlock()
		return
	}
	b, ok := e.bindings[name]
	if !ok || b.ch.Instance() != instance {
		c.mu.Unlock()
		slog.Debug("capture from superseded channel instance discarded",
			"scenario", scenarioID, "channel", name)
		return
	}
	b.latest = buf
	fn := c.onCapture
	c.mu.Unlock()

	if fn != nil {
		fn(scenarioID, name, buf)
	}
}

// Attach binds an incoming rendering-context connection to its channel.
func (c *Controller) Attach(scenarioID, name string, conn channel.Conn) (*channel.Channel, error) {
	c.mu.Lock()
	e, ok := c.entries[scenarioID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrScenarioUnknown
	}
	b, ok := e.bindings[name]
	if !ok {
		c.mu.Unlock()
		return nil, ErrChannelUnknown
	}
	ch := b.ch
	c.mu.Unlock()

	if err := ch.Attach(conn); err != nil {
		return nil, err
	}
	return ch, nil
}

// Buffers returns the latest capture per channel for a scenario. Either may
// be nil until the first capture arrives.
func (c *Controller) Buffers(scenarioID string) (reference, learner *pixel.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scenarioID]
	if !ok {
		return nil, nil
	}
	if b, ok := e.bindings[ChannelSolution]; ok {
		reference = b.latest
	}
	if b, ok := e.bindings[ChannelDrawing]; ok {
		learner = b.latest
	}
	return reference, learner
}

// CloseScenario tears down a scenario's channels, e.g. when it is removed
// from its level or the level is reset.
func (c *Controller) CloseScenario(ctx context.Context, scenarioID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scenarioID]
	if !ok {
		return
	}
	c.closeBindings(ctx, e)
	delete(c.entries, scenarioID)
}

// ActiveInstances returns the instance tokens of all live channels. The
// cleanup worker uses this to reap containers belonging to dead instances.
func (c *Controller) ActiveInstances() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]bool)
	for _, e := range c.entries {
		for _, b := range e.bindings {
			out[b.ch.Instance()] = true
		}
	}
	return out
}

// Close tears down all scenarios.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		c.closeBindings(ctx, e)
		delete(c.entries, id)
	}
}
