package channel

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelclass/render-judge/internal/levels"
	"github.com/pixelclass/render-judge/internal/pixel"
	"github.com/pixelclass/render-judge/internal/wire"
)

// Common errors
var (
	ErrChannelClosed = errors.New("channel is closed")
)

// Conn is the transport side of a rendering context connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// CaptureMeta describes where a capture came from.
type CaptureMeta struct {
	ScenarioID string
	Channel    string
	Instance   string
	ReceivedAt time.Time
}

// CaptureFunc receives decoded pixel buffers from the channel's context.
type CaptureFunc func(*pixel.Buffer, CaptureMeta)

// Channel owns one isolated rendering context instance for one named
// purpose ("solution" or "drawing") bound to one scenario. Pushes go in,
// captures come out. The context may (re)start at any time; code pushed
// before the mount acknowledgement is buffered and replayed on the most
// recent mount, so no code update is silently dropped.
type Channel struct {
	mu sync.Mutex

	name     string
	scenario levels.Scenario
	instance string

	conn    Conn
	mounted bool
	closed  bool

	// Latest built push. Retained after delivery and replayed on every
	// mount acknowledgement: the context may restart at any time, and a
	// fresh instance holds no code until it is resent. Intermediate
	// bundles are superseded, only the most recent one is kept.
	current *wire.Push

	onCapture CaptureFunc
	metrics   MetricsSink
}

// Open creates a channel for one scenario and purpose. The initial code
// bundle is buffered until a rendering context attaches and mounts.
func Open(name string, scenario levels.Scenario, initialCode levels.CodeBundle, events []string, metrics MetricsSink) *Channel {
	if metrics == nil {
		metrics = NopSink{}
	}

	c := &Channel{
		name:     name,
		scenario: scenario,
		instance: uuid.New().String()[:12],
		metrics:  metrics,
	}
	c.current = c.buildPush(initialCode, "", events)

	slog.Debug("render channel opened",
		"channel", name,
		"scenario", scenario.ID,
		"instance", c.instance,
	)

	return c
}

// Name returns the channel's purpose name.
func (c *Channel) Name() string { return c.name }

// Scenario returns the bound scenario.
func (c *Channel) Scenario() levels.Scenario { return c.scenario }

// Instance returns the channel instance token. A reopened channel gets a
// fresh token, which is how stale work is told apart from current work.
func (c *Channel) Instance() string { return c.instance }

// OnCapture registers the capture callback. Must be set before a context
// attaches.
func (c *Channel) OnCapture(fn CaptureFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCapture = fn
}

// Attach binds a rendering context connection to this channel. Any earlier
// connection is discarded; the new context must send its own mount
// acknowledgement before buffered code is replayed.
func (c *Channel) Attach(conn Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mounted = false

	slog.Debug("rendering context attached", "channel", c.name, "scenario", c.scenario.ID)
	return nil
}

// Detach clears the connection, e.g. after a websocket disconnect. The
// channel stays open and waits for the context to reconnect and mount.
func (c *Channel) Detach(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
		c.mounted = false
	}
}

// Push sends a code bundle to the rendering context, preceded by an explicit
// reload signal so the context can tell "new code, same instance" apart from
// "instance needs to restart". Until mount is acknowledged the push is only
// recorded; the latest recorded push is delivered on each mount event.
func (c *Channel) Push(code levels.CodeBundle, extraScript string, events []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	msg := c.buildPush(code, extraScript, events)
	c.current = msg

	if c.conn == nil || !c.mounted {
		return nil
	}

	return c.send(msg)
}

// buildPush assembles the wire payload. The scenario script is appended to
// the learner/reference script, then any extra script.
func (c *Channel) buildPush(code levels.CodeBundle, extraScript string, events []string) *wire.Push {
	js := code.JS
	if c.scenario.JS != "" {
		js += "\n" + c.scenario.JS
	}
	if extraScript != "" {
		js += "\n" + extraScript
	}

	return &wire.Push{
		HTML:        code.HTML,
		CSS:         code.CSS,
		JS:          js,
		Events:      events,
		ScenarioID:  c.scenario.ID,
		Name:        c.name,
		Interactive: len(events) > 0,
	}
}

// send writes the reload signal followed by the code payload.
// Callers hold c.mu.
func (c *Channel) send(msg *wire.Push) error {
	if err := c.conn.WriteJSON(wire.NewReload(c.name)); err != nil {
		return err
	}
	c.metrics.Reload(c.name)

	if err := c.conn.WriteJSON(msg); err != nil {
		return err
	}
	c.metrics.Push(c.name)
	return nil
}

// HandleFrame processes one raw frame from the rendering context.
// Malformed frames and stale captures are dropped, never fatal.
func (c *Channel) HandleFrame(data []byte) {
	msg, err := wire.Parse(data)
	if err != nil {
		slog.Debug("unparseable frame from rendering context",
			"channel", c.name, "scenario", c.scenario.ID, "error", err)
		c.metrics.Drop(c.name, "parse")
		return
	}

	switch m := msg.(type) {
	case wire.Mounted:
		c.handleMounted()
	case wire.Capture:
		c.handleCapture(m)
	}
}

// handleMounted marks the context ready and replays the current push. The
// replay happens on every mount, not just the first: a restarted context is
// a blank instance and needs the code again even though nothing changed.
func (c *Channel) handleMounted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.mounted = true
	c.metrics.Mount(c.name)
	slog.Debug("rendering context mounted", "channel", c.name, "scenario", c.scenario.ID)

	if c.current != nil && c.conn != nil {
		if err := c.send(c.current); err != nil {
			slog.Warn("failed to replay push on mount",
				"channel", c.name, "scenario", c.scenario.ID, "error", err)
		}
	}
}

// handleCapture validates, decodes and delivers a capture. A capture is
// only honored when its declared scenario and channel name match this
// handle; anything else is a stale report from a torn-down context.
func (c *Channel) handleCapture(capt wire.Capture) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.Drop(c.name, "closed")
		return
	}
	if capt.ScenarioID != c.scenario.ID || capt.URLName != c.name {
		c.mu.Unlock()
		slog.Debug("stale capture discarded",
			"channel", c.name,
			"scenario", c.scenario.ID,
			"capture_scenario", capt.ScenarioID,
			"capture_channel", capt.URLName,
		)
		c.metrics.Drop(c.name, "stale")
		return
	}
	fn := c.onCapture
	instance := c.instance
	c.mu.Unlock()

	var buf *pixel.Buffer
	var err error
	switch capt.Message {
	case wire.KindPixels:
		buf, err = pixel.DecodeDataURL(capt.DataURL)
	case wire.KindData:
		buf, err = pixel.DecodeRaw(capt.Buffer, capt.Width, capt.Height)
	}
	if err != nil {
		slog.Warn("capture decode failed",
			"channel", c.name, "scenario", c.scenario.ID, "error", err)
		c.metrics.Drop(c.name, "decode")
		return
	}

	if buf.Width != c.scenario.Dimensions.Width || buf.Height != c.scenario.Dimensions.Height {
		slog.Debug("capture size does not match scenario dimensions",
			"channel", c.name,
			"scenario", c.scenario.ID,
			"got_width", buf.Width,
			"got_height", buf.Height,
		)
		c.metrics.Drop(c.name, "size")
		return
	}

	c.metrics.Capture(c.name)

	if fn != nil {
		fn(buf, CaptureMeta{
			ScenarioID: c.scenario.ID,
			Channel:    c.name,
			Instance:   instance,
			ReceivedAt: time.Now(),
		})
	}
}

// Close tears the channel down. Captures arriving afterwards are discarded.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.current = nil

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	slog.Debug("render channel closed",
		"channel", c.name, "scenario", c.scenario.ID, "instance", c.instance)
}
