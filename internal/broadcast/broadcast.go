// Package broadcast fans accuracy results out to subscribed UI streams.
package broadcast

import (
	"sync"
	"time"
)

// ResultMessage is the outward snapshot of one completed comparison. The
// diff image travels as a PNG data URL.
type ResultMessage struct {
	ScenarioID string    `json:"scenarioId"`
	Accuracy   float64   `json:"accuracy"`
	DiffImage  string    `json:"diffImage,omitempty"`
	ComputedAt time.Time `json:"computedAt"`
}

// Broadcaster delivers result snapshots to all subscribers. Sends are
// non-blocking: a subscriber that cannot keep up misses updates rather
// than stalling the pipeline.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[chan ResultMessage]bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan ResultMessage]bool)}
}

// Subscribe registers a new subscriber channel.
func (b *Broadcaster) Subscribe() chan ResultMessage {
	ch := make(chan ResultMessage, 16)
	b.mu.Lock()
	b.clients[ch] = true
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broadcaster) Unsubscribe(ch chan ResultMessage) {
	b.mu.Lock()
	if b.clients[ch] {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends a snapshot to every subscriber.
func (b *Broadcaster) Publish(msg ResultMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
			// skip subscribers with full channels
		}
	}
}
