// Package progress tracks which scenarios of a level have produced a
// reference capture. A level is "drawn" exactly when every one of its
// scenarios has at least one.
package progress

import (
	"log/slog"
	"sync"
)

// Tracker aggregates reference captures per level. The drawn flag is a
// pure derived value, recomputed from the capture set on every query.
type Tracker struct {
	mu       sync.RWMutex
	captured map[string]map[string]bool // level -> scenario ids seen
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{captured: make(map[string]map[string]bool)}
}

// RecordReferenceCapture marks a scenario's reference material available.
func (t *Tracker) RecordReferenceCapture(level, scenarioID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.captured[level]
	if !ok {
		set = make(map[string]bool)
		t.captured[level] = set
	}
	set[scenarioID] = true
}

// IsLevelDrawn reports whether every given scenario has produced at least
// one reference capture. False for an empty scenario list.
func (t *Tracker) IsLevelDrawn(level string, scenarioIDs []string) bool {
	if len(scenarioIDs) == 0 {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.captured[level]
	if set == nil {
		return false
	}
	for _, id := range scenarioIDs {
		if !set[id] {
			return false
		}
	}
	return true
}

// ResetLevel clears all buffered captures for a level. Called explicitly on
// level navigation, never as a side effect of other state changes.
func (t *Tracker) ResetLevel(level string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.captured[level]; ok {
		delete(t.captured, level)
		slog.Debug("level reference captures cleared", "level", level)
	}
}
