package scoring

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pixelclass/render-judge/internal/levels"
)

// LevelScore is the derived score state of one level. Never hand-edited;
// recomputed from accuracy and the level's threshold table.
type LevelScore struct {
	LevelName  string  `json:"levelName"`
	Accuracy   float64 `json:"accuracy"`
	Points     float64 `json:"points"`
	BestTimeMs *int64  `json:"bestTime,omitempty"`
}

// Totals is the game-wide score state.
type Totals struct {
	AllPoints    float64 `json:"allPoints"`
	AllMaxPoints float64 `json:"allMaxPoints"`
}

// Notifier is told whenever totals change. Fire-and-forget.
type Notifier interface {
	NotifyScore(ctx context.Context, totals Totals)
}

// Saver persists level scores. Failures are logged, never propagated.
type Saver interface {
	SaveLevelScore(ctx context.Context, score LevelScore) error
}

// Aggregator combines per-level accuracy into level and game totals. It is
// the single shared mutable score resource: all writes go through Update
// and Restore.
type Aggregator struct {
	mu       sync.Mutex
	catalog  *levels.Loader
	notifier Notifier
	saver    Saver

	scores     map[string]*LevelScore
	lastTotals Totals
}

// NewAggregator creates an aggregator over the level catalog. notifier and
// saver may be nil.
func NewAggregator(catalog *levels.Loader, notifier Notifier, saver Saver) *Aggregator {
	return &Aggregator{
		catalog:  catalog,
		notifier: notifier,
		saver:    saver,
		scores:   make(map[string]*LevelScore),
	}
}

// Update recomputes a level's points from its new accuracy, then the game
// totals. The level score is persisted whenever the level's own state moved,
// even when the points band and therefore the totals stayed put; the notifier
// only hears about totals changes.
func (a *Aggregator) Update(ctx context.Context, levelName string, accuracy float64) {
	lvl := a.catalog.Get(levelName)
	if lvl == nil {
		slog.Warn("score update for unknown level", "level", levelName)
		return
	}

	points := PointsFor(accuracy, lvl.MaxPoints, lvl.Thresholds)

	a.mu.Lock()
	st, ok := a.scores[levelName]
	if !ok {
		st = &LevelScore{LevelName: levelName}
		a.scores[levelName] = st
	}
	levelChanged := !ok || st.Accuracy != accuracy || st.Points != points
	st.Accuracy = accuracy
	st.Points = points

	totals := a.totalsLocked()
	totalsChanged := totals != a.lastTotals
	a.lastTotals = totals
	snapshot := *st
	a.mu.Unlock()

	if totalsChanged && a.notifier != nil {
		a.notifier.NotifyScore(ctx, totals)
	}
	if levelChanged && a.saver != nil {
		if err := a.saver.SaveLevelScore(ctx, snapshot); err != nil {
			slog.Warn("failed to persist level score", "level", levelName, "error", err)
		}
	}
}

// Restore seeds scores from previously persisted state without re-running
// any diff computations.
func (a *Aggregator) Restore(states []LevelScore) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, st := range states {
		s := st
		a.scores[s.LevelName] = &s
	}
	a.lastTotals = a.totalsLocked()

	slog.Info("score state restored", "levels", len(states),
		"all_points", a.lastTotals.AllPoints)
}

// Totals returns the current game-wide totals.
func (a *Aggregator) Totals() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalsLocked()
}

// totalsLocked sums points over scored levels and max points over the whole
// catalog. Callers hold a.mu.
func (a *Aggregator) totalsLocked() Totals {
	var t Totals
	for _, st := range a.scores {
		t.AllPoints += st.Points
	}
	for _, lvl := range a.catalog.List() {
		t.AllMaxPoints += lvl.MaxPoints
	}
	return t
}

// LevelScore returns a snapshot of one level's score state, or nil.
func (a *Aggregator) LevelScore(levelName string) *LevelScore {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.scores[levelName]
	if !ok {
		return nil
	}
	out := *st
	return &out
}

// Milestone returns the next threshold the learner should aim for on a
// level, or nil when max points are reached.
func (a *Aggregator) Milestone(levelName string) *levels.Threshold {
	lvl := a.catalog.Get(levelName)
	if lvl == nil {
		return nil
	}

	a.mu.Lock()
	accuracy := 0.0
	if st, ok := a.scores[levelName]; ok {
		accuracy = st.Accuracy
	}
	a.mu.Unlock()

	return NextMilestone(accuracy, lvl.Thresholds)
}
