// Package scorer drives diff computations per scenario: it debounces rapid
// edits, guarantees at most one in-flight computation per scenario, and
// publishes the resulting accuracy plus diff image.
package scorer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pixelclass/render-judge/internal/diff"
	"github.com/pixelclass/render-judge/internal/pixel"
)

// DefaultDebounce coalesces rapid edits into one computation.
const DefaultDebounce = 300 * time.Millisecond

// AccuracyResult is one completed comparison for a scenario. A new result
// replaces the previous one; diff images are never merged.
type AccuracyResult struct {
	ScenarioID string
	Accuracy   float64
	DiffImage  *pixel.Buffer
	ComputedAt time.Time
}

// Submitter hands jobs to the diff engine. *diff.Engine satisfies it.
type Submitter interface {
	Submit(diff.Job) error
}

// PublishFunc receives completed results.
type PublishFunc func(AccuracyResult)

// scenario states
type state int

const (
	stateIdle state = iota
	stateDebouncing
	stateComputing
)

type scenarioState struct {
	state      state
	pending    bool
	generation uint64
	timer      *time.Timer

	// Latest captured pair. Clones are handed to the engine since buffers
	// given to a background computation are consumed by that call.
	reference *pixel.Buffer
	learner   *pixel.Buffer

	last *AccuracyResult
}

// Scorer runs the per-scenario debounce/single-flight state machine.
type Scorer struct {
	mu        sync.Mutex
	debounce  time.Duration
	engine    Submitter
	publish   PublishFunc
	scenarios map[string]*scenarioState
}

// New creates a scorer. debounce <= 0 selects the default window.
func New(engine Submitter, debounce time.Duration, publish PublishFunc) *Scorer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Scorer{
		debounce:  debounce,
		engine:    engine,
		publish:   publish,
		scenarios: make(map[string]*scenarioState),
	}
}

// Submit records the latest capture pair for a scenario and schedules a
// computation. Called on every new capture; rapid calls coalesce into one
// diff invocation. A submit while a computation is running is queued and
// re-submitted once the in-flight computation finishes, always using the
// latest buffers.
func (s *Scorer) Submit(scenarioID string, reference, learner *pixel.Buffer) {
	if reference == nil || learner == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scenarios[scenarioID]
	if !ok {
		st = &scenarioState{}
		s.scenarios[scenarioID] = st
	}

	st.reference = reference
	st.learner = learner

	switch st.state {
	case stateIdle:
		st.state = stateDebouncing
		st.timer = time.AfterFunc(s.debounce, func() { s.fire(scenarioID) })
	case stateDebouncing:
		st.timer.Reset(s.debounce)
	case stateComputing:
		st.pending = true
	}
}

// fire moves a scenario from debouncing to computing and dispatches the job.
func (s *Scorer) fire(scenarioID string) {
	s.mu.Lock()
	st, ok := s.scenarios[scenarioID]
	if !ok || st.state != stateDebouncing {
		s.mu.Unlock()
		return
	}

	st.state = stateComputing
	st.generation++

	job := diff.Job{
		ScenarioID: scenarioID,
		Generation: st.generation,
		Reference:  st.reference.Clone(),
		Learner:    st.learner.Clone(),
		Done:       s.completed,
	}
	s.mu.Unlock()

	if err := s.engine.Submit(job); err != nil {
		slog.Error("failed to submit diff job", "scenario", scenarioID, "error", err)
		s.mu.Lock()
		if cur, ok := s.scenarios[scenarioID]; ok && cur.generation == job.Generation {
			if cur.pending {
				// Newer buffers arrived while this dispatch was failing.
				// They still owe a computation, so debounce again instead
				// of dropping them.
				cur.pending = false
				cur.state = stateDebouncing
				cur.timer = time.AfterFunc(s.debounce, func() { s.fire(scenarioID) })
			} else {
				cur.state = stateIdle
			}
		}
		s.mu.Unlock()
	}
}

// completed handles a finished computation. Stale completions (wrong
// generation, e.g. after the scenario was reset) are dropped, not merged.
// On failure the scenario keeps its last known good result.
func (s *Scorer) completed(job diff.Job, res diff.Result, err error) {
	var publish *AccuracyResult

	s.mu.Lock()
	st, ok := s.scenarios[job.ScenarioID]
	if !ok || st.generation != job.Generation {
		s.mu.Unlock()
		slog.Debug("stale diff result dropped", "scenario", job.ScenarioID, "generation", job.Generation)
		return
	}

	if err != nil {
		slog.Warn("diff computation failed",
			"scenario", job.ScenarioID, "error", err)
	} else {
		st.last = &AccuracyResult{
			ScenarioID: job.ScenarioID,
			Accuracy:   res.Accuracy,
			DiffImage:  res.Diff,
			ComputedAt: time.Now(),
		}
		publish = st.last
	}

	if st.pending {
		st.pending = false
		st.state = stateDebouncing
		st.timer = time.AfterFunc(s.debounce, func() { s.fire(job.ScenarioID) })
	} else {
		st.state = stateIdle
	}
	s.mu.Unlock()

	if publish != nil && s.publish != nil {
		s.publish(*publish)
	}
}

// Result returns the scenario's current result, or nil if none completed
// yet.
func (s *Scorer) Result(scenarioID string) *AccuracyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scenarios[scenarioID]
	if !ok || st.last == nil {
		return nil
	}
	out := *st.last
	return &out
}

// Reset drops all state for a scenario. In-flight work for the old state is
// superseded by the generation check when it completes.
func (s *Scorer) Reset(scenarioID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scenarios[scenarioID]
	if !ok {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	// Bump the generation so any in-flight completion is treated as stale.
	st.generation++
	delete(s.scenarios, scenarioID)
}
