// Package game wires the capture/diff/scoring pipeline together for the
// level catalog: code changes go to the sandbox controller, captures feed
// the scenario scorer, completed results update the score aggregator and
// the progress tracker and are fanned out to subscribers.
package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pixelclass/render-judge/internal/broadcast"
	"github.com/pixelclass/render-judge/internal/channel"
	"github.com/pixelclass/render-judge/internal/levels"
	"github.com/pixelclass/render-judge/internal/pixel"
	"github.com/pixelclass/render-judge/internal/progress"
	"github.com/pixelclass/render-judge/internal/sandbox"
	"github.com/pixelclass/render-judge/internal/scorer"
	"github.com/pixelclass/render-judge/internal/scoring"
	"github.com/pixelclass/render-judge/internal/storage"
)

// ErrLevelUnknown indicates a request for a level not in the catalog.
var ErrLevelUnknown = errors.New("unknown level")

// Game is the orchestration facade the API serves.
type Game struct {
	mu sync.Mutex

	catalog     *levels.Loader
	controller  *sandbox.Controller
	scorer      *scorer.Scorer
	tracker     *progress.Tracker
	aggregator  *scoring.Aggregator
	broadcaster *broadcast.Broadcaster
	repo        storage.Repository

	scenarioLevel    map[string]string
	scenarioAccuracy map[string]float64
	learnerCode      map[string]levels.CodeBundle
	currentLevel     string
}

// New assembles a game over the given collaborators. repo may be nil in
// tests.
func New(
	catalog *levels.Loader,
	controller *sandbox.Controller,
	engine scorer.Submitter,
	debounce time.Duration,
	aggregator *scoring.Aggregator,
	broadcaster *broadcast.Broadcaster,
	repo storage.Repository,
) *Game {
	g := &Game{
		catalog:          catalog,
		controller:       controller,
		tracker:          progress.NewTracker(),
		aggregator:       aggregator,
		broadcaster:      broadcaster,
		repo:             repo,
		scenarioLevel:    make(map[string]string),
		scenarioAccuracy: make(map[string]float64),
		learnerCode:      make(map[string]levels.CodeBundle),
	}

	g.scorer = scorer.New(engine, debounce, g.onResult)
	controller.OnCapture(g.onCapture)

	return g
}

// Restore seeds score state from persistence without re-running any diffs.
func (g *Game) Restore(ctx context.Context) {
	if g.repo == nil {
		return
	}

	scores, err := g.repo.GetLevelScores(ctx)
	if err != nil {
		slog.Warn("failed to load persisted level scores", "error", err)
	} else if len(scores) > 0 {
		g.aggregator.Restore(scores)
	}

	state, err := g.repo.LoadGameState(ctx)
	if err != nil {
		slog.Warn("failed to load persisted game state", "error", err)
		return
	}
	if state != nil && state.CurrentLevel != "" {
		g.mu.Lock()
		g.currentLevel = state.CurrentLevel
		g.mu.Unlock()
	}
}

// ActivateLevel makes a level current and opens channel pairs for all its
// scenarios, pushing the reference solution and the learner's working code.
func (g *Game) ActivateLevel(ctx context.Context, levelName string) error {
	lvl := g.catalog.Get(levelName)
	if lvl == nil {
		return ErrLevelUnknown
	}

	g.mu.Lock()
	g.currentLevel = levelName
	code := g.learnerCode[levelName]
	for _, sc := range lvl.Scenarios {
		g.scenarioLevel[sc.ID] = levelName
	}
	g.mu.Unlock()

	for _, sc := range lvl.Scenarios {
		g.controller.Ensure(ctx, sc, lvl.Reference, code, lvl.Events)
	}

	g.persistGameState(ctx)

	slog.Info("level activated", "level", levelName, "scenarios", len(lvl.Scenarios))
	return nil
}

// SubmitLearnerCode records the learner's new working code for a level and
// pushes it to every scenario's drawing channel.
func (g *Game) SubmitLearnerCode(ctx context.Context, levelName string, code levels.CodeBundle) error {
	lvl := g.catalog.Get(levelName)
	if lvl == nil {
		return ErrLevelUnknown
	}

	g.mu.Lock()
	g.learnerCode[levelName] = code
	for _, sc := range lvl.Scenarios {
		g.scenarioLevel[sc.ID] = levelName
	}
	g.mu.Unlock()

	for _, sc := range lvl.Scenarios {
		g.controller.Ensure(ctx, sc, lvl.Reference, code, lvl.Events)
	}

	return nil
}

// onCapture feeds honored captures into progress tracking and the scorer.
// Runs on the websocket read goroutine; nothing here blocks.
func (g *Game) onCapture(scenarioID, channelName string, buf *pixel.Buffer) {
	g.mu.Lock()
	levelName := g.scenarioLevel[scenarioID]
	g.mu.Unlock()

	if channelName == sandbox.ChannelSolution && levelName != "" {
		g.tracker.RecordReferenceCapture(levelName, scenarioID)
	}

	reference, learner := g.controller.Buffers(scenarioID)
	if reference == nil || learner == nil {
		// Not scoreable yet; surfaced as "no data yet", not an error.
		return
	}

	g.scorer.Submit(scenarioID, reference, learner)
}

// onResult publishes a completed comparison and folds it into the level's
// score.
func (g *Game) onResult(res scorer.AccuracyResult) {
	msg := broadcast.ResultMessage{
		ScenarioID: res.ScenarioID,
		Accuracy:   res.Accuracy,
		ComputedAt: res.ComputedAt,
	}
	if res.DiffImage != nil {
		if dataURL, err := res.DiffImage.EncodeDataURL(); err == nil {
			msg.DiffImage = dataURL
		} else {
			slog.Warn("failed to encode diff image", "scenario", res.ScenarioID, "error", err)
		}
	}
	g.broadcaster.Publish(msg)

	g.mu.Lock()
	g.scenarioAccuracy[res.ScenarioID] = res.Accuracy
	levelName := g.scenarioLevel[res.ScenarioID]
	g.mu.Unlock()

	if levelName == "" {
		return
	}

	g.aggregator.Update(context.Background(), levelName, g.levelAccuracy(levelName))
}

// levelAccuracy is the mean of the level's latest scenario accuracies.
// Scenarios without a completed comparison count as zero.
func (g *Game) levelAccuracy(levelName string) float64 {
	lvl := g.catalog.Get(levelName)
	if lvl == nil || len(lvl.Scenarios) == 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var sum float64
	for _, sc := range lvl.Scenarios {
		sum += g.scenarioAccuracy[sc.ID]
	}
	return sum / float64(len(lvl.Scenarios))
}

// IsLevelDrawn reports whether every scenario of a level has produced a
// reference capture.
func (g *Game) IsLevelDrawn(levelName string) bool {
	lvl := g.catalog.Get(levelName)
	if lvl == nil {
		return false
	}
	return g.tracker.IsLevelDrawn(levelName, lvl.ScenarioIDs())
}

// ResetLevel clears a level's captures, scorer state and channels. An
// explicit entry point used on navigation, never an implicit side effect.
func (g *Game) ResetLevel(ctx context.Context, levelName string) error {
	lvl := g.catalog.Get(levelName)
	if lvl == nil {
		return ErrLevelUnknown
	}

	g.tracker.ResetLevel(levelName)

	g.mu.Lock()
	delete(g.learnerCode, levelName)
	for _, sc := range lvl.Scenarios {
		delete(g.scenarioAccuracy, sc.ID)
	}
	g.mu.Unlock()

	for _, sc := range lvl.Scenarios {
		g.controller.CloseScenario(ctx, sc.ID)
		g.scorer.Reset(sc.ID)
	}

	slog.Info("level reset", "level", levelName)
	return nil
}

// Attach binds an incoming rendering-context connection to its channel.
func (g *Game) Attach(scenarioID, name string, conn channel.Conn) (*channel.Channel, error) {
	return g.controller.Attach(scenarioID, name, conn)
}

// Result returns the latest accuracy result for a scenario, or nil.
func (g *Game) Result(scenarioID string) *scorer.AccuracyResult {
	return g.scorer.Result(scenarioID)
}

// LevelScore returns a level's current score snapshot, or nil.
func (g *Game) LevelScore(levelName string) *scoring.LevelScore {
	return g.aggregator.LevelScore(levelName)
}

// Milestone returns the next accuracy milestone for a level, or nil.
func (g *Game) Milestone(levelName string) *levels.Threshold {
	return g.aggregator.Milestone(levelName)
}

// Totals returns the game-wide score totals.
func (g *Game) Totals() scoring.Totals {
	return g.aggregator.Totals()
}

// CurrentLevel returns the active level name, possibly empty.
func (g *Game) CurrentLevel() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentLevel
}

// persistGameState saves the current level and totals. Best effort.
func (g *Game) persistGameState(ctx context.Context) {
	if g.repo == nil {
		return
	}

	totals := g.aggregator.Totals()
	state := storage.GameState{
		CurrentLevel: g.CurrentLevel(),
		AllPoints:    totals.AllPoints,
		AllMaxPoints: totals.AllMaxPoints,
	}

	if err := g.repo.SaveGameState(ctx, state); err != nil {
		slog.Warn("failed to persist game state", "error", err)
	}
}
