package client

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixelclass/render-judge/internal/api"
	"github.com/pixelclass/render-judge/internal/broadcast"
	"github.com/pixelclass/render-judge/internal/config"
	"github.com/pixelclass/render-judge/internal/diff"
	"github.com/pixelclass/render-judge/internal/game"
	"github.com/pixelclass/render-judge/internal/levels"
	"github.com/pixelclass/render-judge/internal/sandbox"
	"github.com/pixelclass/render-judge/internal/scoring"
)

const testLevelYAML = `
name: centered-box
title: Center the Box
max_points: 100
thresholds:
  - accuracy: 70
    points_percent: 25
  - accuracy: 95
    points_percent: 100
scenarios:
  - id: sc-1
    dimensions:
      width: 2
      height: 2
`

type nopEngine struct{}

func (nopEngine) Submit(diff.Job) error { return nil }

func newTestBackend(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "level.yaml"), []byte(testLevelYAML), 0o644); err != nil {
		t.Fatalf("write level: %v", err)
	}
	catalog := levels.NewLoader()
	if err := catalog.LoadFromDir(dir); err != nil {
		t.Fatalf("load levels: %v", err)
	}

	controller := sandbox.NewController(nil, nil)
	broadcaster := broadcast.NewBroadcaster()
	aggregator := scoring.NewAggregator(catalog, nil, nil)
	g := game.New(catalog, controller, nopEngine{}, 10*time.Millisecond, aggregator, broadcaster, nil)

	srv := api.NewServer(config.ServerConfig{}, g, catalog, broadcaster, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_LevelLifecycle(t *testing.T) {
	ts := newTestBackend(t)
	c := NewClient(ts.URL, WithTimeout(5*time.Second))
	ctx := context.Background()

	list, err := c.ListLevels(ctx)
	if err != nil {
		t.Fatalf("ListLevels: %v", err)
	}
	if len(list) != 1 || list[0].Name != "centered-box" || list[0].MaxPoints != 100 {
		t.Fatalf("list = %+v", list)
	}

	if err := c.ActivateLevel(ctx, "centered-box"); err != nil {
		t.Fatalf("ActivateLevel: %v", err)
	}

	if err := c.SubmitCode(ctx, "centered-box", CodeBundle{HTML: "<p>hi</p>"}); err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}

	drawn, err := c.IsLevelDrawn(ctx, "centered-box")
	if err != nil {
		t.Fatalf("IsLevelDrawn: %v", err)
	}
	if drawn {
		t.Error("level drawn with no captures")
	}

	score, err := c.LevelScore(ctx, "centered-box")
	if err != nil {
		t.Fatalf("LevelScore: %v", err)
	}
	if score.Points != 0 || score.Milestone == nil || score.Milestone.Accuracy != 70 {
		t.Fatalf("score = %+v", score)
	}

	res, err := c.ScenarioResult(ctx, "centered-box", "sc-1")
	if err != nil {
		t.Fatalf("ScenarioResult: %v", err)
	}
	if res.Available {
		t.Error("scenario result available with no captures")
	}

	totals, err := c.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.AllMaxPoints != 100 {
		t.Fatalf("totals = %+v", totals)
	}

	if err := c.ResetLevel(ctx, "centered-box"); err != nil {
		t.Fatalf("ResetLevel: %v", err)
	}
}

func TestClient_APIErrorsSurface(t *testing.T) {
	ts := newTestBackend(t)
	c := NewClient(ts.URL)
	ctx := context.Background()

	if err := c.ActivateLevel(ctx, "missing"); err == nil {
		t.Error("activating a missing level should fail")
	}
	if _, err := c.LevelScore(ctx, "missing"); err == nil {
		t.Error("scoring a missing level should fail")
	}
	if _, err := c.ScenarioResult(ctx, "centered-box", "bogus"); err == nil {
		t.Error("unknown scenario should fail")
	}
}

func TestClient_UnreachableServer(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithTimeout(time.Second))
	if _, err := c.ListLevels(context.Background()); err == nil {
		t.Error("expected a transport error")
	}
}
