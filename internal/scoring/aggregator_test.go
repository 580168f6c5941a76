package scoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixelclass/render-judge/internal/levels"
)

const testLevelYAML = `
name: centered-box
max_points: 100
thresholds:
  - accuracy: 70
    points_percent: 25
  - accuracy: 85
    points_percent: 60
  - accuracy: 95
    points_percent: 100
scenarios:
  - id: sc-1
    dimensions:
      width: 320
      height: 240
`

func testCatalog(t *testing.T) *levels.Loader {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "level.yaml")
	if err := os.WriteFile(path, []byte(testLevelYAML), 0o644); err != nil {
		t.Fatalf("write level file: %v", err)
	}

	catalog := levels.NewLoader()
	if err := catalog.LoadFromFile(path); err != nil {
		t.Fatalf("load level: %v", err)
	}
	return catalog
}

type fakeNotifier struct {
	calls []Totals
}

func (f *fakeNotifier) NotifyScore(_ context.Context, totals Totals) {
	f.calls = append(f.calls, totals)
}

type fakeSaver struct {
	saved []LevelScore
}

func (f *fakeSaver) SaveLevelScore(_ context.Context, score LevelScore) error {
	f.saved = append(f.saved, score)
	return nil
}

func TestUpdate_RecomputesPointsAndTotals(t *testing.T) {
	notifier := &fakeNotifier{}
	saver := &fakeSaver{}
	a := NewAggregator(testCatalog(t), notifier, saver)

	a.Update(context.Background(), "centered-box", 90)

	score := a.LevelScore("centered-box")
	if score == nil || score.Points != 60 {
		t.Fatalf("LevelScore = %+v, want points 60", score)
	}

	totals := a.Totals()
	if totals.AllPoints != 60 || totals.AllMaxPoints != 100 {
		t.Fatalf("Totals = %+v, want {60 100}", totals)
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.calls))
	}
	if len(saver.saved) != 1 || saver.saved[0].LevelName != "centered-box" {
		t.Fatalf("saver calls = %+v, want one centered-box save", saver.saved)
	}
}

func TestUpdate_NoNotificationWhenTotalsUnchanged(t *testing.T) {
	notifier := &fakeNotifier{}
	a := NewAggregator(testCatalog(t), notifier, nil)

	a.Update(context.Background(), "centered-box", 90)
	// Accuracy moved but the awarded points stayed in the same band.
	a.Update(context.Background(), "centered-box", 91)

	if len(notifier.calls) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.calls))
	}
}

func TestUpdate_SameBandAccuracyStillPersisted(t *testing.T) {
	notifier := &fakeNotifier{}
	saver := &fakeSaver{}
	a := NewAggregator(testCatalog(t), notifier, saver)

	a.Update(context.Background(), "centered-box", 90)
	// Accuracy improved inside the same points band: totals are unchanged
	// so nobody is re-notified, but the better accuracy must still reach
	// the saver or it is lost on restart.
	a.Update(context.Background(), "centered-box", 91)

	if len(notifier.calls) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.calls))
	}
	if len(saver.saved) != 2 {
		t.Fatalf("saver called %d times, want 2", len(saver.saved))
	}
	if got := saver.saved[1]; got.Accuracy != 91 || got.Points != 60 {
		t.Fatalf("second save = %+v, want accuracy 91 points 60", got)
	}

	// A repeat of the exact same accuracy changes nothing and saves nothing.
	a.Update(context.Background(), "centered-box", 91)
	if len(saver.saved) != 2 {
		t.Fatalf("identical update re-saved, %d saves", len(saver.saved))
	}
}

func TestUpdate_UnknownLevelIgnored(t *testing.T) {
	notifier := &fakeNotifier{}
	a := NewAggregator(testCatalog(t), notifier, nil)

	a.Update(context.Background(), "no-such-level", 100)

	if len(notifier.calls) != 0 {
		t.Fatalf("notifier called for unknown level")
	}
}

func TestRestore_SeedsScoresWithoutNotifying(t *testing.T) {
	notifier := &fakeNotifier{}
	a := NewAggregator(testCatalog(t), notifier, nil)

	a.Restore([]LevelScore{{LevelName: "centered-box", Accuracy: 96, Points: 100}})

	if len(notifier.calls) != 0 {
		t.Fatalf("restore must not notify, got %d calls", len(notifier.calls))
	}
	totals := a.Totals()
	if totals.AllPoints != 100 {
		t.Fatalf("restored totals = %+v, want all points 100", totals)
	}

	// An update that lands on the same points does not re-notify either.
	a.Update(context.Background(), "centered-box", 97)
	if len(notifier.calls) != 0 {
		t.Fatalf("unchanged totals after restore notified anyway")
	}
}

func TestMilestone(t *testing.T) {
	a := NewAggregator(testCatalog(t), nil, nil)

	m := a.Milestone("centered-box")
	if m == nil || m.Accuracy != 70 {
		t.Fatalf("Milestone with no score = %+v, want {70 25}", m)
	}

	a.Update(context.Background(), "centered-box", 80)
	m = a.Milestone("centered-box")
	if m == nil || m.Accuracy != 85 || m.PointsPercent != 60 {
		t.Fatalf("Milestone(80) = %+v, want {85 60}", m)
	}

	a.Update(context.Background(), "centered-box", 96)
	if m := a.Milestone("centered-box"); m != nil {
		t.Fatalf("Milestone(96) = %+v, want nil", m)
	}

	if m := a.Milestone("no-such-level"); m != nil {
		t.Fatalf("Milestone for unknown level = %+v, want nil", m)
	}
}
