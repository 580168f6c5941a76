package diff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixelclass/render-judge/internal/pixel"
)

func filled(width, height int, r, g, b, a byte) *pixel.Buffer {
	buf := pixel.New(width, height)
	for i := 0; i < len(buf.Data); i += 4 {
		buf.Data[i+0] = r
		buf.Data[i+1] = g
		buf.Data[i+2] = b
		buf.Data[i+3] = a
	}
	return buf
}

func TestCompute_IdenticalBuffersScoreExactly100(t *testing.T) {
	ref := filled(16, 16, 120, 30, 200, 255)
	res, err := Compute(ref, ref.Clone())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Accuracy != 100 {
		t.Fatalf("accuracy = %v, want exactly 100", res.Accuracy)
	}
	for i := 0; i < len(res.Diff.Data); i += 4 {
		if res.Diff.Data[i] != 0 {
			t.Fatalf("diff pixel %d not black: %d", i/4, res.Diff.Data[i])
		}
		if res.Diff.Data[i+3] != 255 {
			t.Fatalf("diff pixel %d not opaque: %d", i/4, res.Diff.Data[i+3])
		}
	}
}

func TestCompute_DimensionMismatch(t *testing.T) {
	_, err := Compute(pixel.New(4, 4), pixel.New(4, 5))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestCompute_InvalidBuffer(t *testing.T) {
	bad := &pixel.Buffer{Width: 2, Height: 2, Data: make([]byte, 3)}
	if _, err := Compute(bad, pixel.New(2, 2)); err == nil {
		t.Fatal("expected validation error for malformed reference")
	}
	if _, err := Compute(pixel.New(2, 2), bad); err == nil {
		t.Fatal("expected validation error for malformed learner")
	}
}

func TestCompute_QuarterMaximallyDifferentScores75(t *testing.T) {
	// 2x2 buffer with one pixel fully inverted on every channel.
	ref := filled(2, 2, 0, 0, 0, 0)
	learner := ref.Clone()
	learner.Data[0] = 255
	learner.Data[1] = 255
	learner.Data[2] = 255
	learner.Data[3] = 255

	res, err := Compute(ref, learner)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Accuracy != 75 {
		t.Fatalf("accuracy = %v, want exactly 75", res.Accuracy)
	}
	if got := res.Diff.Data[0]; got != 255 {
		t.Errorf("diff magnitude for inverted pixel = %d, want 255", got)
	}
	if got := res.Diff.Data[4]; got != 0 {
		t.Errorf("diff magnitude for identical pixel = %d, want 0", got)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	ref := filled(8, 8, 10, 20, 30, 255)
	learner := filled(8, 8, 13, 25, 29, 255)

	first, err := Compute(ref.Clone(), learner.Clone())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Compute(ref.Clone(), learner.Clone())
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if again.Accuracy != first.Accuracy {
			t.Fatalf("run %d accuracy = %v, want %v", i, again.Accuracy, first.Accuracy)
		}
	}
}

func TestCompute_AccuracyDecreasesWithDifference(t *testing.T) {
	ref := filled(4, 4, 0, 0, 0, 255)
	prev := 101.0
	for _, delta := range []byte{0, 10, 50, 128, 255} {
		learner := filled(4, 4, delta, delta, delta, 255)
		res, err := Compute(ref, learner)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if res.Accuracy >= prev {
			t.Fatalf("accuracy %v at delta %d not below previous %v", res.Accuracy, delta, prev)
		}
		prev = res.Accuracy
	}
}

func TestCompute_AlphaChannelCounts(t *testing.T) {
	ref := filled(2, 2, 100, 100, 100, 255)
	learner := filled(2, 2, 100, 100, 100, 0)
	res, err := Compute(ref, learner)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Accuracy >= 100 {
		t.Fatalf("alpha-only difference scored %v, want below 100", res.Accuracy)
	}
}

func TestEngine_RunsJobsOnWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewEngine(2)
	e.Start(ctx)

	done := make(chan Result, 1)
	job := Job{
		ScenarioID: "sc-1",
		Reference:  filled(4, 4, 1, 2, 3, 255),
		Learner:    filled(4, 4, 1, 2, 3, 255),
		Done: func(_ Job, res Result, err error) {
			if err != nil {
				t.Errorf("job failed: %v", err)
			}
			done <- res
		},
	}
	if err := e.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case res := <-done:
		if res.Accuracy != 100 {
			t.Fatalf("accuracy = %v, want 100", res.Accuracy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for diff result")
	}
}

func TestEngine_SubmitFailsWhenQueueFull(t *testing.T) {
	// Not started: no workers drain the queue.
	e := NewEngine(1)

	var err error
	for i := 0; i < cap(e.jobs)+1; i++ {
		err = e.Submit(Job{
			Reference: pixel.New(1, 1),
			Learner:   pixel.New(1, 1),
		})
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}
