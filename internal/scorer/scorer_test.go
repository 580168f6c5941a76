package scorer

import (
	"errors"
	"testing"
	"time"

	"github.com/pixelclass/render-judge/internal/diff"
	"github.com/pixelclass/render-judge/internal/pixel"
)

type fakeEngine struct {
	jobs chan diff.Job
	err  error

	// onSubmit runs inside Submit, before the configured error is returned.
	// Lets a test interleave work with a dispatch.
	onSubmit func()
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{jobs: make(chan diff.Job, 8)}
}

func (f *fakeEngine) Submit(job diff.Job) error {
	err := f.err
	if f.onSubmit != nil {
		f.onSubmit()
	}
	if err != nil {
		return err
	}
	f.jobs <- job
	return nil
}

func waitJob(t *testing.T, f *fakeEngine) diff.Job {
	t.Helper()
	select {
	case job := <-f.jobs:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for diff job")
		return diff.Job{}
	}
}

func expectNoJob(t *testing.T, f *fakeEngine, within time.Duration) {
	t.Helper()
	select {
	case job := <-f.jobs:
		t.Fatalf("unexpected diff job for %q", job.ScenarioID)
	case <-time.After(within):
	}
}

func pair() (*pixel.Buffer, *pixel.Buffer) {
	return pixel.New(2, 2), pixel.New(2, 2)
}

func TestSubmit_RapidEditsCoalesceIntoOneJob(t *testing.T) {
	engine := newFakeEngine()
	published := make(chan AccuracyResult, 1)
	s := New(engine, 20*time.Millisecond, func(r AccuracyResult) { published <- r })

	ref, learner := pair()
	for i := 0; i < 5; i++ {
		s.Submit("sc-1", ref, learner)
	}

	job := waitJob(t, engine)
	if job.ScenarioID != "sc-1" {
		t.Errorf("scenario = %q, want sc-1", job.ScenarioID)
	}
	expectNoJob(t, engine, 100*time.Millisecond)

	job.Done(job, diff.Result{Accuracy: 98.5, Diff: pixel.New(2, 2)}, nil)

	select {
	case res := <-published:
		if res.Accuracy != 98.5 {
			t.Errorf("published accuracy = %v, want 98.5", res.Accuracy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("result was not published")
	}

	if got := s.Result("sc-1"); got == nil || got.Accuracy != 98.5 {
		t.Errorf("Result = %+v, want accuracy 98.5", got)
	}
}

func TestSubmit_DuringComputationQueuesOneRerunWithLatestBuffers(t *testing.T) {
	engine := newFakeEngine()
	s := New(engine, 10*time.Millisecond, nil)

	ref, learner := pair()
	s.Submit("sc-1", ref, learner)
	first := waitJob(t, engine)

	// Two more submits while the first job is in flight; only the newest
	// buffers should reach the engine, in a single follow-up job.
	mid := pixel.New(2, 2)
	mid.Data[0] = 1
	s.Submit("sc-1", ref, mid)

	latest := pixel.New(2, 2)
	latest.Data[0] = 9
	s.Submit("sc-1", ref, latest)

	expectNoJob(t, engine, 50*time.Millisecond)

	first.Done(first, diff.Result{Accuracy: 50, Diff: pixel.New(2, 2)}, nil)

	second := waitJob(t, engine)
	if second.Learner.Data[0] != 9 {
		t.Fatalf("follow-up job learner byte = %d, want 9 (latest submit)", second.Learner.Data[0])
	}
	if second.Generation <= first.Generation {
		t.Errorf("follow-up generation %d not above %d", second.Generation, first.Generation)
	}

	second.Done(second, diff.Result{Accuracy: 60, Diff: pixel.New(2, 2)}, nil)
	expectNoJob(t, engine, 50*time.Millisecond)
}

func TestCompleted_StaleGenerationDropped(t *testing.T) {
	engine := newFakeEngine()
	published := make(chan AccuracyResult, 1)
	s := New(engine, 10*time.Millisecond, func(r AccuracyResult) { published <- r })

	ref, learner := pair()
	s.Submit("sc-1", ref, learner)
	job := waitJob(t, engine)

	s.Reset("sc-1")

	job.Done(job, diff.Result{Accuracy: 99, Diff: pixel.New(2, 2)}, nil)

	select {
	case res := <-published:
		t.Fatalf("stale result was published: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
	if got := s.Result("sc-1"); got != nil {
		t.Fatalf("Result after reset = %+v, want nil", got)
	}
}

func TestCompleted_FailureKeepsLastGoodResult(t *testing.T) {
	engine := newFakeEngine()
	s := New(engine, 10*time.Millisecond, nil)

	ref, learner := pair()
	s.Submit("sc-1", ref, learner)
	job := waitJob(t, engine)
	job.Done(job, diff.Result{Accuracy: 88, Diff: pixel.New(2, 2)}, nil)

	s.Submit("sc-1", ref, learner)
	job = waitJob(t, engine)
	job.Done(job, diff.Result{}, errors.New("boom"))

	got := s.Result("sc-1")
	if got == nil || got.Accuracy != 88 {
		t.Fatalf("Result = %+v, want last good accuracy 88", got)
	}
}

func TestSubmit_EngineBuffersAreClones(t *testing.T) {
	engine := newFakeEngine()
	s := New(engine, 10*time.Millisecond, nil)

	ref, learner := pair()
	s.Submit("sc-1", ref, learner)
	job := waitJob(t, engine)

	job.Reference.Data[0] = 77
	if ref.Data[0] == 77 {
		t.Fatal("engine job shares memory with the submitted reference buffer")
	}
}

func TestSubmit_NilBuffersIgnored(t *testing.T) {
	engine := newFakeEngine()
	s := New(engine, 10*time.Millisecond, nil)

	s.Submit("sc-1", nil, pixel.New(1, 1))
	s.Submit("sc-1", pixel.New(1, 1), nil)
	expectNoJob(t, engine, 50*time.Millisecond)
}

func TestSubmit_EngineRejectionKeepsQueuedRerun(t *testing.T) {
	engine := newFakeEngine()
	s := New(engine, 10*time.Millisecond, nil)

	ref, learner := pair()
	newer := pixel.New(2, 2)
	newer.Data[0] = 5

	// The first dispatch is rejected, and while it is failing a newer
	// capture arrives. The scorer is mid-computation from its point of
	// view, so that capture queues a rerun; the rejection must reschedule
	// it, not drop it.
	engine.err = diff.ErrQueueFull
	engine.onSubmit = func() {
		s.Submit("sc-1", ref, newer)
		engine.onSubmit = nil
		engine.err = nil
	}

	s.Submit("sc-1", ref, learner)

	job := waitJob(t, engine)
	if job.Learner.Data[0] != 5 {
		t.Fatalf("rescheduled job learner byte = %d, want 5 (capture queued during rejection)",
			job.Learner.Data[0])
	}
	job.Done(job, diff.Result{Accuracy: 70, Diff: pixel.New(2, 2)}, nil)
	expectNoJob(t, engine, 50*time.Millisecond)
}

func TestSubmit_EngineRejectionReturnsToIdle(t *testing.T) {
	engine := newFakeEngine()
	engine.err = diff.ErrQueueFull
	s := New(engine, 10*time.Millisecond, nil)

	ref, learner := pair()
	s.Submit("sc-1", ref, learner)
	time.Sleep(50 * time.Millisecond)

	// A later submit schedules again rather than getting stuck in computing.
	engine.err = nil
	s.Submit("sc-1", ref, learner)
	waitJob(t, engine)
}
