// Package diff computes pixel accuracy between a reference capture and a
// learner capture, off the orchestration goroutine so large comparisons
// never block interactive edits.
package diff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pixelclass/render-judge/internal/pixel"
)

// ErrDimensionMismatch indicates the two buffers differ in size. The
// computation is aborted with no partial result.
var ErrDimensionMismatch = errors.New("pixel buffers differ in dimensions")

// ErrQueueFull indicates the worker queue cannot take another job.
var ErrQueueFull = errors.New("diff engine queue full")

// Result holds one completed comparison.
type Result struct {
	// Accuracy is 100 for identical buffers and decreases monotonically
	// with per-pixel difference, clamped to [0,100].
	Accuracy float64
	// Diff visualizes per-pixel difference magnitude as opaque grayscale.
	Diff *pixel.Buffer
}

// Job is one comparison request. Reference and Learner are consumed by the
// engine; callers keep their own copies. Done is invoked from a worker
// goroutine.
type Job struct {
	ScenarioID string
	Generation uint64
	Reference  *pixel.Buffer
	Learner    *pixel.Buffer
	Done       func(Job, Result, error)
}

// Compute is the pure comparison function. Deterministic: the same two
// buffers always yield the bit-exact same accuracy.
//
// Accuracy is 100 * (1 - sum(|a-b|) / (255 * 4 * W * H)) over all four RGBA
// channels, accumulated in integers. The alpha channel participates so that
// transparent-vs-opaque regions count as difference.
func Compute(reference, learner *pixel.Buffer) (Result, error) {
	if err := reference.Validate(); err != nil {
		return Result{}, err
	}
	if err := learner.Validate(); err != nil {
		return Result{}, err
	}
	if !reference.SameSize(learner) {
		return Result{}, fmt.Errorf("%w: %dx%d vs %dx%d",
			ErrDimensionMismatch,
			reference.Width, reference.Height,
			learner.Width, learner.Height,
		)
	}

	out := pixel.New(reference.Width, reference.Height)

	var sum uint64
	for i := 0; i < len(reference.Data); i += 4 {
		var px uint64
		for c := 0; c < 4; c++ {
			a := int(reference.Data[i+c])
			b := int(learner.Data[i+c])
			d := a - b
			if d < 0 {
				d = -d
			}
			px += uint64(d)
		}
		sum += px

		mag := byte(px / 4)
		out.Data[i+0] = mag
		out.Data[i+1] = mag
		out.Data[i+2] = mag
		out.Data[i+3] = 255
	}

	maxSum := uint64(255 * len(reference.Data))
	accuracy := 100 * (1 - float64(sum)/float64(maxSum))
	if accuracy < 0 {
		accuracy = 0
	}
	if accuracy > 100 {
		accuracy = 100
	}

	return Result{Accuracy: accuracy, Diff: out}, nil
}

// Engine runs comparisons on a fixed pool of worker goroutines.
type Engine struct {
	jobs    chan Job
	workers int
}

// NewEngine creates an engine with the given worker count.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 2
	}
	return &Engine{
		jobs:    make(chan Job, workers*4),
		workers: workers,
	}
}

// Start launches the worker pool. Workers drain until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		go e.worker(ctx, i)
	}
	slog.Info("diff engine started", "workers", e.workers)
}

func (e *Engine) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("diff worker stopped", "worker", id)
			return
		case job := <-e.jobs:
			res, err := Compute(job.Reference, job.Learner)
			if job.Done != nil {
				job.Done(job, res, err)
			}
		}
	}
}

// Submit enqueues a job. The scorer's single-flight rule keeps at most one
// job in flight per scenario, so the queue never fills under normal load.
func (e *Engine) Submit(job Job) error {
	select {
	case e.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}
