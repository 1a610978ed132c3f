// Package worker is the background processor bridging the task store
// to the task handlers: it dequeues tasks, applies per-task-type
// concurrency caps, routes each task to its handler, and writes
// results back.
//
// A dispatched handler's completion runs concurrently with the poll
// loop, so the per-type in-flight counters are guarded by a mutex.
// In-flight handler goroutines are tracked with an errgroup.Group —
// without a shared context, since one handler's failure must never
// cancel its siblings.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/modelgate/modelgate/pkg/handler"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// pollInterval is how long the loop sleeps when the pending queue is
// empty, or when a dequeued task's type is saturated.
const pollInterval = 500 * time.Millisecond

// DefaultConcurrencyLimits caps in-flight tasks per type. Video is
// serialized outright; it is the heaviest resident on the accelerator.
var DefaultConcurrencyLimits = map[taskqueue.TaskType]int{
	taskqueue.TaskTypeVideo:       1,
	taskqueue.TaskTypeImage:       2,
	taskqueue.TaskTypeImage2Image: 2,
	taskqueue.TaskTypeLLMCompare:  1,
}

// OutcomeRecorder is the optional metrics seam a Worker reports
// terminal task outcomes to; nil by default.
type OutcomeRecorder interface {
	RecordOutcome(t taskqueue.TaskType, status taskqueue.TaskStatus)
}

// Worker polls the task store and dispatches tasks to handlers,
// enforcing per-type concurrency caps.
type Worker struct {
	log      logging.Logger
	store    *taskqueue.Store
	handlers *handler.Registry
	limits   map[taskqueue.TaskType]int
	metrics  OutcomeRecorder

	mu       sync.Mutex
	inFlight map[taskqueue.TaskType]int

	stop         chan struct{}
	pollDone     chan struct{}
	handlerGroup errgroup.Group
}

// New constructs a Worker. A nil limits map uses DefaultConcurrencyLimits.
func New(log logging.Logger, store *taskqueue.Store, handlers *handler.Registry, limits map[taskqueue.TaskType]int) *Worker {
	if limits == nil {
		limits = DefaultConcurrencyLimits
	}
	return &Worker{
		log:      log,
		store:    store,
		handlers: handlers,
		limits:   limits,
		inFlight: make(map[taskqueue.TaskType]int),
		stop:     make(chan struct{}),
	}
}

// SetMetrics attaches an OutcomeRecorder.
func (w *Worker) SetMetrics(m OutcomeRecorder) {
	w.metrics = m
}

// Start launches the polling loop in the background and returns
// immediately. Call Stop to request shutdown.
func (w *Worker) Start(ctx context.Context) {
	w.pollDone = make(chan struct{})
	go func() {
		defer close(w.pollDone)
		w.run(ctx)
	}()
}

// Stop causes the loop to exit after its next iteration, then waits
// for the loop and every in-flight handler to finish. Handlers are
// never preempted.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.pollDone
	if err := w.handlerGroup.Wait(); err != nil {
		w.log.Warnf("worker: handler group: %v", err)
	}
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}

		id, err := w.store.NextPending(ctx)
		if err != nil {
			w.log.Warnf("worker: polling pending queue: %v", err)
			if w.sleep(ctx) {
				return
			}
			continue
		}
		if id == "" {
			if w.sleep(ctx) {
				return
			}
			continue
		}

		task, err := w.store.Get(ctx, id)
		if err != nil {
			w.log.Warnf("worker: reading task %s: %v", id, err)
			continue
		}
		if task == nil {
			// The record vanished (e.g. TTL expired between dequeue
			// and read); nothing to recover, drop it.
			continue
		}

		if !w.admit(task.Type) {
			// Saturated: requeue at the tail to preserve fairness
			// across types. This busy-loops if every pending task
			// is of the saturated type; acceptable given the sleep
			// interval.
			if err := w.store.Requeue(ctx, id); err != nil {
				w.log.Warnf("worker: requeueing %s: %v", id, err)
			}
			if w.sleep(ctx) {
				return
			}
			continue
		}

		w.dispatch(ctx, task)
	}
}

// sleep waits out pollInterval or an early shutdown signal, reporting
// whether the loop should exit immediately.
func (w *Worker) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stop:
		return true
	case <-time.After(pollInterval):
		return false
	}
}

// admit increments the in-flight counter for t if under its cap,
// reporting whether admission succeeded.
func (w *Worker) admit(t taskqueue.TaskType) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[t] >= w.limits[t] {
		return false
	}
	w.inFlight[t]++
	return true
}

func (w *Worker) release(t taskqueue.TaskType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight[t]--
}

// dispatch transitions task to Processing and launches its handler
// without blocking the poll loop.
func (w *Worker) dispatch(ctx context.Context, task *taskqueue.Task) {
	processing := taskqueue.StatusProcessing
	if _, err := w.store.Update(ctx, task.ID, taskqueue.Update{Status: &processing}); err != nil {
		w.log.Warnf("worker: marking %s processing: %v", task.ID, err)
	}

	w.handlerGroup.Go(func() error {
		defer w.release(task.Type)
		w.runHandler(ctx, task)
		return nil
	})
}

func (w *Worker) runHandler(ctx context.Context, task *taskqueue.Task) {
	fn, err := w.handlers.Get(task.Type)
	if err != nil {
		w.fail(ctx, task, err.Error())
		return
	}

	result, err := fn(ctx, task)
	if err != nil {
		w.fail(ctx, task, err.Error())
		return
	}

	completed := taskqueue.StatusCompleted
	progress := 100.0
	if _, err := w.store.Update(ctx, task.ID, taskqueue.Update{Status: &completed, Progress: &progress, Result: result}); err != nil {
		w.log.Warnf("worker: completing %s: %v", task.ID, err)
	}
	w.recordOutcome(task.Type, taskqueue.StatusCompleted)
}

func (w *Worker) fail(ctx context.Context, task *taskqueue.Task, message string) {
	failed := taskqueue.StatusFailed
	if _, err := w.store.Update(ctx, task.ID, taskqueue.Update{Status: &failed, Error: &message}); err != nil {
		w.log.Warnf("worker: failing %s: %v", task.ID, err)
	}
	w.recordOutcome(task.Type, taskqueue.StatusFailed)
}

func (w *Worker) recordOutcome(t taskqueue.TaskType, status taskqueue.TaskStatus) {
	if w.metrics != nil {
		w.metrics.RecordOutcome(t, status)
	}
}
