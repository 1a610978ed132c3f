package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/handler"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

func newTestStore(t *testing.T) *taskqueue.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return taskqueue.New(logging.New(logrus.New()), rdb, time.Hour)
}

// blockingHandler blocks until release is closed, letting a test hold
// a task in Processing to exercise the concurrency cap.
func blockingHandler(release <-chan struct{}) handler.Func {
	return func(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
		<-release
		return map[string]any{"ok": true}, nil
	}
}

func TestWorkerRequeuesUnderSaturation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	release := make(chan struct{})
	handlers := handler.NewRegistry()
	handlers.Register(taskqueue.TaskTypeVideo, blockingHandler(release))
	handlers.Register(taskqueue.TaskTypeImage, func(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	limits := map[taskqueue.TaskType]int{taskqueue.TaskTypeVideo: 1, taskqueue.TaskTypeImage: 2}
	w := New(logging.New(logrus.New()), store, handlers, limits)

	x, err := store.Create(ctx, taskqueue.TaskTypeVideo, nil, "")
	require.NoError(t, err)
	// z is queued ahead of y, so by the time y completes the worker has
	// dequeued z while x holds the only Video slot and put it back.
	z, err := store.Create(ctx, taskqueue.TaskTypeVideo, nil, "")
	require.NoError(t, err)
	y, err := store.Create(ctx, taskqueue.TaskTypeImage, nil, "")
	require.NoError(t, err)

	w.Start(ctx)

	require.Eventually(t, func() bool {
		yt, err := store.Get(ctx, y.ID)
		return err == nil && yt != nil && yt.Status == taskqueue.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond, "Y should complete despite X saturating Video")

	xt, err := store.Get(ctx, x.ID)
	require.NoError(t, err)
	require.Equal(t, taskqueue.StatusProcessing, xt.Status, "X should still be in flight, held by the blocking handler")

	zt, err := store.Get(ctx, z.ID)
	require.NoError(t, err)
	require.Equal(t, taskqueue.StatusPending, zt.Status, "Z should have been requeued, not dispatched, while X holds the Video slot")
	require.Eventually(t, func() bool {
		stats, err := store.QueueStats(ctx)
		return err == nil && stats.Pending == 1
	}, 2*time.Second, 10*time.Millisecond, "Z should be back on the pending queue")

	close(release)
	w.Stop()
}

func TestWorkerCompletesHappyPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handlers := handler.NewRegistry()
	handlers.Register(taskqueue.TaskTypeImage, func(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
		return map[string]any{"image_base64": "x", "seed": float64(42)}, nil
	})

	w := New(logging.New(logrus.New()), store, handlers, map[taskqueue.TaskType]int{taskqueue.TaskTypeImage: 2})
	w.Start(ctx)
	defer w.Stop()

	task, err := store.Create(ctx, taskqueue.TaskTypeImage, map[string]any{"prompt": "p"}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, task.ID)
		return err == nil && got != nil && got.Status == taskqueue.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, got.Progress)
	require.Equal(t, "x", got.Result["image_base64"])
}

func TestWorkerMarksHandlerErrorAsFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handlers := handler.NewRegistry()
	handlers.Register(taskqueue.TaskTypeImage, func(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
		return nil, errBoom
	})

	w := New(logging.New(logrus.New()), store, handlers, map[taskqueue.TaskType]int{taskqueue.TaskTypeImage: 1})
	w.Start(ctx)
	defer w.Stop()

	task, err := store.Create(ctx, taskqueue.TaskTypeImage, nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, task.ID)
		return err == nil && got != nil && got.Status == taskqueue.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, errBoom.Error(), got.Error)
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

func TestRecordOutcomeNotifiesMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handlers := handler.NewRegistry()
	handlers.Register(taskqueue.TaskTypeImage, func(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
		return map[string]any{}, nil
	})

	rec := &fakeRecorder{}
	w := New(logging.New(logrus.New()), store, handlers, map[taskqueue.TaskType]int{taskqueue.TaskTypeImage: 1})
	w.SetMetrics(rec)
	w.Start(ctx)
	defer w.Stop()

	_, err := store.Create(ctx, taskqueue.TaskTypeImage, nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.calls) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []taskqueue.TaskStatus
}

func (f *fakeRecorder) RecordOutcome(t taskqueue.TaskType, status taskqueue.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, status)
}
