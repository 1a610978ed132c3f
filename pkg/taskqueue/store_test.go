package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(logging.New(logrus.New()), rdb, time.Hour)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, TaskTypeImage, map[string]any{"prompt": "p"}, "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, "p", got.Params["prompt"])
}

func TestNextPendingIsFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, TaskTypeImage, nil, "")
	require.NoError(t, err)
	b, err := s.Create(ctx, TaskTypeImage, nil, "")
	require.NoError(t, err)

	first, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, a.ID, first)

	second, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, b.ID, second)
}

func TestUpdateTransitionsProcessingSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, TaskTypeImage, nil, "")
	require.NoError(t, err)

	processing := StatusProcessing
	_, err = s.Update(ctx, task.ID, Update{Status: &processing})
	require.NoError(t, err)

	stats, err := s.QueueStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Processing)

	completed := StatusCompleted
	progress := 100.0
	updated, err := s.Update(ctx, task.ID, Update{Status: &completed, Progress: &progress, Result: map[string]any{"ok": true}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)
	require.Equal(t, 100.0, updated.Progress)

	stats, err = s.QueueStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Processing)
}

func TestCancelRemovesFromPendingQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, TaskTypeVideo, nil, "")
	require.NoError(t, err)

	cancelled, err := s.Cancel(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	id, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestCancelOnTerminalTaskIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, TaskTypeImage, nil, "")
	require.NoError(t, err)
	failed := StatusFailed
	_, err = s.Update(ctx, task.ID, Update{Status: &failed})
	require.NoError(t, err)

	result, err := s.Cancel(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
}

func TestUserHistoryIsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, TaskTypeImage, nil, "u1")
	require.NoError(t, err)
	second, err := s.Create(ctx, TaskTypeImage, nil, "u1")
	require.NoError(t, err)

	tasks, err := s.GetUserTasks(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, second.ID, tasks[0].ID)
	require.Equal(t, first.ID, tasks[1].ID)
}

func TestExpiredTaskIsGone(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s := New(logging.New(logrus.New()), rdb, time.Second)

	task, err := s.Create(context.Background(), TaskTypeImage, nil, "")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	got, err := s.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetMissingTaskReturnsNil(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, task)
}
