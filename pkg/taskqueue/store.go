// Package taskqueue persists task lifecycle on Redis: durable records
// with a TTL, a FIFO pending queue, a processing set, and bounded
// per-user history lists.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/modelgate/modelgate/pkg/logging"
)

const (
	taskKeyPrefix     = "task:"
	pendingQueueKey   = "queue:pending"
	processingSetKey  = "queue:processing"
	userTasksPrefix   = "user:"
	userTasksSuffix   = ":tasks"
	maxUserTasksCount = 100

	// timeLayout is a sortable ISO-8601 UTC representation: fixed
	// nanosecond width, so lexicographic order matches time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store is the task store, backed by a Redis-compatible key-value
// store.
//
// Delivery is at-least-once with no orphan reclaim: a crash between
// dequeue and a terminal status write strands the task outside both
// the pending queue and the processing set, and no startup pass moves
// it back. Reclaiming automatically can't tell a crashed owner from a
// slow one and would risk running a job twice concurrently, so
// recovery is manual — re-submit the task; TTL expiry bounds how long
// the stranded record lingers.
type Store struct {
	log logging.Logger
	rdb *redis.Client
	ttl time.Duration
}

// New constructs a Store. ttl is applied to every created task record
// and user history list; zero or negative falls back to 24h.
func New(log logging.Logger, rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{log: log, rdb: rdb, ttl: ttl}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func userTasksKey(userID string) string {
	return userTasksPrefix + userID + userTasksSuffix
}

// Create assigns a fresh id, writes the task hash, appends it to the
// pending queue, and (if userID is set) to the user's trimmed history
// list.
func (s *Store) Create(ctx context.Context, t TaskType, params map[string]any, userID string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.NewString(),
		Type:      t,
		Status:    StatusPending,
		Progress:  0,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
	}

	data, err := serializeTask(task)
	if err != nil {
		return nil, fmt.Errorf("serializing task: %w", err)
	}

	key := taskKey(task.ID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	pipe.RPush(ctx, pendingQueueKey, task.ID)
	if userID != "" {
		uk := userTasksKey(userID)
		pipe.LPush(ctx, uk, task.ID)
		pipe.LTrim(ctx, uk, 0, maxUserTasksCount-1)
		pipe.Expire(ctx, uk, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("persisting task %s: %w", task.ID, err)
	}

	s.log.Infof("taskqueue: created task %s of type %s", task.ID, t)
	return task, nil
}

// Get returns the task record for id, or nil if missing or expired.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	data, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", id, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return deserializeTask(data)
}

// Update applies the supplied fields, refreshing updated_at, and
// maintains the processing set as a side effect of status transitions.
// Last writer wins per field if called concurrently; acceptable since
// a handler owns its task for the task's entire lifecycle. A status
// change on a task that is already terminal is ignored (logged at
// warn) and the stored task is returned unchanged.
func (s *Store) Update(ctx context.Context, id string, u Update) (*Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}
	if u.Status != nil && task.Status.Terminal() && *u.Status != task.Status {
		s.log.Warnf("taskqueue: ignoring %s -> %s transition of terminal task %s", task.Status, *u.Status, id)
		return task, nil
	}

	fields := map[string]any{
		"updated_at": time.Now().UTC().Format(timeLayout),
	}

	if u.Status != nil {
		task.Status = *u.Status
		fields["status"] = string(*u.Status)
	}
	if u.Progress != nil {
		task.Progress = *u.Progress
		fields["progress"] = fmt.Sprintf("%v", *u.Progress)
	}
	if u.Result != nil {
		task.Result = u.Result
		resultJSON, err := json.Marshal(u.Result)
		if err != nil {
			return nil, fmt.Errorf("serializing result for %s: %w", id, err)
		}
		fields["result"] = string(resultJSON)
	}
	if u.Error != nil {
		task.Error = *u.Error
		fields["error"] = *u.Error
	}

	key := taskKey(id)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if u.Status != nil {
		switch *u.Status {
		case StatusProcessing:
			pipe.SAdd(ctx, processingSetKey, id)
		default:
			if u.Status.Terminal() {
				pipe.SRem(ctx, processingSetKey, id)
			}
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("updating task %s: %w", id, err)
	}

	return task, nil
}

// Cancel moves a non-terminal task to Cancelled and removes it from
// the pending queue by value. No-op (returns the task unchanged) if
// already terminal.
func (s *Store) Cancel(ctx context.Context, id string) (*Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}
	if task.Status.Terminal() {
		return task, nil
	}

	if err := s.rdb.LRem(ctx, pendingQueueKey, 0, id).Err(); err != nil {
		return nil, fmt.Errorf("removing task %s from pending queue: %w", id, err)
	}

	cancelled := StatusCancelled
	return s.Update(ctx, id, Update{Status: &cancelled})
}

// GetUserTasks returns up to limit of the user's most recent tasks,
// newest first.
func (s *Store) GetUserTasks(ctx context.Context, userID string, limit int) ([]*Task, error) {
	ids, err := s.rdb.LRange(ctx, userTasksKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tasks for user %s: %w", userID, err)
	}
	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// NextPending pops the oldest pending task id (FIFO), or "" if the
// queue is empty.
func (s *Store) NextPending(ctx context.Context) (string, error) {
	id, err := s.rdb.LPop(ctx, pendingQueueKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("popping pending queue: %w", err)
	}
	return id, nil
}

// Requeue appends id back to the tail of the pending queue, used by
// the worker when a per-type concurrency cap is saturated.
func (s *Store) Requeue(ctx context.Context, id string) error {
	if err := s.rdb.RPush(ctx, pendingQueueKey, id).Err(); err != nil {
		return fmt.Errorf("requeueing task %s: %w", id, err)
	}
	return nil
}

// QueueStats reports pending and processing depth.
func (s *Store) QueueStats(ctx context.Context) (QueueStats, error) {
	pending, err := s.rdb.LLen(ctx, pendingQueueKey).Result()
	if err != nil {
		return QueueStats{}, fmt.Errorf("reading pending length: %w", err)
	}
	processing, err := s.rdb.SCard(ctx, processingSetKey).Result()
	if err != nil {
		return QueueStats{}, fmt.Errorf("reading processing count: %w", err)
	}
	return QueueStats{Pending: int(pending), Processing: int(processing)}, nil
}

// CleanupOldTasks is a documented no-op: record TTL handles expiry
// automatically. Kept so operators poking at the store API can see
// that expiry needs no sweeping pass.
func (s *Store) CleanupOldTasks(ctx context.Context) (int, error) {
	s.log.Infof("taskqueue: cleanup is handled automatically by record TTL")
	return 0, nil
}

func serializeTask(t *Task) (map[string]any, error) {
	paramsJSON, err := json.Marshal(t.Params)
	if err != nil {
		return nil, fmt.Errorf("serializing params: %w", err)
	}
	var resultJSON []byte
	if t.Result != nil {
		resultJSON, err = json.Marshal(t.Result)
		if err != nil {
			return nil, fmt.Errorf("serializing result: %w", err)
		}
	}
	return map[string]any{
		"id":         t.ID,
		"type":       string(t.Type),
		"status":     string(t.Status),
		"progress":   fmt.Sprintf("%v", t.Progress),
		"params":     string(paramsJSON),
		"result":     string(resultJSON),
		"error":      t.Error,
		"created_at": t.CreatedAt.Format(timeLayout),
		"updated_at": t.UpdatedAt.Format(timeLayout),
		"user_id":    t.UserID,
	}, nil
}

func deserializeTask(data map[string]string) (*Task, error) {
	progress, err := parseFloat(data["progress"])
	if err != nil {
		return nil, fmt.Errorf("parsing progress: %w", err)
	}
	createdAt, err := time.Parse(timeLayout, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	updatedAt, err := time.Parse(timeLayout, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	var params map[string]any
	if raw := data["params"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("parsing params: %w", err)
		}
	}
	var result map[string]any
	if raw := data["result"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("parsing result: %w", err)
		}
	}

	return &Task{
		ID:        data["id"],
		Type:      TaskType(data["type"]),
		Status:    TaskStatus(data["status"]),
		Progress:  progress,
		Params:    params,
		Result:    result,
		Error:     data["error"],
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		UserID:    data["user_id"],
	}, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}
