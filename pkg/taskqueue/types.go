package taskqueue

import "time"

// TaskType is the closed set of task kinds the worker dispatches.
type TaskType string

const (
	TaskTypeImage       TaskType = "image"
	TaskTypeImage2Image TaskType = "image2image"
	TaskTypeVideo       TaskType = "video"
	TaskTypeLLMCompare  TaskType = "llm_compare"
)

// TaskStatus is the closed, monotone status set: Pending to
// Processing to Completed or Failed, with Cancelled reachable from
// Pending and Processing. Status never regresses.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether s is one from which no further transition
// is allowed except TTL expiry.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is a unit of asynchronous work persisted by the Store.
type Task struct {
	ID        string
	Type      TaskType
	Status    TaskStatus
	Progress  float64
	Params    map[string]any
	Result    map[string]any
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    string
}

// Update is the set of fields Store.Update may mutate; unset pointers
// leave the corresponding field untouched.
type Update struct {
	Status   *TaskStatus
	Progress *float64
	Result   map[string]any
	Error    *string
}

// QueueStats is the pending/processing depth snapshot.
type QueueStats struct {
	Pending    int
	Processing int
}
