package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrDisabled = errors.New("store: disabled")
)

// Config configures storage.
//
// Driver values:
//   - "memory": mutex-guarded in-process maps (default; used by tests and mock profiles)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountDisabled AccountStatus = "disabled"
)

// Account is a managed publishing identity on one platform.
type Account struct {
	ID        string        `json:"id"`
	Platform  string        `json:"platform"`
	Nickname  string        `json:"nickname"`
	AIEnabled bool          `json:"aiEnabled"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Hotspot is one trending topic captured by a collection cycle.
// The set is replaced wholesale each cycle except during snapshot import.
type Hotspot struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	Topic       string    `json:"topic"`
	Heat        float64   `json:"heat"`
	CollectedAt time.Time `json:"collectedAt"`
}

// ContentAsset is generated or imported content a schedule may bind to.
type ContentAsset struct {
	ID        string    `json:"id"`
	HotspotID string    `json:"hotspotId,omitempty"`
	Type      string    `json:"type"`
	Tone      string    `json:"tone,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Images    []string  `json:"images,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type TaskStatus string

const (
	TaskScheduled TaskStatus = "scheduled"
	TaskRunning   TaskStatus = "running"
	TaskRetrying  TaskStatus = "retrying"
	TaskSuccess   TaskStatus = "success"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether s only leaves via explicit operator action.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailed || s == TaskCancelled
}

// PublishTask is the central scheduling entity.
//
// retryCount only increases; operator retry/executeNow reset it to 0.
// A task is due iff status is scheduled|retrying and publishAt <= now.
type PublishTask struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"accountId"`
	ContentType    string     `json:"contentType"`
	ContentAssetID string     `json:"contentAssetId,omitempty"`
	PublishAt      time.Time  `json:"publishAt"`
	Status         TaskStatus `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	RetryCount     int        `json:"retryCount"`
	RemoteID       string     `json:"remoteId,omitempty"`
}

// Due reports whether the task should fire at now.
// A zero publishAt never fires (bad rows must not publish early).
func (t PublishTask) Due(now time.Time) bool {
	if t.Status != TaskScheduled && t.Status != TaskRetrying {
		return false
	}
	if t.PublishAt.IsZero() {
		return false
	}
	return !t.PublishAt.After(now)
}

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
	LogAlert LogLevel = "alert"
)

// TaskLog is an append-only, retention-capped task event record.
type TaskLog struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// PublishMetric is an append-only, retention-capped publish outcome record.
type PublishMetric struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Platform  string    `json:"platform"`
	Success   bool      `json:"success"`
	ErrorCode string    `json:"errorCode,omitempty"`
	LatencyMS int64     `json:"latencyMs"`
	CreatedAt time.Time `json:"createdAt"`
}

type ImportMode string

const (
	ImportMerge   ImportMode = "merge"
	ImportReplace ImportMode = "replace"
)

// TaskUpdate mutates a subset of task fields. Nil pointers leave the field
// unchanged; Clear* flags null out nullable columns.
type TaskUpdate struct {
	Status           *TaskStatus
	PublishAt        *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ClearCompletedAt bool
	ErrorMessage     *string
	RetryCount       *int
	RemoteID         *string
}

// Store is the persistence API consumed by the scheduler and the admin surface.
// Implementations mint IDs and creation timestamps for zero-valued fields.
type Store interface {
	AddAccount(ctx context.Context, a Account) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SetAccountStatus(ctx context.Context, id string, status AccountStatus) error
	DeleteAccount(ctx context.Context, id string) error

	ReplaceHotspots(ctx context.Context, items []Hotspot) error
	ImportHotspots(ctx context.Context, items []Hotspot, mode ImportMode) error
	ListHotspots(ctx context.Context) ([]Hotspot, error)

	PutContentAsset(ctx context.Context, a ContentAsset) (ContentAsset, error)
	GetContentAsset(ctx context.Context, id string) (ContentAsset, error)
	ListContentAssets(ctx context.Context) ([]ContentAsset, error)

	CreateTask(ctx context.Context, t PublishTask) (PublishTask, error)
	GetTask(ctx context.Context, id string) (PublishTask, error)
	ListTasks(ctx context.Context) ([]PublishTask, error)
	ListDueTasks(ctx context.Context, now time.Time) ([]PublishTask, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) (PublishTask, error)

	AppendTaskLog(ctx context.Context, l TaskLog) error
	ListTaskLogs(ctx context.Context, limit int) ([]TaskLog, error)
	AppendPublishMetric(ctx context.Context, m PublishMetric) error
	ListPublishMetrics(ctx context.Context, limit int) ([]PublishMetric, error)
	TrimLogs(ctx context.Context, keep int) error
	TrimMetrics(ctx context.Context, keep int) error

	Close() error
}
