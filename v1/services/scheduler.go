package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opendisclosure/entity-backend/pkg/monitoring"
	"github.com/opendisclosure/entity-backend/v1/models"
	"gorm.io/gorm"
)

// Scheduler arms one-shot delayed callbacks. There is no cancel API; a fired
// callback that finds nothing to do is a no-op.
type Scheduler interface {
	Arm(ctx context.Context, delay time.Duration, task string, payload map[string]interface{}, name, description string) (string, error)
}

// DBScheduler persists timers as scheduled-task rows so they survive process
// restarts. A TaskTimerWorker claims due rows and re-enters the dispatcher.
type DBScheduler struct {
	db *gorm.DB
}

// NewDBScheduler creates a database-backed scheduler
func NewDBScheduler(db *gorm.DB) *DBScheduler {
	return &DBScheduler{db: db}
}

func (s *DBScheduler) Arm(ctx context.Context, delay time.Duration, task string, payload map[string]interface{}, name, description string) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode timer payload: %w", err)
	}

	row := models.ScheduledTask{
		TaskID:      "tmr_" + uuid.New().String(),
		Task:        task,
		Payload:     string(encoded),
		Name:        name,
		Description: description,
		DueAt:       time.Now().Add(delay),
		Status:      models.ScheduledTaskPending,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to arm timer: %w", err)
	}

	slog.Info("Timer armed",
		"taskId", row.TaskID,
		"task", task,
		"name", name,
		"dueAt", row.DueAt)
	return row.TaskID, nil
}

// Dispatch is the entry point a fired timer re-enters. It matches the task
// dispatcher's signature so the worker stays decoupled from the handlers.
type Dispatch func(ctx context.Context, req models.TaskRequest) models.TaskResponse

// TaskTimerWorker polls for due timers and invokes the dispatcher with each
// one's stored payload. Delivery is at-least-once: a row is marked fired only
// after the dispatch returns, so a crash mid-dispatch replays the timer.
type TaskTimerWorker struct {
	db           *gorm.DB
	dispatch     Dispatch
	pollInterval time.Duration
	batchSize    int
}

// NewTaskTimerWorker creates a timer worker
func NewTaskTimerWorker(db *gorm.DB, dispatch Dispatch) *TaskTimerWorker {
	return &TaskTimerWorker{
		db:           db,
		dispatch:     dispatch,
		pollInterval: 10 * time.Second,
		batchSize:    10,
	}
}

// Start runs the polling loop until the context is cancelled
func (w *TaskTimerWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Timer worker started", "pollInterval", w.pollInterval, "batchSize", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Timer worker stopped")
			return
		case <-ticker.C:
			w.FireDue(ctx)
		}
	}
}

// FireDue claims every due pending timer and dispatches it. Exposed so tests
// and manual runs can fire timers without waiting on the ticker.
func (w *TaskTimerWorker) FireDue(ctx context.Context) {
	now := time.Now()

	var due []models.ScheduledTask
	if err := w.db.WithContext(ctx).
		Where("status = ?", models.ScheduledTaskPending).
		Where("due_at <= ?", now).
		Order("due_at ASC").
		Limit(w.batchSize).
		Find(&due).Error; err != nil {
		slog.Error("Failed to fetch due timers", "error", err)
		return
	}

	for i := range due {
		w.fire(ctx, &due[i])
	}
}

func (w *TaskTimerWorker) fire(ctx context.Context, row *models.ScheduledTask) {
	var params map[string]interface{}
	if row.Payload != "" {
		if err := json.Unmarshal([]byte(row.Payload), &params); err != nil {
			slog.Error("Timer payload is not valid JSON", "taskId", row.TaskID, "error", err)
			w.finish(ctx, row, models.ScheduledTaskFailed, "invalid payload: "+err.Error())
			return
		}
	}

	slog.Info("Timer fired", "taskId", row.TaskID, "task", row.Task, "name", row.Name)
	monitoring.RecordTimerFired(ctx, row.Task)

	resp := w.dispatch(ctx, models.TaskRequest{Task: row.Task, Parameters: params})
	if resp.StatusCode >= http.StatusInternalServerError {
		// Leave the row pending so the next poll retries it
		slog.Error("Timer dispatch failed", "taskId", row.TaskID, "status", resp.StatusCode, "message", resp.Message)
		w.recordError(ctx, row, resp.Message)
		return
	}

	w.finish(ctx, row, models.ScheduledTaskFired, "")
}

func (w *TaskTimerWorker) finish(ctx context.Context, row *models.ScheduledTask, status models.ScheduledTaskStatus, lastError string) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":   status,
		"fired_at": &now,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	if err := w.db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("task_id = ?", row.TaskID).
		Updates(updates).Error; err != nil {
		slog.Error("Failed to finalize timer row", "taskId", row.TaskID, "error", err)
	}
}

func (w *TaskTimerWorker) recordError(ctx context.Context, row *models.ScheduledTask, message string) {
	if err := w.db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("task_id = ?", row.TaskID).
		Update("last_error", message).Error; err != nil {
		slog.Error("Failed to record timer error", "taskId", row.TaskID, "error", err)
	}
}
