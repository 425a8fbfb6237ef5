package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArm_PersistsPendingRow(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	scheduler := NewDBScheduler(db)

	timerID, err := scheduler.Arm(context.Background(), time.Hour, models.TaskCheckStaleVacancy,
		map[string]interface{}{"entityId": "ent_acme", "role": "RE_AUTH_IND"},
		"stale-vacancy-ent_acme-RE_AUTH_IND", "check the seat")
	require.NoError(t, err)
	assert.Contains(t, timerID, "tmr_")

	var row models.ScheduledTask
	require.NoError(t, db.First(&row, "task_id = ?", timerID).Error)
	assert.Equal(t, models.TaskCheckStaleVacancy, row.Task)
	assert.Equal(t, models.ScheduledTaskPending, row.Status)
	assert.WithinDuration(t, time.Now().Add(time.Hour), row.DueAt, time.Minute)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(row.Payload), &payload))
	assert.Equal(t, "ent_acme", payload["entityId"])
}

func insertTimer(t *testing.T, worker *TaskTimerWorker, taskID string, dueAt time.Time, payload string) {
	row := models.ScheduledTask{
		TaskID:  taskID,
		Task:    models.TaskCheckStaleVacancy,
		Payload: payload,
		Name:    taskID,
		DueAt:   dueAt,
		Status:  models.ScheduledTaskPending,
	}
	require.NoError(t, worker.db.Create(&row).Error)
}

func TestFireDue_DispatchesDuePendingRows(t *testing.T) {
	db := SetupSQLiteTestDB(t)

	var fired []models.TaskRequest
	worker := NewTaskTimerWorker(db, func(ctx context.Context, req models.TaskRequest) models.TaskResponse {
		fired = append(fired, req)
		return models.TaskResponse{StatusCode: http.StatusOK}
	})

	insertTimer(t, worker, "tmr_due", time.Now().Add(-time.Minute), `{"entityId":"ent_acme","role":"RE_AUTH_IND"}`)
	insertTimer(t, worker, "tmr_future", time.Now().Add(time.Hour), `{}`)

	worker.FireDue(context.Background())

	require.Len(t, fired, 1)
	assert.Equal(t, models.TaskCheckStaleVacancy, fired[0].Task)
	assert.Equal(t, "ent_acme", fired[0].Parameters["entityId"])

	var due, future models.ScheduledTask
	require.NoError(t, db.First(&due, "task_id = ?", "tmr_due").Error)
	assert.Equal(t, models.ScheduledTaskFired, due.Status)
	assert.NotNil(t, due.FiredAt)

	require.NoError(t, db.First(&future, "task_id = ?", "tmr_future").Error)
	assert.Equal(t, models.ScheduledTaskPending, future.Status)
	assert.Nil(t, future.FiredAt)
}

func TestFireDue_ServerErrorLeavesRowForRetry(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	worker := NewTaskTimerWorker(db, func(ctx context.Context, req models.TaskRequest) models.TaskResponse {
		return models.TaskResponse{StatusCode: http.StatusInternalServerError, Message: "datastore down"}
	})
	insertTimer(t, worker, "tmr_retry", time.Now().Add(-time.Minute), `{}`)

	worker.FireDue(context.Background())

	var row models.ScheduledTask
	require.NoError(t, db.First(&row, "task_id = ?", "tmr_retry").Error)
	assert.Equal(t, models.ScheduledTaskPending, row.Status)
	assert.Equal(t, "datastore down", row.LastError)
}

func TestFireDue_ClientErrorDoesNotRetry(t *testing.T) {
	// A 4xx from the dispatcher is a decided outcome; replaying the timer
	// cannot change it.
	db := SetupSQLiteTestDB(t)
	calls := 0
	worker := NewTaskTimerWorker(db, func(ctx context.Context, req models.TaskRequest) models.TaskResponse {
		calls++
		return models.TaskResponse{StatusCode: http.StatusBadRequest, Message: "unknown entity"}
	})
	insertTimer(t, worker, "tmr_decided", time.Now().Add(-time.Minute), `{}`)

	worker.FireDue(context.Background())
	worker.FireDue(context.Background())

	assert.Equal(t, 1, calls)
	var row models.ScheduledTask
	require.NoError(t, db.First(&row, "task_id = ?", "tmr_decided").Error)
	assert.Equal(t, models.ScheduledTaskFired, row.Status)
}

func TestFireDue_InvalidPayloadFailsRow(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	worker := NewTaskTimerWorker(db, func(ctx context.Context, req models.TaskRequest) models.TaskResponse {
		t.Fatal("dispatch must not run with an undecodable payload")
		return models.TaskResponse{}
	})
	insertTimer(t, worker, "tmr_bad", time.Now().Add(-time.Minute), `{not json`)

	worker.FireDue(context.Background())

	var row models.ScheduledTask
	require.NoError(t, db.First(&row, "task_id = ?", "tmr_bad").Error)
	assert.Equal(t, models.ScheduledTaskFailed, row.Status)
	assert.Contains(t, row.LastError, "invalid payload")
}
