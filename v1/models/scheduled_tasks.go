package models

import "time"

// ScheduledTask is a one-shot delayed callback persisted to the database so
// that armed timers survive process restarts. A worker claims due rows and
// re-enters the task dispatcher with the stored payload.
type ScheduledTask struct {
	TaskID string `gorm:"primarykey;column:task_id" json:"taskId"`
	// Task is the dispatcher task name to invoke when the timer fires
	Task string `gorm:"column:task;not null" json:"task"`
	// Payload is the JSON-encoded parameter bag for the target task
	Payload     string              `gorm:"column:payload;type:text" json:"payload"`
	Name        string              `gorm:"column:name;not null" json:"name"`
	Description string              `gorm:"column:description" json:"description"`
	DueAt       time.Time           `gorm:"column:due_at;not null;index" json:"dueAt"`
	Status      ScheduledTaskStatus `gorm:"column:status;not null;default:pending;index" json:"status"`
	FiredAt     *time.Time          `gorm:"column:fired_at" json:"firedAt,omitempty"`
	LastError   string              `gorm:"column:last_error" json:"lastError,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (ScheduledTask) TableName() string {
	return "scheduled_tasks"
}
