package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is an execution record of a scheduled task.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;size:32"`
	Task        string         `gorm:"column:task;index;size:100;not null"`
	Status      JobStatus      `gorm:"column:status;size:20;default:'pending'"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}

type DailyReportPayload struct {
	JobID string `json:"job_id"`
	Day   string `json:"day"`
}

const dayLayout = "2006-01-02"
