package models

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type JobType string

const (
	JobTypeTranslateBatch JobType = "translate_batch"
	JobTypeTranslateTable JobType = "translate_table"
	JobTypeSyncRecord     JobType = "sync_record"
)

type TranslationJob struct {
	ID                    string    `gorm:"primaryKey;size:36"`
	JobType               JobType   `gorm:"size:32;not null"`
	Status                JobStatus `gorm:"size:16;not null;index:idx_jobs_dequeue,priority:1"`
	Priority              int       `gorm:"not null;default:5;index:idx_jobs_dequeue,priority:2"`
	SourceLanguage        string    `gorm:"size:10"`
	TargetLanguage        string    `gorm:"size:10"`
	PreferredProvider     string    `gorm:"size:32"`
	InputData             datatypes.JSON
	OutputData            datatypes.JSON
	Metadata              datatypes.JSONMap
	Progress              int `gorm:"default:0"`
	RetryCount            int `gorm:"default:0"`
	MaxRetries            int
	EstimatedProcessingMs int64
	ErrorMessage          string    `gorm:"type:text"`
	ProcessingNode        string    `gorm:"size:128"`
	ScheduledAt           time.Time `gorm:"index"`
	CreatedAt             time.Time `gorm:"index:idx_jobs_dequeue,priority:3"`
	UpdatedAt             time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time
	FailedAt              *time.Time
	CancelledAt           *time.Time
}

func (TranslationJob) TableName() string {
	return "translation_jobs"
}
