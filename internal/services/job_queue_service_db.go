package services

import (
	"context"
	"errors"
	"time"

	"portfolio_translation_go_backend/internal/models"

	"gorm.io/gorm"
)

type StatusCount struct {
	Status models.JobStatus
	Count  int64
}

type JobQueueServiceDB interface {
	CreateJobDB(ctx context.Context, job *models.TranslationJob) error
	GetJobDB(ctx context.Context, jobID string) (*models.TranslationJob, error)
	ListJobsDB(ctx context.Context, status models.JobStatus, limit int) ([]models.TranslationJob, error)
	FindDequeueCandidatesDB(ctx context.Context, now time.Time, limit int) ([]models.TranslationJob, error)
	// UpdateJobIfStatusDB applies updates only while the job is in one of the
	// given states and reports whether a row changed.
	UpdateJobIfStatusDB(ctx context.Context, jobID string, from []models.JobStatus, updates map[string]interface{}) (bool, error)
	ResetStuckJobsDB(ctx context.Context, startedBefore time.Time, updates map[string]interface{}) (int64, error)
	CountJobsByStatusDB(ctx context.Context) ([]StatusCount, error)
	OldestPendingJobDB(ctx context.Context) (*time.Time, error)
	DeleteJobsBeforeDB(ctx context.Context, cutoff time.Time, statuses []models.JobStatus) (int64, error)
}

type DefaultJobQueueService struct {
	db *gorm.DB
}

func NewJobQueueServiceDB(db *gorm.DB) JobQueueServiceDB {
	return &DefaultJobQueueService{db: db}
}

func (s *DefaultJobQueueService) CreateJobDB(ctx context.Context, job *models.TranslationJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *DefaultJobQueueService) GetJobDB(ctx context.Context, jobID string) (*models.TranslationJob, error) {
	var job models.TranslationJob
	err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *DefaultJobQueueService) ListJobsDB(ctx context.Context, status models.JobStatus, limit int) ([]models.TranslationJob, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []models.TranslationJob
	err := q.Find(&jobs).Error
	return jobs, err
}

func (s *DefaultJobQueueService) FindDequeueCandidatesDB(ctx context.Context, now time.Time, limit int) ([]models.TranslationJob, error) {
	var jobs []models.TranslationJob
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.JobStatusPending, now).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (s *DefaultJobQueueService) UpdateJobIfStatusDB(ctx context.Context, jobID string, from []models.JobStatus, updates map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.TranslationJob{}).
		Where("id = ? AND status IN ?", jobID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *DefaultJobQueueService) ResetStuckJobsDB(ctx context.Context, startedBefore time.Time, updates map[string]interface{}) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.TranslationJob{}).
		Where("status = ? AND started_at < ?", models.JobStatusProcessing, startedBefore).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (s *DefaultJobQueueService) CountJobsByStatusDB(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := s.db.WithContext(ctx).Model(&models.TranslationJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error
	return counts, err
}

func (s *DefaultJobQueueService) OldestPendingJobDB(ctx context.Context) (*time.Time, error) {
	var job models.TranslationJob
	err := s.db.WithContext(ctx).
		Where("status = ?", models.JobStatusPending).
		Order("created_at ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job.CreatedAt, nil
}

func (s *DefaultJobQueueService) DeleteJobsBeforeDB(ctx context.Context, cutoff time.Time, statuses []models.JobStatus) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, cutoff).
		Delete(&models.TranslationJob{})
	return res.RowsAffected, res.Error
}
