package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

const (
	DefaultJobPriority      = 5
	dequeueCandidates       = 5
	estimateBaseMs          = 1000
	estimatePerItemMs       = 200
	estimatePerCharMs       = 2
	smallJobItems           = 10
	defaultTableJobEstimate = 100
)

type QueueConfig struct {
	MaxRetries        int
	ProcessingTimeout time.Duration
	NodeID            string
}

// JobRequest describes work to enqueue. Which fields matter depends on JobType.
type JobRequest struct {
	JobType           models.JobType         `json:"job_type"`
	Priority          int                    `json:"priority"`
	SourceLanguage    string                 `json:"source_language"`
	TargetLanguage    string                 `json:"target_language"`
	PreferredProvider string                 `json:"preferred_provider"`
	Items             []providers.Item       `json:"items"`
	TableName         string                 `json:"table_name"`
	RecordID          string                 `json:"record_id"`
	Limit             int                    `json:"limit"`
	Offset            int                    `json:"offset"`
	Force             bool                   `json:"force"`
	Metadata          map[string]interface{} `json:"metadata"`
	ScheduledAt       *time.Time             `json:"scheduled_at"`
}

// JobPayload is what a job stores as its input.
type JobPayload struct {
	Items     []providers.Item `json:"items,omitempty"`
	TableName string           `json:"table_name,omitempty"`
	RecordID  string           `json:"record_id,omitempty"`
	Limit     int              `json:"limit,omitempty"`
	Offset    int              `json:"offset,omitempty"`
	Force     bool             `json:"force,omitempty"`
}

type QueuedJob struct {
	JobID                 string           `json:"job_id"`
	Status                models.JobStatus `json:"status"`
	Priority              int              `json:"priority"`
	EstimatedProcessingMs int64            `json:"estimated_processing_ms"`
}

type JobView struct {
	JobID                 string                 `json:"job_id"`
	JobType               models.JobType         `json:"job_type"`
	Status                models.JobStatus       `json:"status"`
	Priority              int                    `json:"priority"`
	Progress              int                    `json:"progress"`
	RetryCount            int                    `json:"retry_count"`
	MaxRetries            int                    `json:"max_retries"`
	SourceLanguage        string                 `json:"source_language,omitempty"`
	TargetLanguage        string                 `json:"target_language,omitempty"`
	EstimatedProcessingMs int64                  `json:"estimated_processing_ms"`
	ErrorMessage          string                 `json:"error_message,omitempty"`
	Results               json.RawMessage        `json:"results,omitempty"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
	ScheduledAt           time.Time              `json:"scheduled_at"`
	CreatedAt             time.Time              `json:"created_at"`
	StartedAt             *time.Time             `json:"started_at,omitempty"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty"`
	FailedAt              *time.Time             `json:"failed_at,omitempty"`
	CancelledAt           *time.Time             `json:"cancelled_at,omitempty"`
}

func NewJobView(job *models.TranslationJob) *JobView {
	view := &JobView{
		JobID:                 job.ID,
		JobType:               job.JobType,
		Status:                job.Status,
		Priority:              job.Priority,
		Progress:              job.Progress,
		RetryCount:            job.RetryCount,
		MaxRetries:            job.MaxRetries,
		SourceLanguage:        job.SourceLanguage,
		TargetLanguage:        job.TargetLanguage,
		EstimatedProcessingMs: job.EstimatedProcessingMs,
		ErrorMessage:          job.ErrorMessage,
		Metadata:              job.Metadata,
		ScheduledAt:           job.ScheduledAt,
		CreatedAt:             job.CreatedAt,
		StartedAt:             job.StartedAt,
		CompletedAt:           job.CompletedAt,
		FailedAt:              job.FailedAt,
		CancelledAt:           job.CancelledAt,
	}
	if len(job.OutputData) > 0 {
		view.Results = json.RawMessage(job.OutputData)
	}
	return view
}

type QueueStats struct {
	Pending         int64      `json:"pending"`
	Processing      int64      `json:"processing"`
	Completed       int64      `json:"completed"`
	Failed          int64      `json:"failed"`
	Cancelled       int64      `json:"cancelled"`
	Total           int64      `json:"total"`
	OldestPendingAt *time.Time `json:"oldest_pending_at,omitempty"`
}

// JobEvent is published on JobTopic(id) whenever a job changes.
type JobEvent struct {
	JobID     string           `json:"job_id"`
	Status    models.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type EventPublisher interface {
	Publish(topic string, msg interface{})
}

func JobTopic(jobID string) string {
	return "job:" + jobID
}

type JobQueueService struct {
	db        JobQueueServiceDB
	cfg       QueueConfig
	publisher EventPublisher
	metrics   MetricsRecorder
	now       func() time.Time
}

func NewJobQueueService(db JobQueueServiceDB, cfg QueueConfig) *JobQueueService {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	if cfg.NodeID == "" {
		cfg.NodeID = defaultNodeID()
	}
	return &JobQueueService{
		db:      db,
		cfg:     cfg,
		metrics: noopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func (s *JobQueueService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

func (s *JobQueueService) SetMetricsRecorder(m MetricsRecorder) {
	if m != nil {
		s.metrics = m
	}
}

func (s *JobQueueService) NodeID() string {
	return s.cfg.NodeID
}

func (s *JobQueueService) publish(job *models.TranslationJob, status models.JobStatus, progress int, message string) {
	s.metrics.ObserveJob(string(job.JobType), string(status))
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(JobTopic(job.ID), JobEvent{
		JobID:     job.ID,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Timestamp: s.now(),
	})
}

// AddJob validates and enqueues a job.
func (s *JobQueueService) AddJob(ctx context.Context, req JobRequest) (*QueuedJob, error) {
	payload, units, characters, err := buildPayload(&req)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = DefaultJobPriority
	}
	if priority < 1 || priority > 10 {
		return nil, newValidationError("priority", "must be between 1 and 10")
	}
	if units <= smallJobItems && priority < 10 {
		priority++
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}

	now := s.now()
	scheduled := now
	if req.ScheduledAt != nil && req.ScheduledAt.After(now) {
		scheduled = req.ScheduledAt.UTC()
	}
	job := &models.TranslationJob{
		ID:                    uuid.New().String(),
		JobType:               req.JobType,
		Status:                models.JobStatusPending,
		Priority:              priority,
		SourceLanguage:        req.SourceLanguage,
		TargetLanguage:        req.TargetLanguage,
		PreferredProvider:     req.PreferredProvider,
		InputData:             datatypes.JSON(input),
		Metadata:              datatypes.JSONMap(req.Metadata),
		MaxRetries:            s.cfg.MaxRetries,
		EstimatedProcessingMs: estimateProcessingMs(units, characters),
		ScheduledAt:           scheduled,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.db.CreateJobDB(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	s.metrics.ObserveJob(string(job.JobType), string(job.Status))
	log.Info().Str("job_id", job.ID).Str("job_type", string(job.JobType)).Int("priority", priority).
		Int("items", units).Msg("Translation job queued")

	return &QueuedJob{
		JobID:                 job.ID,
		Status:                job.Status,
		Priority:              job.Priority,
		EstimatedProcessingMs: job.EstimatedProcessingMs,
	}, nil
}

func buildPayload(req *JobRequest) (JobPayload, int, int, error) {
	switch req.JobType {
	case models.JobTypeTranslateBatch:
		if len(req.Items) == 0 {
			return JobPayload{}, 0, 0, newValidationError("items", "at least one item is required")
		}
		items := make([]providers.Item, len(req.Items))
		characters := 0
		for i, item := range req.Items {
			if item.Source == "" {
				item.Source = req.SourceLanguage
			}
			if item.Target == "" {
				item.Target = req.TargetLanguage
			}
			if strings.TrimSpace(item.Text) == "" {
				return JobPayload{}, 0, 0, newValidationError(fmt.Sprintf("items[%d].text", i), "text must not be empty")
			}
			if item.Target == "" {
				return JobPayload{}, 0, 0, newValidationError(fmt.Sprintf("items[%d].target", i), "target language is required")
			}
			characters += utf8.RuneCountInString(item.Text)
			items[i] = item
		}
		return JobPayload{Items: items}, len(items), characters, nil
	case models.JobTypeTranslateTable:
		if err := validateTableName(req.TableName); err != nil {
			return JobPayload{}, 0, 0, err
		}
		units := req.Limit
		if units <= 0 {
			units = defaultTableJobEstimate
		}
		return JobPayload{TableName: req.TableName, Limit: req.Limit, Offset: req.Offset, Force: req.Force}, units, 0, nil
	case models.JobTypeSyncRecord:
		if err := validateTableName(req.TableName); err != nil {
			return JobPayload{}, 0, 0, err
		}
		if req.RecordID == "" {
			return JobPayload{}, 0, 0, newValidationError("record_id", "is required")
		}
		return JobPayload{TableName: req.TableName, RecordID: req.RecordID, Force: req.Force}, 1, 0, nil
	default:
		return JobPayload{}, 0, 0, newValidationError("job_type", "unsupported job type %q", req.JobType)
	}
}

func estimateProcessingMs(items, characters int) int64 {
	return int64(estimateBaseMs + estimatePerItemMs*items + estimatePerCharMs*characters)
}

// GetNextJob claims the highest priority due job for this node, or returns nil
// when nothing is due. The claim is a conditional update so concurrent
// workers never receive the same job.
func (s *JobQueueService) GetNextJob(ctx context.Context) (*models.TranslationJob, error) {
	now := s.now()
	candidates, err := s.db.FindDequeueCandidatesDB(ctx, now, dequeueCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending jobs: %w", err)
	}
	for _, candidate := range candidates {
		claimed, err := s.db.UpdateJobIfStatusDB(ctx, candidate.ID, []models.JobStatus{models.JobStatusPending}, map[string]interface{}{
			"status":          models.JobStatusProcessing,
			"started_at":      now,
			"processing_node": s.cfg.NodeID,
			"updated_at":      now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", candidate.ID, err)
		}
		if !claimed {
			continue
		}
		job, err := s.db.GetJobDB(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		s.publish(job, job.Status, job.Progress, "started")
		return job, nil
	}
	return nil, nil
}

func (s *JobQueueService) GetJob(ctx context.Context, jobID string) (*models.TranslationJob, error) {
	return s.db.GetJobDB(ctx, jobID)
}

func (s *JobQueueService) GetJobStatus(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.db.GetJobDB(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return NewJobView(job), nil
}

func (s *JobQueueService) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*JobView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	jobs, err := s.db.ListJobsDB(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*JobView, len(jobs))
	for i := range jobs {
		views[i] = NewJobView(&jobs[i])
	}
	return views, nil
}

// UpdateJobProgress clamps progress to [0,100] and merges metadata. Status is unchanged.
func (s *JobQueueService) UpdateJobProgress(ctx context.Context, jobID string, progress int, metadata map[string]interface{}) error {
	job, err := s.db.GetJobDB(ctx, jobID)
	if err != nil {
		return err
	}
	progress = clampProgress(progress)
	updates := map[string]interface{}{
		"progress":   progress,
		"updated_at": s.now(),
	}
	if len(metadata) > 0 {
		updates["metadata"] = mergeMetadata(job.Metadata, metadata)
	}
	ok, err := s.db.UpdateJobIfStatusDB(ctx, jobID, []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}, updates)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if !ok {
		return ErrInvalidJobTransition
	}
	s.publish(job, job.Status, progress, "")
	return nil
}

// CompleteJob stores results and moves a processing job to completed.
func (s *JobQueueService) CompleteJob(ctx context.Context, jobID string, results interface{}, metadata map[string]interface{}) error {
	output, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode job results: %w", err)
	}
	now := s.now()
	updates := map[string]interface{}{
		"status":        models.JobStatusCompleted,
		"progress":      100,
		"output_data":   datatypes.JSON(output),
		"completed_at":  now,
		"error_message": "",
		"updated_at":    now,
	}
	if len(metadata) > 0 {
		job, err := s.db.GetJobDB(ctx, jobID)
		if err != nil {
			return err
		}
		updates["metadata"] = mergeMetadata(job.Metadata, metadata)
	}
	ok, err := s.db.UpdateJobIfStatusDB(ctx, jobID, []models.JobStatus{models.JobStatusProcessing}, updates)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	if !ok {
		return s.transitionError(ctx, jobID)
	}
	s.publish(&models.TranslationJob{ID: jobID, JobType: s.jobType(ctx, jobID)}, models.JobStatusCompleted, 100, "completed")
	return nil
}

// FailJob records a failure. With retry set and retries left the job goes back
// to pending after 2^retryCount minutes, otherwise it fails for good.
func (s *JobQueueService) FailJob(ctx context.Context, jobID string, cause string, retry bool) error {
	job, err := s.db.GetJobDB(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrInvalidJobTransition
	}

	now := s.now()
	retryCount := job.RetryCount + 1
	updates := map[string]interface{}{
		"retry_count":   retryCount,
		"error_message": cause,
		"updated_at":    now,
	}
	status := models.JobStatusFailed
	if retry && retryCount <= job.MaxRetries {
		status = models.JobStatusPending
		backoff := time.Duration(math.Pow(2, float64(retryCount))) * time.Minute
		updates["status"] = status
		updates["scheduled_at"] = now.Add(backoff)
		updates["started_at"] = nil
		updates["processing_node"] = ""
		updates["progress"] = 0
	} else {
		updates["status"] = status
		updates["failed_at"] = now
	}

	ok, err := s.db.UpdateJobIfStatusDB(ctx, jobID, []models.JobStatus{job.Status}, updates)
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	if !ok {
		return ErrInvalidJobTransition
	}
	log.Warn().Str("job_id", jobID).Int("retry_count", retryCount).Str("status", string(status)).Str("error", cause).
		Msg("Translation job failed")
	s.publish(job, status, job.Progress, cause)
	return nil
}

// CancelJob cancels a pending or processing job.
func (s *JobQueueService) CancelJob(ctx context.Context, jobID string) error {
	now := s.now()
	ok, err := s.db.UpdateJobIfStatusDB(ctx, jobID, []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}, map[string]interface{}{
		"status":       models.JobStatusCancelled,
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if !ok {
		return s.transitionError(ctx, jobID)
	}
	s.publish(&models.TranslationJob{ID: jobID, JobType: s.jobType(ctx, jobID)}, models.JobStatusCancelled, 0, "cancelled")
	return nil
}

// ResetStuckJobs returns jobs processing for longer than the timeout to
// pending. Retry counts are left alone.
func (s *JobQueueService) ResetStuckJobs(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.db.ResetStuckJobsDB(ctx, now.Add(-s.cfg.ProcessingTimeout), map[string]interface{}{
		"status":          models.JobStatusPending,
		"error_message":   fmt.Sprintf("reset after exceeding processing timeout of %s", s.cfg.ProcessingTimeout),
		"started_at":      nil,
		"processing_node": "",
		"scheduled_at":    now,
		"updated_at":      now,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	if n > 0 {
		log.Warn().Int64("jobs", n).Msg("Reset stuck translation jobs")
	}
	return n, nil
}

func (s *JobQueueService) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	counts, err := s.db.CountJobsByStatusDB(ctx)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{}
	for _, c := range counts {
		switch c.Status {
		case models.JobStatusPending:
			stats.Pending = c.Count
		case models.JobStatusProcessing:
			stats.Processing = c.Count
		case models.JobStatusCompleted:
			stats.Completed = c.Count
		case models.JobStatusFailed:
			stats.Failed = c.Count
		case models.JobStatusCancelled:
			stats.Cancelled = c.Count
		}
		stats.Total += c.Count
	}
	stats.OldestPendingAt, err = s.db.OldestPendingJobDB(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CleanOldJobs deletes terminal jobs last updated more than retentionDays ago.
func (s *JobQueueService) CleanOldJobs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, newValidationError("retention_days", "must be positive")
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	return s.db.DeleteJobsBeforeDB(ctx, cutoff, []models.JobStatus{
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusCancelled,
	})
}

// transitionError tells a missing job apart from one in the wrong state.
func (s *JobQueueService) transitionError(ctx context.Context, jobID string) error {
	if _, err := s.db.GetJobDB(ctx, jobID); err != nil {
		return err
	}
	return ErrInvalidJobTransition
}

func (s *JobQueueService) jobType(ctx context.Context, jobID string) models.JobType {
	job, err := s.db.GetJobDB(ctx, jobID)
	if err != nil {
		return ""
	}
	return job.JobType
}

func clampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

func mergeMetadata(existing datatypes.JSONMap, extra map[string]interface{}) datatypes.JSONMap {
	merged := make(datatypes.JSONMap, len(existing)+len(extra))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
