package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portfolio_translation_go_backend/internal/models"

	"github.com/rs/zerolog/log"
)

const workerClientID = "worker"

var errJobAborted = errors.New("job is no longer processing")

type WorkerConfig struct {
	PollInterval time.Duration
	// BatchSize is the number of items sent per translate_batch chunk.
	BatchSize int
}

// RecordTranslator runs field mapper work for table and record jobs.
type RecordTranslator interface {
	BulkTranslateTable(ctx context.Context, table, sourceLanguage string, opts BulkOptions) (*BulkResult, error)
	SyncRecordTranslations(ctx context.Context, table, recordID, sourceLanguage string, force bool) (*RecordTranslation, error)
}

type JobWorker struct {
	queue      *JobQueueService
	translator BatchTranslator
	records    RecordTranslator
	cfg        WorkerConfig
	sleep      sleepFunc
}

func NewJobWorker(queue *JobQueueService, translator BatchTranslator, records RecordTranslator, cfg WorkerConfig) *JobWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultMapperBatchSize
	}
	return &JobWorker{queue: queue, translator: translator, records: records, cfg: cfg, sleep: sleepContext}
}

// Run polls the queue until ctx is cancelled, draining all due jobs each cycle.
func (w *JobWorker) Run(ctx context.Context) {
	log.Info().Str("node", w.queue.NodeID()).Dur("poll_interval", w.cfg.PollInterval).Msg("Translation worker started")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		for {
			processed, err := w.ProcessNext(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Translation worker cycle failed")
				break
			}
			if !processed || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Translation worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext resets stuck jobs, then claims and runs one job. It reports
// whether a job was claimed.
func (w *JobWorker) ProcessNext(ctx context.Context) (bool, error) {
	if _, err := w.queue.ResetStuckJobs(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to reset stuck jobs")
	}
	job, err := w.queue.GetNextJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

func (w *JobWorker) process(ctx context.Context, job *models.TranslationJob) {
	logger := log.With().Str("job_id", job.ID).Str("job_type", string(job.JobType)).Logger()
	logger.Info().Int("retry_count", job.RetryCount).Msg("Processing translation job")
	started := time.Now()

	var payload JobPayload
	if err := json.Unmarshal(job.InputData, &payload); err != nil {
		w.fail(ctx, job, fmt.Errorf("invalid job payload: %w", err), false)
		return
	}

	var (
		results interface{}
		err     error
	)
	switch job.JobType {
	case models.JobTypeTranslateBatch:
		results, err = w.runBatch(ctx, job, payload)
	case models.JobTypeTranslateTable:
		results, err = w.runTable(ctx, job, payload)
	case models.JobTypeSyncRecord:
		results, err = w.runRecord(ctx, job, payload)
	default:
		err = newValidationError("job_type", "unsupported job type %q", job.JobType)
	}

	if errors.Is(err, errJobAborted) {
		logger.Info().Msg("Translation job stopped after state change")
		return
	}
	if ctx.Err() != nil {
		// Left in processing; ResetStuckJobs hands it to another worker.
		logger.Warn().Err(ctx.Err()).Msg("Translation job interrupted by shutdown")
		return
	}
	if err != nil {
		var verr *ValidationError
		retry := !errors.As(err, &verr) && !errors.Is(err, ErrUnknownTable)
		w.fail(ctx, job, err, retry)
		return
	}

	metadata := map[string]interface{}{
		"processing_node":    w.queue.NodeID(),
		"processing_time_ms": time.Since(started).Milliseconds(),
	}
	if err := w.queue.CompleteJob(ctx, job.ID, results, metadata); err != nil {
		if errors.Is(err, ErrInvalidJobTransition) {
			logger.Info().Msg("Translation job finished after it was cancelled")
			return
		}
		logger.Error().Err(err).Msg("Failed to complete translation job")
		return
	}
	logger.Info().Dur("elapsed", time.Since(started)).Msg("Translation job completed")
}

func (w *JobWorker) fail(ctx context.Context, job *models.TranslationJob, cause error, retry bool) {
	if err := w.queue.FailJob(ctx, job.ID, cause.Error(), retry); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
	}
}

func (w *JobWorker) runBatch(ctx context.Context, job *models.TranslationJob, payload JobPayload) ([]TranslationResult, error) {
	if len(payload.Items) == 0 {
		return nil, newValidationError("items", "job has no items")
	}
	opts := TranslateOptions{Provider: job.PreferredProvider, ClientID: workerClientID}
	results := make([]TranslationResult, 0, len(payload.Items))
	for start := 0; start < len(payload.Items); start += w.cfg.BatchSize {
		if start > 0 {
			if err := w.stillProcessing(ctx, job.ID); err != nil {
				return nil, err
			}
		}
		end := start + w.cfg.BatchSize
		if end > len(payload.Items) {
			end = len(payload.Items)
		}
		chunk, err := translateWithBackoff(ctx, w.translator, payload.Items[start:end], opts, w.sleep)
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)

		progress := end * 100 / len(payload.Items)
		if end < len(payload.Items) {
			if err := w.queue.UpdateJobProgress(ctx, job.ID, progress, map[string]interface{}{"translated_items": end}); err != nil {
				if errors.Is(err, ErrInvalidJobTransition) {
					return nil, errJobAborted
				}
				log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to update job progress")
			}
		}
	}
	return results, nil
}

func (w *JobWorker) runTable(ctx context.Context, job *models.TranslationJob, payload JobPayload) (*BulkResult, error) {
	if w.records == nil {
		return nil, newValidationError("job_type", "table translation is not configured")
	}
	lastProgress := 0
	return w.records.BulkTranslateTable(ctx, payload.TableName, job.SourceLanguage, BulkOptions{
		Limit:  payload.Limit,
		Offset: payload.Offset,
		Force:  payload.Force,
		Progress: func(done, total int) {
			progress := done * 100 / total
			if progress == lastProgress || done == total {
				return
			}
			lastProgress = progress
			if err := w.queue.UpdateJobProgress(ctx, job.ID, progress, nil); err != nil {
				log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to update job progress")
			}
		},
	})
}

func (w *JobWorker) runRecord(ctx context.Context, job *models.TranslationJob, payload JobPayload) (*RecordTranslation, error) {
	if w.records == nil {
		return nil, newValidationError("job_type", "record translation is not configured")
	}
	return w.records.SyncRecordTranslations(ctx, payload.TableName, payload.RecordID, job.SourceLanguage, payload.Force)
}

// stillProcessing is the cooperative cancellation point between chunks.
func (w *JobWorker) stillProcessing(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := w.queue.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusProcessing {
		return errJobAborted
	}
	return nil
}
