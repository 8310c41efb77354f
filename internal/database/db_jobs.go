// This file contains database methods for GenerationJob CRUD and the
// status transitions a JobRunner drives a job through.

package database

import (
	"fmt"
	"time"

	"avatarbackend/internal/models"
)

// CreateJob inserts a new GenerationJob in "queued" status and returns the
// fully populated row (including its generated ID and created_at).
func (db *DB) CreateJob(job *models.GenerationJob) (*models.GenerationJob, error) {
	query := `
        INSERT INTO generation_jobs
            (owner_id, avatar_id, kind, input_mode, script_text, source_audio_url, quality, language, status, progress)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
        RETURNING id, owner_id, avatar_id, kind, input_mode, script_text, source_audio_url, audio_url,
                  quality, language, upstream_task_id, result_url, status, progress, error_message,
                  created_at, completed_at`
	var created models.GenerationJob
	err := db.Get(&created, query,
		job.OwnerID, job.AvatarID, job.Kind, job.InputMode, job.ScriptText, job.SourceAudioURL,
		job.Quality, job.Language, models.JobStatusQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation job: %w", err)
	}
	return &created, nil
}

// GetJobByID retrieves a job by ID.
func (db *DB) GetJobByID(id string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	query := `
        SELECT id, owner_id, avatar_id, kind, input_mode, script_text, source_audio_url, audio_url,
               quality, language, upstream_task_id, result_url, status, progress, error_message,
               created_at, completed_at
        FROM generation_jobs WHERE id = $1`
	if err := db.Get(&job, query, id); err != nil {
		return nil, fmt.Errorf("failed to get job %q: %w", id, err)
	}
	return &job, nil
}

// CheckJobOwnership reports whether the given user owns the given job.
func (db *DB) CheckJobOwnership(jobID string, ownerID int) (bool, error) {
	var owns bool
	query := `SELECT EXISTS(SELECT 1 FROM generation_jobs WHERE id = $1 AND owner_id = $2)`
	if err := db.Get(&owns, query, jobID, ownerID); err != nil {
		return false, fmt.Errorf("failed to check job ownership: %w", err)
	}
	return owns, nil
}

// MarkProcessing transitions a queued job into processing, or updates a job
// already in processing, and records the upstream task identifier the runner
// received back from video-svc (empty until one is known).
func (db *DB) MarkProcessing(jobID, upstreamTaskID string) error {
	query := `UPDATE generation_jobs SET status = $1, upstream_task_id = $2 WHERE id = $3 AND status IN ($4, $1)`
	res, err := db.Exec(query, models.JobStatusProcessing, upstreamTaskID, jobID, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to mark job %q processing: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %q was not in queued or processing status", jobID)
	}
	return nil
}

// SetAudioURL records the synthesized-audio URL a VideoJobRunner produced
// for a script-driven job, ahead of enqueuing the video render itself.
func (db *DB) SetAudioURL(jobID, audioURL string) error {
	_, err := db.Exec(`UPDATE generation_jobs SET audio_url = $1 WHERE id = $2 AND status = $3`,
		audioURL, jobID, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to set audio url for job %q: %w", jobID, err)
	}
	return nil
}

// UpdateProgress records a runner's progress percentage for a job still in flight.
func (db *DB) UpdateProgress(jobID string, progress int) error {
	_, err := db.Exec(`UPDATE generation_jobs SET progress = $1 WHERE id = $2 AND status = $3`,
		progress, jobID, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update progress for job %q: %w", jobID, err)
	}
	return nil
}

// MarkCompleted transitions a job to completed with its final artifact URL.
// Guarded against a job that's already terminal: a late poll or callback
// racing a prior completion/failure must never flip the row back open.
func (db *DB) MarkCompleted(jobID, resultURL string) error {
	now := time.Now().UTC()
	query := `
        UPDATE generation_jobs
        SET status = $1, progress = 100, result_url = $2, completed_at = $3
        WHERE id = $4 AND status NOT IN ($5, $6, $7)`
	res, err := db.Exec(query, models.JobStatusCompleted, resultURL, now, jobID,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusTimedOut)
	if err != nil {
		return fmt.Errorf("failed to mark job %q completed: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %q is already in a terminal state", jobID)
	}
	return nil
}

// MarkFailed transitions a job to failed, recording the error that caused
// it. Guarded the same way as MarkCompleted: exiting a terminal state fails
// loudly instead of silently re-writing it.
func (db *DB) MarkFailed(jobID, errMsg string) error {
	now := time.Now().UTC()
	query := `UPDATE generation_jobs SET status = $1, error_message = $2, completed_at = $3
        WHERE id = $4 AND status NOT IN ($5, $6, $7)`
	res, err := db.Exec(query, models.JobStatusFailed, errMsg, now, jobID,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusTimedOut)
	if err != nil {
		return fmt.Errorf("failed to mark job %q failed: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %q is already in a terminal state", jobID)
	}
	return nil
}

// MarkTimedOut transitions a job to timed-out, used when a VideoJobRunner's
// poll loop exceeds its deadline without seeing a terminal status.
func (db *DB) MarkTimedOut(jobID string) error {
	now := time.Now().UTC()
	query := `UPDATE generation_jobs SET status = $1, completed_at = $2 WHERE id = $3`
	_, err := db.Exec(query, models.JobStatusTimedOut, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %q timed out: %w", jobID, err)
	}
	return nil
}

// ListStaleProcessingJobs returns jobs stuck in "processing" for longer than
// threshold, for the reaper to mark timed out.
func (db *DB) ListStaleProcessingJobs(threshold time.Duration) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	query := `
        SELECT id, owner_id, avatar_id, kind, input_mode, script_text, source_audio_url, audio_url,
               quality, language, upstream_task_id, result_url, status, progress, error_message,
               created_at, completed_at
        FROM generation_jobs
        WHERE status = $1 AND created_at < $2`
	cutoff := time.Now().UTC().Add(-threshold)
	if err := db.Select(&jobs, query, models.JobStatusProcessing, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale processing jobs: %w", err)
	}
	return jobs, nil
}

// GetJobByUpstreamTaskID looks up the job associated with an upstream task
// ID, used by WorkerCallback to map a video-svc push back to its job row.
func (db *DB) GetJobByUpstreamTaskID(upstreamTaskID string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	query := `
        SELECT id, owner_id, avatar_id, kind, input_mode, script_text, source_audio_url, audio_url,
               quality, language, upstream_task_id, result_url, status, progress, error_message,
               created_at, completed_at
        FROM generation_jobs WHERE upstream_task_id = $1`
	if err := db.Get(&job, query, upstreamTaskID); err != nil {
		return nil, fmt.Errorf("failed to get job by upstream task %q: %w", upstreamTaskID, err)
	}
	return &job, nil
}
