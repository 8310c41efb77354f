// Package jobstore is a thin, typed wrapper around the GenerationJob
// persistence layer, giving the scheduler and runners a narrow interface
// instead of a full *database.DB.
package jobstore

import (
	"time"

	"avatarbackend/internal/database"
	"avatarbackend/internal/models"
)

// Store is the persistence contract a JobScheduler and the job runners depend on.
type Store struct {
	db *database.DB
}

// New constructs a Store.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job in queued status.
func (s *Store) Create(job *models.GenerationJob) (*models.GenerationJob, error) {
	return s.db.CreateJob(job)
}

// Get retrieves a job by ID.
func (s *Store) Get(id string) (*models.GenerationJob, error) {
	return s.db.GetJobByID(id)
}

// GetByUpstreamTaskID retrieves the job a video-svc callback refers to.
func (s *Store) GetByUpstreamTaskID(upstreamTaskID string) (*models.GenerationJob, error) {
	return s.db.GetJobByUpstreamTaskID(upstreamTaskID)
}

// MarkProcessing records that a runner has picked up a job.
func (s *Store) MarkProcessing(jobID, upstreamTaskID string) error {
	return s.db.MarkProcessing(jobID, upstreamTaskID)
}

// SetAudioURL records the synthesized-audio URL a VideoJobRunner produced
// for a script-driven job before enqueuing the video render.
func (s *Store) SetAudioURL(jobID, audioURL string) error {
	return s.db.SetAudioURL(jobID, audioURL)
}

// UpdateProgress records a runner's percent-complete estimate.
func (s *Store) UpdateProgress(jobID string, progress int) error {
	return s.db.UpdateProgress(jobID, progress)
}

// MarkCompleted records a job's final artifact location.
func (s *Store) MarkCompleted(jobID, resultURL string) error {
	return s.db.MarkCompleted(jobID, resultURL)
}

// MarkFailed records why a job did not complete.
func (s *Store) MarkFailed(jobID, errMsg string) error {
	return s.db.MarkFailed(jobID, errMsg)
}

// MarkTimedOut records that a job's poll loop exceeded its deadline.
func (s *Store) MarkTimedOut(jobID string) error {
	return s.db.MarkTimedOut(jobID)
}

// ListStale returns jobs stuck in "processing" longer than threshold.
func (s *Store) ListStale(threshold time.Duration) ([]models.GenerationJob, error) {
	return s.db.ListStaleProcessingJobs(threshold)
}

// CheckOwnership reports whether ownerID owns jobID.
func (s *Store) CheckOwnership(jobID string, ownerID int) (bool, error) {
	return s.db.CheckJobOwnership(jobID, ownerID)
}
