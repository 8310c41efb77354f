// Package jobs implements the AudioJobRunner and VideoJobRunner: the
// workers a JobScheduler task invokes to drive one GenerationJob from
// queued to a terminal status.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"avatarbackend/internal/apperr"
	"avatarbackend/internal/assembler"
	"avatarbackend/internal/chunker"
	"avatarbackend/internal/clients"
	"avatarbackend/internal/jobstore"
	"avatarbackend/internal/models"
	"avatarbackend/internal/storage"
	"avatarbackend/internal/usage"
)

// wordsPerMinute estimates spoken duration from script length when no
// exact audio duration is reported back by voice-svc.
const wordsPerMinute = 150.0

// AudioJobRunner drives a single "audio" GenerationJob: chunking its
// script, synthesizing each chunk through voice-svc, stitching the result,
// and uploading it to object storage.
type AudioJobRunner struct {
	store    *jobstore.Store
	voice    *clients.VoiceClient
	s3       *storage.S3Service
	usage    *usage.Accountant
	chunkMax int

	onceMu sync.Mutex
	once   map[string]*sync.Once
}

// NewAudioJobRunner constructs an AudioJobRunner.
func NewAudioJobRunner(store *jobstore.Store, voice *clients.VoiceClient, s3 *storage.S3Service, acct *usage.Accountant, chunkMax int) *AudioJobRunner {
	return &AudioJobRunner{store: store, voice: voice, s3: s3, usage: acct, chunkMax: chunkMax, once: make(map[string]*sync.Once)}
}

// Run synthesizes job's script and uploads the finished audio. A job-level
// failure is recorded on the job row and also returned, for the scheduler to
// log; it is a fact about that one job, not the worker pool.
func (r *AudioJobRunner) Run(ctx context.Context, job *models.GenerationJob) error {
	if job.ScriptText == nil || *job.ScriptText == "" {
		return r.fail(job.ID, apperr.New(apperr.KindValidationFailed, "audio job has no script text"))
	}

	if err := r.store.MarkProcessing(job.ID, ""); err != nil {
		return fmt.Errorf("failed to mark audio job %q processing: %w", job.ID, err)
	}

	chunks := chunker.Chunk(*job.ScriptText, r.chunkMax)
	if len(chunks) == 0 {
		return r.fail(job.ID, apperr.New(apperr.KindValidationFailed, "audio job script produced no chunks"))
	}

	var voiceCloneURL string
	if job.SourceAudioURL != nil {
		voiceCloneURL = *job.SourceAudioURL
	}

	clips := make([][]byte, 0, len(chunks))
	for i, chunk := range chunks {
		clip, err := r.voice.Synthesize(ctx, clients.SynthesizeRequest{
			Text:          chunk,
			VoiceCloneURL: voiceCloneURL,
			Language:      job.Language,
		})
		if err != nil {
			return r.fail(job.ID, apperr.Wrap(apperr.KindVoiceSynthFailed, "voice synthesis failed", err))
		}
		clips = append(clips, clip)

		progress := int(float64(i+1) / float64(len(chunks)) * 90)
		_ = r.store.UpdateProgress(job.ID, progress)
	}

	audio, err := assembler.Assemble(clips)
	if err != nil {
		return r.fail(job.ID, apperr.Wrap(apperr.KindAssembleFailed, "failed to assemble audio chunks", err))
	}

	key := storage.GeneratedAudioKey(job.OwnerID, job.ID, time.Now().UnixMilli())
	if err := r.s3.UploadFile(ctx, key, "audio/wav", audio); err != nil {
		return r.fail(job.ID, apperr.Wrap(apperr.KindStorageUploadFailed, "failed to upload generated audio", err))
	}

	if err := r.store.MarkCompleted(job.ID, key); err != nil {
		return fmt.Errorf("failed to mark audio job %q completed: %w", job.ID, err)
	}

	r.commitUsageOnce(job)
	return nil
}

// commitUsageOnce charges estimated audio minutes against the job's owner,
// guarded per job ID so a scheduler retry can never double-charge.
func (r *AudioJobRunner) commitUsageOnce(job *models.GenerationJob) {
	r.onceMu.Lock()
	once, ok := r.once[job.ID]
	if !ok {
		once = &sync.Once{}
		r.once[job.ID] = once
	}
	r.onceMu.Unlock()

	once.Do(func() {
		minutes := float64(len(*job.ScriptText)) / 5.0 / wordsPerMinute
		_ = r.usage.Commit(job.OwnerID, models.ResourceAudioMinutes, minutes)
	})
}

func (r *AudioJobRunner) fail(jobID string, cause error) error {
	_ = r.store.MarkFailed(jobID, cause.Error())
	return cause
}
