package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"avatarbackend/internal/apperr"
	"avatarbackend/internal/avatarcache"
	"avatarbackend/internal/clients"
	"avatarbackend/internal/config"
	"avatarbackend/internal/jobstore"
	"avatarbackend/internal/models"
	"avatarbackend/internal/storage"
	"avatarbackend/internal/usage"
)

// secondsPerVideoChar estimates rendered video duration from script length
// when video-svc does not report an exact duration.
const secondsPerVideoChar = 0.06

// tempAudioURLTTL bounds how long the presigned URL handed to video-svc for
// the synthesized scratch clip stays valid; video-svc is expected to fetch
// it well within its own enqueue/render window.
const tempAudioURLTTL = 15 * time.Minute

// VideoJobRunner drives a single "video" GenerationJob: loading the avatar,
// synthesizing audio for script input, submitting the render request to
// video-svc, then either polling for completion or leaving completion to a
// later WorkerCallback delivery, according to the deployment's configured
// completion mode.
type VideoJobRunner struct {
	store   *jobstore.Store
	avatars *avatarcache.Cache
	voice   *clients.VoiceClient
	video   *clients.VideoClient
	s3      *storage.S3Service
	usage   *usage.Accountant
	mode    config.VideoCompletionMode

	pollInterval time.Duration
	pollTimeout  time.Duration

	onceMu sync.Mutex
	once   map[string]*sync.Once
}

// NewVideoJobRunner constructs a VideoJobRunner.
func NewVideoJobRunner(store *jobstore.Store, avatars *avatarcache.Cache, voice *clients.VoiceClient, video *clients.VideoClient, s3 *storage.S3Service,
	acct *usage.Accountant, mode config.VideoCompletionMode, pollInterval, pollTimeout time.Duration) *VideoJobRunner {
	return &VideoJobRunner{
		store: store, avatars: avatars, voice: voice, video: video, s3: s3, usage: acct, mode: mode,
		pollInterval: pollInterval, pollTimeout: pollTimeout,
		once: make(map[string]*sync.Once),
	}
}

// Run loads job's avatar, produces an audio_url (synthesizing one for
// script input, reusing the supplied URL for pre-recorded input), submits
// the render to video-svc, and, in poll mode, blocks until it completes or
// times out. In callback mode it returns once the job has been marked
// processing; CompleteFromCallback finishes it later.
func (r *VideoJobRunner) Run(ctx context.Context, job *models.GenerationJob) error {
	avatar, err := r.avatars.Get(job.AvatarID)
	if err != nil {
		return r.fail(job.ID, apperr.Wrap(apperr.KindAvatarNotFound, "failed to load avatar for video job", err))
	}
	if avatar.ImageURL == nil || *avatar.ImageURL == "" {
		return r.fail(job.ID, apperr.New(apperr.KindAvatarIncomplete, "avatar is missing an image"))
	}

	if err := r.store.MarkProcessing(job.ID, ""); err != nil {
		return fmt.Errorf("failed to mark video job %q processing: %w", job.ID, err)
	}

	var tempKey string
	defer func() {
		if tempKey != "" {
			_ = r.s3.DeleteFiles(context.Background(), []string{tempKey})
		}
	}()

	audioURL, err := r.resolveAudioURL(ctx, job, avatar, &tempKey)
	if err != nil {
		return r.fail(job.ID, err)
	}

	taskID, err := r.video.Enqueue(ctx, *avatar.ImageURL, audioURL, job.Quality)
	if err != nil {
		return r.fail(job.ID, apperr.Wrap(apperr.KindVideoEnqueueFailed, "failed to enqueue video render", err))
	}
	if err := r.store.MarkProcessing(job.ID, taskID); err != nil {
		return fmt.Errorf("failed to record upstream task for video job %q: %w", job.ID, err)
	}
	_ = r.store.UpdateProgress(job.ID, 70)

	if r.mode == config.VideoCompletionCallback {
		return nil
	}

	return r.pollUntilDone(ctx, job, taskID)
}

// resolveAudioURL produces the audio_url video-svc's enqueue call needs.
// For script input it synthesizes the whole script in one REST call (no
// chunking — the clip never passes through a live WebSocket session), then
// uploads it to a temp key and returns a presigned URL for video-svc to
// fetch. The temp key is stored in *tempKeyOut, and Run removes it on every
// exit path: after polling finishes in poll mode, or once the enqueue call
// has returned in callback mode. For pre-recorded input the caller's own
// audio URL is passed straight through.
func (r *VideoJobRunner) resolveAudioURL(ctx context.Context, job *models.GenerationJob, avatar *models.Avatar, tempKeyOut *string) (string, error) {
	switch job.InputMode {
	case models.InputModePrerecorded:
		if job.SourceAudioURL == nil || *job.SourceAudioURL == "" {
			return "", apperr.New(apperr.KindValidationFailed, "pre-recorded video job is missing source audio")
		}
		return *job.SourceAudioURL, nil

	case models.InputModeScript:
		if avatar.VoiceSampleURL == nil || *avatar.VoiceSampleURL == "" {
			return "", apperr.New(apperr.KindAvatarIncomplete, "avatar is missing a voice sample")
		}
		if job.ScriptText == nil || *job.ScriptText == "" {
			return "", apperr.New(apperr.KindValidationFailed, "script video job has no script text")
		}

		clip, err := r.voice.Synthesize(ctx, clients.SynthesizeRequest{
			Text:          *job.ScriptText,
			VoiceCloneURL: *avatar.VoiceSampleURL,
			Language:      job.Language,
		})
		if err != nil {
			return "", apperr.Wrap(apperr.KindVoiceSynthFailed, "voice synthesis failed", err)
		}

		tempKey := storage.TempAudioKey(job.OwnerID, job.ID, time.Now().UnixMilli())
		if err := r.s3.UploadFile(ctx, tempKey, "audio/wav", clip); err != nil {
			return "", apperr.Wrap(apperr.KindStorageUploadFailed, "failed to upload synthesized audio", err)
		}
		*tempKeyOut = tempKey

		audioURL, err := r.s3.PresignedGetURL(tempKey, tempAudioURLTTL)
		if err != nil {
			return "", apperr.Wrap(apperr.KindStorageUploadFailed, "failed to presign synthesized audio", err)
		}
		if err := r.store.SetAudioURL(job.ID, audioURL); err != nil {
			return "", fmt.Errorf("failed to record audio url for video job %q: %w", job.ID, err)
		}
		_ = r.store.UpdateProgress(job.ID, 50)
		return audioURL, nil

	default:
		return "", apperr.New(apperr.KindValidationFailed, "unsupported input mode for video job")
	}
}

// pollUntilDone repeatedly checks video-svc for completion until the
// artifact is ready, video-svc reports failure, or pollTimeout elapses.
func (r *VideoJobRunner) pollUntilDone(ctx context.Context, job *models.GenerationJob, taskID string) error {
	deadline := time.Now().Add(r.pollTimeout)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				_ = r.store.MarkTimedOut(job.ID)
				return apperr.New(apperr.KindPollTimeout, fmt.Sprintf("video job %q did not complete within poll timeout", job.ID))
			}

			result, err := r.video.PollStatus(ctx, taskID)
			if err != nil {
				continue // transient poll failure; try again next tick.
			}
			if !result.Done {
				continue
			}
			if result.Error != "" {
				return r.fail(job.ID, apperr.New(apperr.KindUpstreamRejected, result.Error))
			}
			return r.finish(ctx, job, result.Video)
		}
	}
}

// CompleteFromCallback finishes a job video-svc reported completion for via
// WorkerCallback, used instead of pollUntilDone when running in callback mode.
// In poll mode it does nothing and returns nil, leaving completion to
// pollUntilDone.
func (r *VideoJobRunner) CompleteFromCallback(ctx context.Context, job *models.GenerationJob, video []byte, upstreamError string) error {
	if r.mode != config.VideoCompletionCallback {
		return nil
	}
	if upstreamError != "" {
		return r.fail(job.ID, apperr.New(apperr.KindUpstreamRejected, upstreamError))
	}
	return r.finish(ctx, job, video)
}

func (r *VideoJobRunner) finish(ctx context.Context, job *models.GenerationJob, video []byte) error {
	key := storage.GeneratedVideoKey(job.ID, job.Quality, time.Now().UnixMilli())
	if err := r.s3.UploadFile(ctx, key, "video/mp4", video); err != nil {
		return r.fail(job.ID, apperr.Wrap(apperr.KindStorageUploadFailed, "failed to upload generated video", err))
	}
	if err := r.store.MarkCompleted(job.ID, key); err != nil {
		return fmt.Errorf("failed to mark video job %q completed: %w", job.ID, err)
	}
	r.commitUsageOnce(job)
	return nil
}

func (r *VideoJobRunner) commitUsageOnce(job *models.GenerationJob) {
	r.onceMu.Lock()
	once, ok := r.once[job.ID]
	if !ok {
		once = &sync.Once{}
		r.once[job.ID] = once
	}
	r.onceMu.Unlock()

	once.Do(func() {
		var chars int
		if job.ScriptText != nil {
			chars = len(*job.ScriptText)
		}
		minutes := float64(chars) * secondsPerVideoChar / 60.0
		if minutes < 0.5 {
			minutes = 0.5
		}
		_ = r.usage.Commit(job.OwnerID, models.ResourceVideoMinutes, minutes)
	})
}

func (r *VideoJobRunner) fail(jobID string, cause error) error {
	_ = r.store.MarkFailed(jobID, cause.Error())
	return cause
}
