package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"avatarbackend/internal/apperr"
	"avatarbackend/internal/avatarcache"
	"avatarbackend/internal/config"
	"avatarbackend/internal/database"
	"avatarbackend/internal/jobs"
	"avatarbackend/internal/jobstore"
	"avatarbackend/internal/models"
	"avatarbackend/internal/scheduler"
	"avatarbackend/internal/usage"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// GenerationHandler handles the audio and video generation endpoints:
// accepting a request, enqueuing a GenerationJob, and reporting its status.
type GenerationHandler struct {
	store     *jobstore.Store
	db        *database.DB
	avatars   *avatarcache.Cache
	scheduler *scheduler.Scheduler
	usage     *usage.Accountant
	audio     *jobs.AudioJobRunner
	video     *jobs.VideoJobRunner
	cfg       *config.AppConfig
	validate  *validator.Validate
}

// NewGenerationHandler constructs a GenerationHandler.
func NewGenerationHandler(store *jobstore.Store, db *database.DB, avatars *avatarcache.Cache, sched *scheduler.Scheduler, acct *usage.Accountant,
	audio *jobs.AudioJobRunner, video *jobs.VideoJobRunner, cfg *config.AppConfig) *GenerationHandler {
	return &GenerationHandler{store: store, db: db, avatars: avatars, scheduler: sched, usage: acct, audio: audio, video: video, cfg: cfg, validate: validator.New()}
}

// RegisterRoutes mounts the generation endpoints under r. r is expected to
// already be wrapped with authentication middleware.
func (h *GenerationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/audio-generation/generate", h.GenerateAudio)
	r.Get("/api/audio-generation/status/{jobId}", h.GetStatus)
	r.Post("/api/video-generation/generate", h.GenerateVideo)
	r.Get("/api/video-generation/status/{jobId}", h.GetStatus)
}

// GenerateAudio accepts a script and avatar, checks quota, and enqueues an
// audio GenerationJob.
func (h *GenerationHandler) GenerateAudio(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserContextKey).(*models.User)

	var req models.GenerateAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	avatar, err := h.avatars.Get(req.VoiceID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "avatar not found")
		return
	}

	estimateMinutes := float64(len(req.Text)) / 5.0 / 150.0
	if err := h.usage.CheckQuota(user.ID, models.ResourceAudioMinutes, estimateMinutes); err != nil {
		h.respondQuota(w, err)
		return
	}

	language := req.Language
	if language == "" {
		language = avatar.Language
	}

	job, err := h.db.CreateJob(&models.GenerationJob{
		ID:         uuid.NewString(),
		OwnerID:    user.ID,
		AvatarID:   avatar.ID,
		Kind:       models.JobKindAudio,
		InputMode:  models.InputModeScript,
		ScriptText: &req.Text,
		Quality:    models.QualityStandard,
		Language:   language,
	})
	if err != nil {
		log.Printf("[generation] failed to create audio job: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to create generation job")
		return
	}

	if err := h.enqueueAudio(job); err != nil {
		h.respondQuota(w, err)
		return
	}

	RespondWithJSON(w, http.StatusAccepted, toStatusResponse(job))
}

// GenerateVideo accepts either a script or a pre-recorded audio URL, checks
// quota, and enqueues a video GenerationJob.
func (h *GenerationHandler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserContextKey).(*models.User)

	var req models.GenerateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	avatar, err := h.avatars.Get(req.AvatarID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "avatar not found")
		return
	}

	job := &models.GenerationJob{
		ID:       uuid.NewString(),
		OwnerID:  user.ID,
		AvatarID: avatar.ID,
		Kind:     models.JobKindVideo,
		Quality:  req.Quality,
		Language: avatar.Language,
	}

	var estimateMinutes float64
	switch req.InputType {
	case "script":
		if req.Text == "" {
			RespondWithError(w, http.StatusBadRequest, "text is required when inputType is 'script'")
			return
		}
		if len(req.Text) > h.cfg.MaxScriptChars {
			RespondWithError(w, http.StatusBadRequest, "text exceeds the maximum allowed script length")
			return
		}
		job.InputMode = models.InputModeScript
		job.ScriptText = &req.Text
		estimateMinutes = float64(len(req.Text)) * 0.06 / 60.0
	case "audio":
		if req.AudioURL == "" {
			RespondWithError(w, http.StatusBadRequest, "audioUrl is required when inputType is 'audio'")
			return
		}
		job.InputMode = models.InputModePrerecorded
		job.SourceAudioURL = &req.AudioURL
		estimateMinutes = 1.0 // Unknown until video-svc reports actual duration; a conservative floor.
	default:
		RespondWithError(w, http.StatusBadRequest, "inputType must be 'script' or 'audio'")
		return
	}

	if err := h.usage.CheckQuota(user.ID, models.ResourceVideoMinutes, estimateMinutes); err != nil {
		h.respondQuota(w, err)
		return
	}

	created, err := h.db.CreateJob(job)
	if err != nil {
		log.Printf("[generation] failed to create video job: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to create generation job")
		return
	}

	if err := h.enqueueVideo(created); err != nil {
		h.respondQuota(w, err)
		return
	}

	RespondWithJSON(w, http.StatusAccepted, toStatusResponse(created))
}

// GetStatus reports a job's current status, progress, and result URL once complete.
func (h *GenerationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserContextKey).(*models.User)
	jobID := chi.URLParam(r, "jobId")

	owns, err := h.store.CheckOwnership(jobID, user.ID)
	if err != nil || !owns {
		RespondWithError(w, http.StatusNotFound, "job not found")
		return
	}

	job, err := h.store.Get(jobID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "job not found")
		return
	}

	RespondWithJSON(w, http.StatusOK, toStatusResponse(job))
}

// enqueueAudio submits job to the scheduler's worker pool. Submission uses
// a background context: once accepted, the job must keep running to
// completion even after the HTTP request that created it has returned. The
// queue depth is the only backpressure knob, so a full queue is reported
// back to the caller instead of silently marking the job failed.
func (h *GenerationHandler) enqueueAudio(job *models.GenerationJob) error {
	if err := h.scheduler.Submit(context.Background(), func(ctx context.Context) error {
		return h.audio.Run(ctx, job)
	}); err != nil {
		log.Printf("[generation] failed to submit audio job %s: %v", job.ID, err)
		_ = h.store.MarkFailed(job.ID, "job queue is full, try again later")
		return err
	}
	return nil
}

func (h *GenerationHandler) enqueueVideo(job *models.GenerationJob) error {
	if err := h.scheduler.Submit(context.Background(), func(ctx context.Context) error {
		return h.video.Run(ctx, job)
	}); err != nil {
		log.Printf("[generation] failed to submit video job %s: %v", job.ID, err)
		_ = h.store.MarkFailed(job.ID, "job queue is full, try again later")
		return err
	}
	return nil
}

func (h *GenerationHandler) respondQuota(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if apperr.Is(err, apperr.KindQuotaExceeded) || apperr.Is(err, apperr.KindQueueFull) {
		status = http.StatusTooManyRequests
	}
	RespondWithError(w, status, err.Error())
}

func toStatusResponse(job *models.GenerationJob) models.GenerationStatusResponse {
	resp := models.GenerationStatusResponse{
		TaskID:       job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
	}
	if job.Status == models.JobStatusCompleted && job.ResultURL != nil {
		resp.VideoURL = job.ResultURL
	}
	return resp
}
