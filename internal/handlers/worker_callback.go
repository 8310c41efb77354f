package handlers

import (
	"crypto/subtle"
	"io"
	"log"
	"net/http"
	"strings"

	"avatarbackend/internal/config"
	"avatarbackend/internal/jobs"
	"avatarbackend/internal/jobstore"

	"github.com/go-chi/chi/v5"
)

// workerCallbackMaxVideoSize bounds the optional rendered-video part of a
// callback delivery.
const workerCallbackMaxVideoSize = 300 * 1024 * 1024

// workerCallbackFormOverhead is headroom above workerCallbackMaxVideoSize for
// the other multipart fields and boundary framing.
const workerCallbackFormOverhead = 1 * 1024 * 1024

// WorkerCallbackHandler receives asynchronous completion notices from
// video-svc when the deployment is configured for callback-mode completion,
// instead of VideoJobRunner polling for the result itself.
type WorkerCallbackHandler struct {
	store *jobstore.Store
	video *jobs.VideoJobRunner
	token string
}

// NewWorkerCallbackHandler constructs a WorkerCallbackHandler. token is the
// static credential video-svc must present; an empty token disables the
// endpoint entirely, since an unauthenticated callback route would let any
// caller complete arbitrary jobs.
func NewWorkerCallbackHandler(store *jobstore.Store, video *jobs.VideoJobRunner, cfg *config.AppConfig) *WorkerCallbackHandler {
	return &WorkerCallbackHandler{store: store, video: video, token: cfg.WorkerCallbackToken}
}

// RegisterRoutes mounts the callback endpoint under r. This route must be
// registered outside of the user-facing auth middleware chain; it has its
// own token check instead.
func (h *WorkerCallbackHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/worker-callback/video", h.Deliver)
}

// authenticate accepts the worker token via either Authorization: Bearer or
// the x-worker-token header, since video-svc deployments vary on which one
// they're configured to send.
func (h *WorkerCallbackHandler) authenticate(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(bearer), []byte(h.token)) == 1 {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("x-worker-token")), []byte(h.token)) == 1
}

// Deliver accepts video-svc's single multipart progress/completion endpoint:
// fields task_id and status (processing, completed, failed), with an
// optional file part carrying the rendered video, present only when status
// is completed.
func (h *WorkerCallbackHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(r) {
		RespondWithError(w, http.StatusUnauthorized, "invalid worker callback token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, workerCallbackMaxVideoSize+workerCallbackFormOverhead)
	if err := r.ParseMultipartForm(workerCallbackFormOverhead); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid multipart callback body")
		return
	}

	taskID := r.FormValue("task_id")
	status := r.FormValue("status")
	if taskID == "" || status == "" {
		RespondWithError(w, http.StatusBadRequest, "task_id and status are required")
		return
	}

	job, err := h.store.GetByUpstreamTaskID(taskID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "unknown task_id")
		return
	}

	switch status {
	case "processing":
		if err := h.store.UpdateProgress(job.ID, 70); err != nil {
			log.Printf("[worker-callback] failed to advance progress for job %s: %v", job.ID, err)
		}

	case "completed":
		file, _, err := r.FormFile("file")
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "completed callback must include a file part")
			return
		}
		defer file.Close()

		video, err := io.ReadAll(io.LimitReader(file, workerCallbackMaxVideoSize))
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "failed to read video part")
			return
		}

		if err := h.video.CompleteFromCallback(r.Context(), job, video, ""); err != nil && !isAlreadyTerminal(err) {
			log.Printf("[worker-callback] failed to finalize job %s: %v", job.ID, err)
			RespondWithError(w, http.StatusInternalServerError, "failed to finalize job")
			return
		}

	case "failed":
		errMsg := r.FormValue("error")
		if errMsg == "" {
			errMsg = "video-svc reported failure with no detail"
		}
		if err := h.video.CompleteFromCallback(r.Context(), job, nil, errMsg); err != nil && !isAlreadyTerminal(err) {
			log.Printf("[worker-callback] failed to record failure for job %s: %v", job.ID, err)
		}

	default:
		RespondWithError(w, http.StatusBadRequest, "status must be one of processing, completed, failed")
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// isAlreadyTerminal reports whether err is the terminal-state guard a
// MarkCompleted/MarkFailed call raises. video-svc retries completion
// callbacks, so a second delivery landing on an already-finished job is
// treated as an idempotent success rather than surfaced as an error.
func isAlreadyTerminal(err error) bool {
	return strings.Contains(err.Error(), "already in a terminal state")
}
