// Package models defines the core data structures used throughout the application,
// representing database entities, API request/response bodies, and internal data contracts.
package models

import (
	"time"
)

// --- Enumerations (kept as plain strings; validated at the edges) ---

const (
	JobKindAudio = "audio"
	JobKindVideo = "video"

	InputModeScript       = "script"
	InputModePrerecorded  = "pre-recorded-audio"
	QualityFast           = "fast"
	QualityHigh           = "high"
	QualityStandard       = "standard"
	JobStatusQueued       = "queued"
	JobStatusProcessing   = "processing"
	JobStatusCompleted    = "completed"
	JobStatusFailed       = "failed"
	JobStatusTimedOut     = "timed-out"

	ResourceAudioMinutes        = "audio-minutes"
	ResourceVideoMinutes        = "video-minutes"
	ResourceConversationMinutes = "conversation-minutes"
	ResourceAvatarCreations     = "avatar-creations"
	ResourceAPICalls            = "api-calls"

	SessionKindVoice = "voice"
	SessionKindVideo = "video"

	SessionStatusConnecting = "connecting"
	SessionStatusReady      = "ready"
	SessionStatusActive     = "active"
	SessionStatusEnded      = "ended"
	SessionStatusFailed     = "failed"

	TranscriptRoleUser  = "user"
	TranscriptRoleModel = "model"
)

// --- Database Models ---

// User is the authenticated principal that owns avatars, jobs, sessions and API keys.
type User struct {
	ID             int        `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	HashedPassword *string    `db:"hashed_password" json:"-"`
	Provider       string     `db:"provider" json:"provider"`
	ProviderID     *string    `db:"provider_id" json:"-"`
	Role           string     `db:"role" json:"role"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Avatar is the identity an end-user speaks as: image + voice sample + persona.
// Mutations flow through an excluded CRUD layer; the core only reads rows,
// and caches them read-through with no eviction for the process lifetime.
type Avatar struct {
	ID             string  `db:"id" json:"id"`
	OwnerID        int     `db:"owner_id" json:"owner_id"`
	DisplayName    string  `db:"display_name" json:"display_name"`
	ImageURL       *string `db:"image_url" json:"image_url,omitempty"`
	VoiceSampleURL *string `db:"voice_sample_url" json:"voice_sample_url,omitempty"`
	PersonaPrompt  string  `db:"persona_prompt" json:"persona_prompt"`
	Language       string  `db:"language" json:"language"`
	IsPublic       bool    `db:"is_public" json:"is_public"`
}

// GenerationJob is one asynchronous audio or video generation request.
type GenerationJob struct {
	ID             string     `db:"id" json:"id"`
	OwnerID        int        `db:"owner_id" json:"owner_id"`
	AvatarID       string     `db:"avatar_id" json:"avatar_id"`
	Kind           string     `db:"kind" json:"kind"`
	InputMode      string     `db:"input_mode" json:"input_mode"`
	ScriptText     *string    `db:"script_text" json:"script_text,omitempty"`
	SourceAudioURL *string    `db:"source_audio_url" json:"source_audio_url,omitempty"`
	AudioURL       *string    `db:"audio_url" json:"audio_url,omitempty"`
	Quality        string     `db:"quality" json:"quality"`
	Language       string     `db:"language" json:"language"`
	UpstreamTaskID *string    `db:"upstream_task_id" json:"upstream_task_id,omitempty"`
	ResultURL      *string    `db:"result_url" json:"result_url,omitempty"`
	Status         string     `db:"status" json:"status"`
	Progress       int        `db:"progress" json:"progress"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job has reached a status it may never leave.
func (j *GenerationJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// UsageCounter is a per-user, per-resource monthly accumulator.
type UsageCounter struct {
	OwnerID        int       `db:"owner_id" json:"owner_id"`
	Resource       string    `db:"resource" json:"resource"`
	Used           float64   `db:"used" json:"used"`
	Limit          float64   `db:"usage_limit" json:"limit"`
	BillingAnchor  time.Time `db:"billing_anchor" json:"billing_anchor"`
}

// TranscriptEntry is one turn of a live conversation Session.
type TranscriptEntry struct {
	Role string `db:"role" json:"role"`
	Text string `db:"text" json:"text"`
}

// Session is a live, bidirectional WebSocket conversation mediated by the core.
type Session struct {
	ID         string    `db:"id" json:"id"`
	OwnerID    int       `db:"owner_id" json:"owner_id"`
	AvatarID   string    `db:"avatar_id" json:"avatar_id"`
	Kind       string    `db:"kind" json:"kind"`
	Language   string    `db:"language" json:"language"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	EndedAt    *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	Status     string    `db:"status" json:"status"`
}

// ApiKey is a principal for machine callers of the generation endpoints,
// which accept an API key through CombinedAuthMiddleware.
type ApiKey struct {
	ID             string     `db:"id" json:"id"`
	OwnerID        int        `db:"owner_id" json:"owner_id"`
	SecretHash     string     `db:"secret_hash" json:"-"`
	DisplayPrefix  string     `db:"display_prefix" json:"display_prefix"`
	Resources      []string   `db:"-" json:"resources"`
	ResourcesRaw   string     `db:"resources" json:"-"`
	Active         bool       `db:"active" json:"active"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt     *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// S3Config holds connection settings for an S3-compatible object store.
type S3Config struct {
	Endpoint string
	Region   string
	KeyID    string
	AppKey   string
	Bucket   string
}

// --- Auth DTOs ---

// AuthRequest is the body of /auth/login and /auth/register.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshTokenRequest is the body of /auth/refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// GoogleAuthRequest is the body of /auth/google.
type GoogleAuthRequest struct {
	Token string `json:"token"`
}

// RefreshResponse is the response of /auth/refresh.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// UserResponse is the public-facing representation of a User.
type UserResponse struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// --- API Request Payloads ---

// GenerateVideoRequest is the body of POST /api/video-generation/generate.
type GenerateVideoRequest struct {
	Text      string `json:"text"`
	AvatarID  string `json:"avatarId" validate:"required"`
	Quality   string `json:"quality" validate:"required,oneof=fast high standard"`
	AudioURL  string `json:"audioUrl"`
	InputType string `json:"inputType" validate:"required,oneof=script audio"`
}

// GenerateAudioRequest is the body of POST /api/audio-generation/generate.
type GenerateAudioRequest struct {
	Text     string `json:"text" validate:"required,max=1000"`
	VoiceID  string `json:"voiceId" validate:"required"`
	Language string `json:"language"`
}

// GenerationStatusResponse is the shared response shape for both generation status endpoints.
type GenerationStatusResponse struct {
	TaskID       string     `json:"taskId"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	VideoURL     *string    `json:"video_url,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// --- WebSocket protocol payloads (client <-> mediator) ---

// ClientUserText is the inbound {type:"user_text", text} frame.
type ClientUserText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientStopSpeaking is the inbound {type:"stop_speaking"} frame.
type ClientStopSpeaking struct {
	Type string `json:"type"`
}

// ServerFrame is the outbound JSON text-frame envelope.
// Types: connecting, ready, llm_response_text, speech_start, speech_end, error, system.
type ServerFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// --- Voice-svc / video-svc / LLM wire contracts ---

// VoiceInitMessage is sent once to the voice-svc WS right after connecting.
type VoiceInitMessage struct {
	Type          string `json:"type"`
	UserID        string `json:"userId"`
	AvatarID      string `json:"avatarId"`
	VoiceCloneURL string `json:"voice_clone_url"`
	Language      string `json:"language"`
}

// VoiceControlMessage is the shape of control JSON exchanged over the voice-svc WS,
// both inbound ({ready, error, speech_start, speech_end}) and outbound
// ({text_to_speak, stop_speaking}).
type VoiceControlMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// VideoStatusResponse is the JSON body video-svc returns from GET status when the
// artifact is not yet ready (content-type negotiated: video/mp4 means the body IS
// the artifact instead of this struct).
type VideoStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
