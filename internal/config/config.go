// Package config handles the loading and parsing of application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"avatarbackend/internal/models"
)

// VideoCompletionMode selects how a video job learns it has finished:
// by polling video-svc's status endpoint, or by waiting for video-svc to
// push a callback to WorkerCallback. Exactly one source is authoritative
// per deployment; running both would double-process a completion.
type VideoCompletionMode string

const (
	VideoCompletionPoll     VideoCompletionMode = "poll"
	VideoCompletionCallback VideoCompletionMode = "callback"
)

// AppConfig holds all configuration settings for the application.
type AppConfig struct {
	// --- Core Settings ---
	DBPath           string // Database connection string (e.g., PostgreSQL DSN).
	ServerAddr       string // Address for the HTTP server to listen on (e.g., ":8080").
	APIEncryptionKey string // Required at startup (validateCriticalConfig); nothing in this codebase encrypts with it.
	FrontendURL      string // Origin of the web client; added to the CORS allowed origins.

	// --- Authentication ---
	JWTSecret        string // Secret key for signing JWT tokens.
	GoogleClientID   string // Client ID for Google OAuth. Optional.
	VoiceCloneSecret string // Shared secret for HMAC voice-svc handshake tokens.
	WorkerCallbackToken string // Static bearer token video-svc presents to WorkerCallback.

	// --- External Services ---
	VoiceServiceWSURL   string // Base WebSocket URL of the voice synthesis service.
	CoquiXTTSBaseURL    string // REST base URL of the XTTS voice cloning backend.
	VideoServiceURL     string // REST base URL of the video rendering service.
	VideoServiceWSURL   string // WebSocket base URL of the video rendering service.
	VideoServiceAPIKey  string // API key presented to video-svc on outbound calls.
	LLMServiceURL       string // Base URL of the conversational LLM backend.
	S3                  models.S3Config // Configuration for S3-compatible storage. Optional.

	// --- Application Logic ---
	MigrationsPath     string               // Path to the database migration files.
	CORSAllowedOrigins string               // Comma-separated list of allowed CORS origins.
	VideoCompletionMode VideoCompletionMode // "poll" or "callback".
	MaxConcurrentJobs  int                  // Bound on simultaneously running generation jobs; audio and video share one pool.
	JobQueueCapacity   int                  // Buffered capacity of the scheduler's FIFO queue.
	ChunkMaxChars      int                  // Maximum characters per chunk the text chunker produces.
	MaxScriptChars     int                  // Hard ceiling on script length accepted by /generate endpoints.

	// --- Timeouts and Intervals ---
	HTTPClientTimeout   time.Duration // Timeout for the general HTTP client.
	ShutdownTimeout     time.Duration // Graceful shutdown timeout.
	ShutdownFinalSleep  time.Duration // Final sleep duration before exit.
	VideoPollInterval   time.Duration // How often a VideoJobRunner polls video-svc for completion.
	VideoPollTimeout    time.Duration // How long a VideoJobRunner polls before giving up.
	VoiceDialTimeout    time.Duration // Timeout for dialing the voice-svc WebSocket.
	VideoDialTimeout    time.Duration // Timeout for dialing the video-svc WebSocket (live avatar mode).
	StaleJobReapInterval time.Duration // How often the reaper looks for stuck "processing" jobs.
	StaleJobThreshold    time.Duration // Age after which a "processing" job is considered abandoned.
	CORSMaxAge          int           // Max age for CORS preflight requests in seconds.
}

// Load reads environment variables and populates the AppConfig struct.
// It sets sensible defaults for non-critical values.
func Load() (*AppConfig, error) {
	normalizeEndpoint := func(raw string) string {
		if raw == "" {
			return raw
		}
		if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
			return raw
		}
		return "https://" + raw
	}

	s3KeyID := getEnv("S3_ACCESS_KEY", "")
	if s3KeyID == "" {
		s3KeyID = getEnv("S3_ACCESS_KEY_ID", "")
	}
	s3Secret := getEnv("S3_SECRET_KEY", "")
	if s3Secret == "" {
		s3Secret = getEnv("S3_SECRET_ACCESS_KEY", "")
	}

	completionMode := VideoCompletionMode(getEnv("VIDEO_COMPLETION_MODE", string(VideoCompletionPoll)))
	if completionMode != VideoCompletionPoll && completionMode != VideoCompletionCallback {
		return nil, fmt.Errorf("invalid VIDEO_COMPLETION_MODE %q: must be %q or %q", completionMode, VideoCompletionPoll, VideoCompletionCallback)
	}

	cfg := &AppConfig{
		// --- Core Settings ---
		DBPath:           getEnv("DB_PATH", ""),
		ServerAddr:       getEnv("SERVER_ADDR", ":8080"),
		APIEncryptionKey: getEnv("API_ENCRYPTION_KEY", ""),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:5173"),

		// --- Authentication ---
		JWTSecret:           getEnv("JWT_SECRET", ""),
		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		VoiceCloneSecret:    getEnv("VOICE_SERVICE_SECRET_KEY", ""),
		WorkerCallbackToken: getEnv("WORKER_CALLBACK_TOKEN", ""),

		// --- External Services ---
		VoiceServiceWSURL:  getEnv("VOICE_SERVICE_WS_URL", ""),
		CoquiXTTSBaseURL:   getEnv("COQUI_XTTS_BASE_URL", ""),
		VideoServiceURL:    getEnv("VIDEO_SERVICE_URL", ""),
		VideoServiceWSURL:  getEnv("VIDEO_SERVICE_WS_URL", ""),
		VideoServiceAPIKey: getEnv("VIDEO_SERVICE_API_KEY", ""),
		LLMServiceURL:      getEnv("LLM_SERVICE_URL", ""),
		S3: models.S3Config{
			Endpoint: normalizeEndpoint(getEnv("S3_ENDPOINT", "")),
			Region:   getEnv("S3_REGION", ""),
			KeyID:    s3KeyID,
			AppKey:   s3Secret,
			Bucket:   getEnv("S3_BUCKET_NAME", ""),
		},

		// --- Application Logic ---
		MigrationsPath:      getEnv("MIGRATIONS_PATH", "migrations"),
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"),
		VideoCompletionMode:  completionMode,
		MaxConcurrentJobs:    getEnvAsInt("MAX_CONCURRENT_JOBS", 4),
		JobQueueCapacity:     getEnvAsInt("JOB_QUEUE_CAPACITY", 256),
		ChunkMaxChars:        getEnvAsInt("CHUNK_MAX_CHARS", 600),
		MaxScriptChars:       getEnvAsInt("MAX_SCRIPT_CHARS", 5000),

		// --- Timeouts and Intervals ---
		HTTPClientTimeout:    getEnvAsDuration("HTTP_CLIENT_TIMEOUT", 2*time.Minute),
		ShutdownTimeout:      getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ShutdownFinalSleep:   getEnvAsDuration("SHUTDOWN_FINAL_SLEEP", 5*time.Second),
		VideoPollInterval:    getEnvAsDuration("VIDEO_POLL_INTERVAL", 5*time.Second),
		VideoPollTimeout:     getEnvAsDuration("VIDEO_POLL_TIMEOUT", 10*time.Minute),
		VoiceDialTimeout:     getEnvAsDuration("VOICE_DIAL_TIMEOUT", 10*time.Second),
		VideoDialTimeout:     getEnvAsDuration("VIDEO_DIAL_TIMEOUT", 10*time.Second),
		StaleJobReapInterval: getEnvAsDuration("STALE_JOB_REAP_INTERVAL", 5*time.Minute),
		StaleJobThreshold:    getEnvAsDuration("STALE_JOB_THRESHOLD", 30*time.Minute),
		CORSMaxAge:           getEnvAsInt("CORS_MAX_AGE", 300),
	}

	if err := validateCriticalConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateCriticalConfig checks that essential configuration values are set.
func validateCriticalConfig(cfg *AppConfig) error {
	criticalVars := map[string]string{
		"DB_PATH":            cfg.DBPath,
		"JWT_SECRET":         cfg.JWTSecret,
		"API_ENCRYPTION_KEY": cfg.APIEncryptionKey,
	}
	var missing []string
	for name, value := range criticalVars {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing critical environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// --- Helper Functions for robust environment variable loading ---

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an integer environment variable or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration retrieves a time.Duration environment variable or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}
