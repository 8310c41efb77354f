// Package main is the entry point for the avatar platform's control-plane API server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"avatarbackend/internal/apikey"
	"avatarbackend/internal/auth"
	"avatarbackend/internal/avatarcache"
	"avatarbackend/internal/clients"
	"avatarbackend/internal/config"
	"avatarbackend/internal/database"
	"avatarbackend/internal/handlers"
	"avatarbackend/internal/jobs"
	"avatarbackend/internal/jobstore"
	"avatarbackend/internal/mediator"
	"avatarbackend/internal/middleware"
	"avatarbackend/internal/scheduler"
	"avatarbackend/internal/storage"
	"avatarbackend/internal/usage"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

// main initializes the application, sets up dependencies, defines routes,
// and starts the HTTP server with graceful shutdown.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Critical error loading configuration: %v", err)
	}

	// --- Dependency Injection ---
	db, err := database.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Critical error! Failed to connect to the database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.DBPath, cfg.MigrationsPath); err != nil {
		log.Fatalf("Critical error during database migration: %v", err)
	}

	s3Service, err := storage.NewS3Service(cfg.S3)
	if err != nil {
		log.Fatalf("Critical error! Failed to create S3 service: %v", err)
	}

	authSvc, err := auth.NewAuthService(cfg.JWTSecret, cfg.VoiceCloneSecret)
	if err != nil {
		log.Fatalf("Critical error: failed to create authentication service: %v", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{DisableCompression: true},
		Timeout:   cfg.HTTPClientTimeout,
	}

	voiceClient := clients.NewVoiceClient(cfg.CoquiXTTSBaseURL, cfg.VoiceServiceWSURL, httpClient, cfg.VoiceDialTimeout)
	videoClient := clients.NewVideoClient(cfg.VideoServiceURL, cfg.VideoServiceWSURL, cfg.VideoServiceAPIKey, httpClient, cfg.VideoDialTimeout)
	llmClient := clients.NewLLMClient(cfg.LLMServiceURL, httpClient)

	avatars := avatarcache.New(db.GetAvatarByID)
	store := jobstore.New(db)
	acct := usage.New(db)
	audioRunner := jobs.NewAudioJobRunner(store, voiceClient, s3Service, acct, cfg.ChunkMaxChars)
	videoRunner := jobs.NewVideoJobRunner(store, avatars, voiceClient, videoClient, s3Service, acct, cfg.VideoCompletionMode, cfg.VideoPollInterval, cfg.VideoPollTimeout)

	sched := scheduler.New(cfg.MaxConcurrentJobs, cfg.JobQueueCapacity)
	hub := mediator.NewHub()
	apiKeyLedger := apikey.NewLedger()

	// --- Background Goroutines ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[scheduler] worker pool exited with error: %v", err)
		}
	}()
	go hub.Run(ctx)
	go startStaleJobReaper(ctx, store, cfg)
	go startUsageResetRoutine(ctx, db)

	// --- Router and Server Setup ---
	router := setupRouter(db, avatars, cfg, authSvc, s3Service, llmClient, voiceClient, videoClient, acct, store, sched, audioRunner, videoRunner, hub, apiKeyLedger)
	srv := &http.Server{Addr: cfg.ServerAddr, Handler: router}

	go func() {
		log.Printf("Server is ready for connections and listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed with error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutdown signal received. Starting graceful shutdown...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Error during graceful server shutdown: %v", err)
	}

	log.Printf("Server stopped successfully. Background tasks can continue for up to %v.", cfg.ShutdownFinalSleep)
	time.Sleep(cfg.ShutdownFinalSleep)
	log.Println("Exiting.")
}

// setupRouter initializes all handlers and registers all API routes.
func setupRouter(db *database.DB, avatars *avatarcache.Cache, cfg *config.AppConfig, authSvc *auth.AuthService, s3Service *storage.S3Service,
	llmClient *clients.LLMClient, voiceClient *clients.VoiceClient, videoClient *clients.VideoClient, acct *usage.Accountant,
	store *jobstore.Store, sched *scheduler.Scheduler, audioRunner *jobs.AudioJobRunner, videoRunner *jobs.VideoJobRunner,
	hub *mediator.Hub, apiKeyLedger *apikey.Ledger) *chi.Mux {

	authHandler := &handlers.AuthHandler{DB: db, AuthService: authSvc, GoogleClientID: cfg.GoogleClientID}
	maintenanceHandler := handlers.NewMaintenanceHandler(db)
	statusHandler := handlers.NewStatusHandler(db)
	healthHandler := handlers.NewHealthHandler()
	avatarHandler := handlers.NewAvatarHandler(db, avatars)
	generationHandler := handlers.NewGenerationHandler(store, db, avatars, sched, acct, audioRunner, videoRunner, cfg)
	workerCallbackHandler := handlers.NewWorkerCallbackHandler(store, videoRunner, cfg)
	wsHandler := handlers.NewWSHandler(hub, db, avatars, authSvc, llmClient, voiceClient, videoClient, acct, cfg)
	apiKeyHandler := handlers.NewAPIKeyHandler(db, apiKeyLedger)
	adminHandler := handlers.NewAdminHandler(db)

	r := chi.NewRouter()

	// --- Middleware Stack ---
	setupCORS(r, cfg)
	r.Use(chimiddleware.Logger, chimiddleware.Recoverer)
	r.Use(middleware.MaintenanceMiddleware(db))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	// Public unauthenticated routes
	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/login", authHandler.Login)
	r.Post("/auth/google", authHandler.GoogleLogin)
	r.Post("/auth/refresh", authHandler.Refresh)

	healthHandler.RegisterRoutes(r)
	statusHandler.RegisterRoutes(r)
	maintenanceHandler.RegisterRoutes(r)
	workerCallbackHandler.RegisterRoutes(r) // Authenticated by its own bearer token, not AuthMiddleware.

	// Routes requiring an interactive end-user session (JWT only).
	r.Group(func(r chi.Router) {
		r.Use(authHandler.AuthMiddleware)

		r.Get("/me", authHandler.Me)
		avatarHandler.RegisterRoutes(r)
		wsHandler.RegisterRoutes(r)
		apiKeyHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireAdmin)
			adminHandler.RegisterRoutes(r)
		})
	})

	// Generation endpoints accept either a user's JWT or a server-to-server
	// API key, so an integration can drive generation without holding a
	// short-lived user session.
	r.Group(func(r chi.Router) {
		r.Use(handlers.CombinedAuthMiddleware(authHandler.AuthMiddleware, apiKeyHandler, "generate"))
		generationHandler.RegisterRoutes(r)
	})

	return r
}

// --- Background Routines ---

// startStaleJobReaper periodically marks "processing" jobs that have been
// stuck well past a plausible completion time as timed out, so a crashed
// worker or a lost callback never leaves a job silently hanging forever.
func startStaleJobReaper(ctx context.Context, store *jobstore.Store, cfg *config.AppConfig) {
	log.Println("[reaper] starting stale job reaper")
	ticker := time.NewTicker(cfg.StaleJobReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stale, err := store.ListStale(cfg.StaleJobThreshold)
			if err != nil {
				log.Printf("!!! [reaper] failed to list stale jobs: %v", err)
				continue
			}
			for _, job := range stale {
				if err := store.MarkTimedOut(job.ID); err != nil {
					log.Printf("!!! [reaper] failed to mark job %s timed out: %v", job.ID, err)
					continue
				}
				log.Printf("[reaper] job %s marked timed out after exceeding %v", job.ID, cfg.StaleJobThreshold)
			}
		case <-ctx.Done():
			log.Println("[reaper] stopped due to server shutdown")
			return
		}
	}
}

// startUsageResetRoutine rolls usage counters over to the next billing
// period once a day; IncrementUsage never resets a row's used total, so
// without this routine a calendar-month quota would never free up.
func startUsageResetRoutine(ctx context.Context, db *database.DB) {
	log.Println("[usage] starting billing period reset routine")
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := db.ResetUsageForBillingPeriod()
			if err != nil {
				log.Printf("!!! [usage] failed to reset billing period counters: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[usage] rolled over %d usage counters to the new billing period", n)
			}
		case <-ctx.Done():
			log.Println("[usage] reset routine stopped")
			return
		}
	}
}

// --- Middleware Configuration ---

func setupCORS(r *chi.Mux, cfg *config.AppConfig) {
	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	if cfg.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, strings.TrimSuffix(cfg.FrontendURL, "/"))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With", "X-Bypass-Token"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		MaxAge:           cfg.CORSMaxAge,
	}).Handler)
}
