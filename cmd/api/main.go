package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceagent-platform/internal/agent"
	"voiceagent-platform/internal/audit"
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/cache"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/catalog"
	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/history"
	"voiceagent-platform/internal/httpapi"
	"voiceagent-platform/internal/media"
	"voiceagent-platform/internal/metrics"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/orchestrator"
	"voiceagent-platform/internal/reporting"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/internal/telephony"
	"voiceagent-platform/pkg/logger"
	"voiceagent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()

	// Call history lands in Postgres; completion events fan out to the
	// Redis channel and release the concurrency slot.
	store := history.NewPostgresStore(db)
	limiter := calls.NewRedisLimiter(rdb, calls.DefaultLimiterKey, cfg.Pipeline.MaxConcurrentCalls, 0)
	reports := reporting.NewService(reporting.NewMemoryRepo())
	publisher := notify.Multi{
		notify.NewRedisPublisher(rdb, notify.DefaultChannel),
		calls.ReleaseOnCompleted(limiter, m),
		reports.Recorder(),
	}

	registry := session.NewRegistry(log, store, publisher, session.RegistryConfig{
		Grace: cfg.Pipeline.SessionGrace,
	})
	defer registry.Stop()

	completer, err := speech.NewGeminiCompleter(rootCtx, speech.GeminiConfig{
		APIKey: cfg.Completion.GeminiAPIKey,
		Model:  cfg.Completion.Model,
	})
	if err != nil {
		log.Error("completion init failed", "err", err)
		os.Exit(1)
	}
	synthesizer, err := speech.NewAzureSynthesizer(speech.AzureConfig{
		Region: cfg.Speech.AzureRegion,
		Key:    cfg.Speech.AzureKey,
	})
	if err != nil {
		log.Error("synthesis init failed", "err", err)
		os.Exit(1)
	}

	cat := catalog.NewService(catalog.NewMemoryRepo(catalog.DefaultProducts()))

	responseCache := cache.New(cfg.Pipeline.CacheCapacity, cfg.Pipeline.CacheTTL)
	orch := orchestrator.New(log, registry, completer, synthesizer, responseCache, cat, orchestrator.Config{
		Voice:   speech.VoiceOptions{Voice: cfg.Speech.Voice},
		Metrics: m,
	})

	audioStore, err := speech.NewAudioStore(cfg.Pipeline.AudioDir, cfg.Pipeline.AudioTTL)
	if err != nil {
		log.Error("audio store init failed", "err", err)
		os.Exit(1)
	}
	go sweepAudio(rootCtx, audioStore)

	provider, err := telephony.NewTwilioProvider(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	})
	if err != nil {
		log.Error("telephony init failed", "err", err)
		os.Exit(1)
	}
	if err := provider.HealthCheck(rootCtx); err != nil {
		log.Warn("telephony health check failed", "provider", provider.Name(), "err", err)
	}

	callsSvc := calls.NewService(log, registry, orch, provider, cat, store, limiter, m, cfg.App.PublicBaseURL)

	deps := appDeps{
		health: gin.H{
			"telephony":   provider.Name(),
			"completion":  cfg.Completion.Model,
			"synthesis":   "azure",
			"transcriber": cfg.Speech.TranscriberURL != "",
		},
		authManager: authManager,
		api: httpapi.Handlers{
			Auth:    authManager,
			Calls:   callsSvc,
			Audit:   audit.NewService(audit.NewPostgresRepo(db)),
			Reports: reports,
		},
		webhooks: telephony.WebhookHandler{
			Registry:             registry,
			Orchestrator:         orch,
			Audio:                audioStore,
			Metrics:              m,
			BaseURL:              cfg.App.PublicBaseURL,
			Greeting:             agent.Greeting,
			GatherTimeoutSeconds: cfg.Pipeline.GatherTimeoutSeconds,
		},
	}

	if cfg.Speech.TranscriberURL != "" {
		transcriber, err := speech.NewHTTPTranscriber(speech.TranscriberConfig{
			Endpoint: cfg.Speech.TranscriberURL,
		})
		if err != nil {
			log.Error("transcriber init failed", "err", err)
			os.Exit(1)
		}
		deps.media = media.NewHandler(registry, orch, transcriber, m, media.StreamConfig{
			ChunkSize:   cfg.Pipeline.ChunkSize,
			MaxBuffered: cfg.Pipeline.MaxBufferedBytes,
		})
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware(m))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// sweepAudio deletes played synthesis artifacts past their TTL.
func sweepAudio(ctx context.Context, store *speech.AudioStore) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}
