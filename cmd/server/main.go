// Math interviewer server.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/math-interviewer/internal/agent"
	"github.com/ashureev/math-interviewer/internal/api"
	"github.com/ashureev/math-interviewer/internal/config"
	"github.com/ashureev/math-interviewer/internal/identity"
	"github.com/ashureev/math-interviewer/internal/interview"
	"github.com/ashureev/math-interviewer/internal/live"
	"github.com/ashureev/math-interviewer/internal/metrics"
	"github.com/ashureev/math-interviewer/internal/middleware"
	"github.com/ashureev/math-interviewer/internal/protocol"
	"github.com/ashureev/math-interviewer/internal/report"
	"github.com/ashureev/math-interviewer/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load("")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server",
		"port", cfg.Server.Port,
		"dev", cfg.IsDevelopment(),
		"container", config.IsContainer(),
		"snapshot_backend", cfg.Snapshot.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Snapshot persistence.
	repo, err := store.Open(ctx, store.Options{
		Backend:    cfg.Snapshot.Backend,
		SQLitePath: cfg.Snapshot.DBPath,
		FileDir:    cfg.Snapshot.Dir,
		Redis: store.RedisConfig{
			Addr:     cfg.Snapshot.Redis.Addr,
			Password: cfg.Snapshot.Redis.Password,
			DB:       cfg.Snapshot.Redis.DB,
			Prefix:   cfg.Snapshot.Redis.Prefix,
			TTL:      cfg.Snapshot.Redis.TTL,
		},
	})
	if err != nil {
		return err
	}
	gateway := store.NewGateway(repo, m, logger)
	defer func() {
		if closeErr := gateway.Close(); closeErr != nil {
			slog.Error("Failed to close snapshot repository", "error", closeErr)
		}
	}()
	if err := gateway.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Snapshot repository connected", "backend", gateway.Backend())

	// Model collaborator.
	proto := protocol.Load(cfg.Interview.ProtocolPath, logger)
	client, err := agent.NewOpenAIClient(agent.Config{
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Timeout:     cfg.Model.Timeout,
	}, logger)
	if err != nil {
		return err
	}
	service := agent.NewService(client, cfg.Model.Timeout, logger)
	slog.Info("Model collaborator ready", "model", service.Name(), "protocol_source", proto.Source)

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Interview core.
	settings := interview.Settings{
		AutoSaveInterval:        cfg.Interview.AutoSaveInterval,
		MultiplicationThreshold: cfg.Interview.MultiplicationThreshold,
		DivisionThreshold:       cfg.Interview.DivisionThreshold,
		HistoryWindow:           cfg.Interview.HistoryWindow,
		ReportMinTurns:          cfg.Interview.ReportMinTurns,
		SkipIntroduction:        cfg.Interview.SkipIntroduction,
	}
	sessions := interview.NewStore(gateway, settings, m, logger)
	orch := interview.NewOrchestrator(interview.Deps{
		Store:           sessions,
		Collaborator:    service,
		Reports:         report.NewSynthesizer(service, cfg.Model.ReportMaxTokens, logger),
		Exporter:        gateway,
		Protocol:        proto,
		Settings:        settings,
		Metrics:         m,
		ConversationLog: conversationLogger,
		Logger:          logger,
	})

	sessions.StartSweeper(ctx, cfg.Interview.SessionTTL, 0)
	slog.Info("Session sweeper started", "session_ttl", cfg.Interview.SessionTTL)

	// Handlers.
	limiter := api.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	defer limiter.Stop()
	interviewHandler := api.NewInterviewHandler(orch, limiter, cfg.Server.MaxRequestBodySize, logger)
	healthHandler := api.NewHealthHandler(gateway, gateway.Backend())
	sm := live.NewSessionManager(m)
	wsHandler := live.NewWebSocketHandler(orch, sm, cfg.Server.FrontendURL, cfg.IsDevelopment(), cfg.Server.MaxRequestBodySize, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	healthHandler.RegisterHealth(r)
	interviewHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// WebSocket endpoint.
	r.With(identity.Middleware).Get("/ws/interview", wsHandler.ServeHTTP)

	// Note: SSE and WebSocket replies stream for as long as the model takes,
	// so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stop()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		sm.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		saved := sessions.Flush(shutdownCtx)
		slog.Info("Sessions flushed", "saved", saved)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}
