package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"

	"github.com/bracketline/tournament-engine/cache"
	"github.com/bracketline/tournament-engine/config"
	"github.com/bracketline/tournament-engine/db"
	"github.com/bracketline/tournament-engine/events"
	"github.com/bracketline/tournament-engine/queue"
	"github.com/bracketline/tournament-engine/repositories"
	"github.com/bracketline/tournament-engine/scheduling"
	"github.com/bracketline/tournament-engine/services"
	"github.com/bracketline/tournament-engine/storage"
)

const migrationsDir = "migrations"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(dbConn, migrationsDir); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Live bracket updates go out over the websocket hub; everything
	// also lands in the structured log.
	hub := events.NewHub(logger)
	go hub.Run(ctx)
	sink := events.Fanout{events.LogSink{Logger: logger}, hub}

	var archiver *storage.Archiver
	if cfg.ArchivingEnabled() {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = storage.NewArchiver(uploader)
		logger.Info("tournament archiving enabled", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Info("tournament archiving disabled")
	}

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	prizeRepo := repositories.NewPostgresPrizeRepository(dbConn)

	jobQueue := queue.NewMemory(logger)
	defer jobQueue.Close()

	bracketService := services.NewBracketService(matchRepo, cache.NewMemory(), logger)
	tournamentService := services.NewTournamentService(
		dbConn, tournamentRepo, participantRepo, bracketService,
		services.DefaultEligibilityRules(), sink, logger,
	)
	matchService := services.NewMatchService(
		dbConn, tournamentRepo, participantRepo, matchRepo, prizeRepo,
		bracketService, archiver, sink, logger,
	)
	schedulerService := services.NewSchedulerService(
		tournamentRepo, matchRepo, nil, jobQueue,
		scheduling.DefaultOptions(), sink, logger,
	)
	leaderboardService := services.NewLeaderboardService(participantRepo, cache.NewMemory())

	jobQueue.Register(services.TimeoutJob, func(ctx context.Context, payload interface{}) error {
		matchID, ok := payload.(int)
		if !ok {
			return fmt.Errorf("unexpected timeout payload %T", payload)
		}
		schedulerService.DisarmTimeout(matchID)
		if err := matchService.ResolveTimeout(ctx, matchID); err != nil && !errors.Is(err, services.ErrMatchAlreadyCompleted) {
			return err
		}
		return nil
	})

	automation := services.NewAutomationService(
		tournamentRepo, matchRepo, tournamentService, matchService,
		schedulerService, logger,
	)
	go automation.Run(ctx, cfg.AutomationInterval)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbConn.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Get("/ws/tournaments/{tournamentID}", hub.ServeWS)
	router.Get("/tournaments/{tournamentID}/standings", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "tournamentID"))
		if err != nil {
			http.Error(w, "invalid tournament id", http.StatusBadRequest)
			return
		}
		standings, err := leaderboardService.Standings(r.Context(), id)
		if err != nil {
			logger.Error("failed to load standings", slog.Int("tournament_id", id), slog.Any("error", err))
			http.Error(w, "failed to load standings", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(standings); err != nil {
			logger.Error("failed to encode standings", slog.Any("error", err))
		}
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
