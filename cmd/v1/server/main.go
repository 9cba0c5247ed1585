package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"log/slog"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/auth"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/bus"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/config"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/health"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/hls"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/logging"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/middleware"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/ratelimit"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/room"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/store"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/tracing"
)

// reconcileInterval is the spacing between orphan sweeps — short enough that
// a stuck transcoder or a stale HLS URL doesn't linger for a full shift.
const reconcileInterval = 2 * time.Minute

func main() {
	root := &cobra.Command{
		Use:   "media-orchestrator",
		Short: "WebRTC SFU + HLS media orchestration server",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run metadata store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotenv()
			cfg, err := config.ValidateEnv()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.MetadataStoreURL == "" {
				return fmt.Errorf("METADATA_STORE_URL must be set to run migrations")
			}
			st, err := store.New(cfg.MetadataStoreURL)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			slog.Info("migrations applied")
			_ = st
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the media orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func loadDotenv() {
	envPaths := []string{".env", "../../../.env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment file", "path", path)
			return
		}
	}
	slog.Warn("no .env file found in any expected location, relying on environment variables")
}

func serve() error {
	loadDotenv()

	cfg, err := config.ValidateEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	logging.InitSlog(cfg.DevelopmentMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if collector := os.Getenv("OTEL_COLLECTOR_ADDR"); collector != "" {
		tp, err := tracing.InitTracer(ctx, "media-orchestrator", collector)
		if err != nil {
			slog.Warn("tracing disabled, failed to initialize", "error", err)
		} else {
			defer func() { _ = tp.Shutdown(ctx) }()
		}
	}

	var authValidator room.TokenValidator
	if cfg.SkipAuth {
		slog.Warn("authentication DISABLED for development - do not use in production")
		authValidator = &auth.MockValidator{}
	} else {
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			return fmt.Errorf("AUTH0_DOMAIN and AUTH0_AUDIENCE must be set when SKIP_AUTH=false")
		}
		v, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			return fmt.Errorf("auth validator: %w", err)
		}
		authValidator = v
		slog.Info("auth0 validator initialized", "domain", cfg.Auth0Domain)
	}

	var busSvc *bus.Service
	if cfg.RedisEnabled {
		busSvc, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("bus: %w", err)
		}
		defer func() { _ = busSvc.Close() }()
	}

	var st *store.Store
	if cfg.MetadataStoreURL != "" {
		st, err = store.New(cfg.MetadataStoreURL)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if err := st.CrashRecover(ctx); err != nil {
			return fmt.Errorf("store: crash recovery: %w", err)
		}
	} else {
		slog.Warn("METADATA_STORE_URL not set, running without a metadata mirror")
	}

	workerPool, err := mediaworker.NewPool(ctx, cfg, cfg.WorkerCount)
	if err != nil {
		return fmt.Errorf("media worker pool: %w", err)
	}
	defer workerPool.Close()

	routerRegistry := mediaworker.NewRegistry(workerPool)
	rtcRegistry := rtc.NewRegistry()

	hlsController := hls.NewController(cfg, rtcRegistry, routerRegistry, st)
	orchestrator := room.NewOrchestrator(routerRegistry, rtcRegistry, hlsController, st, busSvc)
	hlsController.SetRoomProvider(orchestrator)

	dispatcher := room.NewDispatcher(orchestrator)
	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	hub := room.NewHub(orchestrator, dispatcher, authValidator, cfg.SkipAuth, allowedOrigins)

	var rateLimiter *ratelimit.RateLimiter
	if busSvc != nil {
		rateLimiter, err = ratelimit.NewRateLimiter(cfg, busSvc.Client())
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	healthHandler := health.NewHandler(busSvc, workerPool, st)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(reconcileInterval),
		gocron.NewTask(reconcile, cfg, st, hlsController, orchestrator),
		gocron.WithName("hls-reconciliation"),
	); err != nil {
		return fmt.Errorf("scheduler: register reconciliation job: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.Error("scheduler shutdown failed", "error", err)
		}
	}()

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))

	if rateLimiter != nil {
		router.Use(rateLimiter.GlobalMiddleware())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	wsGroup := router.Group("/ws")
	if rateLimiter != nil {
		wsGroup.Use(rateLimiter.MiddlewareForEndpoint("ws"))
	}
	wsGroup.GET("/room", hub.ServeWs)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("media orchestrator starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exiting")
	return nil
}

// reconcile sweeps for drift between the metadata store's belief about which
// rooms have a running HLS transcoder and the HLS controller's actual live
// state, and removes segment directories left behind by a crashed transcoder
// that never reached Stop's cleanup path.
func reconcile(cfg *config.Config, st *store.Store, hlsController *hls.Controller, orchestrator *room.Orchestrator) {
	ctx := context.Background()

	if st != nil {
		rooms, err := st.ActiveRoomsWithHLS(ctx)
		if err != nil {
			slog.Warn("reconcile: failed to list rooms with hls", "error", err)
		} else {
			for _, r := range rooms {
				if !hlsController.IsRunning(r.ID) {
					slog.Info("reconcile: clearing stale hls url", "room_id", r.ID)
					if err := st.SetRoomHLSURL(ctx, r.ID, ""); err != nil {
						slog.Warn("reconcile: failed to clear stale hls url", "room_id", r.ID, "error", err)
					}
				}
			}
		}
	}

	entries, err := os.ReadDir(cfg.HLSStoragePath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("reconcile: failed to read hls storage path", "path", cfg.HLSStoragePath, "error", err)
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		roomID := entry.Name()
		if hlsController.IsRunning(roomID) {
			continue
		}
		if _, ok := orchestrator.GetRoomByID(roomID); ok {
			continue
		}
		segDir := filepath.Join(cfg.HLSStoragePath, roomID)
		slog.Info("reconcile: removing orphaned hls segment directory", "room_id", roomID, "path", segDir)
		if err := os.RemoveAll(segDir); err != nil {
			slog.Warn("reconcile: failed to remove orphaned segment directory", "path", segDir, "error", err)
		}
	}
}
