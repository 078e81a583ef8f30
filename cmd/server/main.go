package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/api/handlers"
	apimw "github.com/hdpolover/ybb-data-management-service-sub000/internal/api/middleware"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/api/routes"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/config"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/export"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/queue"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/worker"
	"github.com/hdpolover/ybb-data-management-service-sub000/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.App.Env)
	defer zlog.Sync() //nolint:errcheck

	// 1. Init Storage
	var backend storage.Backend
	switch cfg.Storage.Backend {
	case "memory":
		backend = storage.NewMemStore()
	case "fs":
		backend, err = storage.NewFSStore(cfg.Storage.FSRoot)
	case "s3":
		backend, err = storage.NewS3Store(ctx, cfg.S3)
	default:
		log.Fatalf("unknown storage backend: %s", cfg.Storage.Backend)
	}
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}

	// 2. Registry + Manager
	registry := export.NewRegistry(export.SystemClock{}, zlog)

	var opts []export.Option
	var queueClient *asynq.Client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if cfg.Worker.Enabled {
		queueClient = asynq.NewClient(redisOpt)
		defer queueClient.Close()
		opts = append(opts, export.WithEnqueue(func(ctx context.Context, id uuid.UUID, exportType, template string, rows [][]string) error {
			task, err := queue.NewExportProcessTask(queue.ExportProcessPayload{
				ExportID:   id,
				ExportType: exportType,
				Template:   template,
				Rows:       rows,
			})
			if err != nil {
				return err
			}
			_, err = queueClient.EnqueueContext(ctx, task)
			return err
		}))
	}

	manager := export.NewManager(cfg.Export, cfg.Templates, registry, backend, export.SystemClock{}, zlog, opts...)

	// 3. Retention Scheduler
	scheduler := export.NewScheduler(registry, backend, manager.Policy(), cfg.Export.CleanupInterval, zlog)
	go scheduler.Run(ctx)

	// 4. Worker server (same process as the API: the registry is in-memory)
	if cfg.Worker.Enabled {
		srv := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueDefault: 3,
				queue.QueueLow:     1,
			},
		})
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TypeExportProcess, worker.NewExportProcessor(manager, zlog).ProcessTask)
		go func() {
			if err := srv.Run(mux); err != nil {
				zlog.Fatal("worker server stopped", zap.Error(err))
			}
		}()
		defer srv.Shutdown()
	}

	// 5. Init Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(apimw.RequestID())
	e.Use(apimw.SecurityHeaders())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
		MaxAge:       3600,
	}))
	// 60 req/s per IP, burst of 120
	e.Use(apimw.RateLimit(60, 120))

	routes.Register(e, handlers.NewHandlers(manager, zlog))

	// 6. Health check with registry census and dependency probes
	e.GET("/health", func(c echo.Context) error {
		type healthResponse struct {
			Status  string            `json:"status"`
			Version string            `json:"version"`
			Exports export.Stats      `json:"exports"`
			Deps    map[string]string `json:"deps,omitempty"`
		}
		overall := "ok"
		deps := make(map[string]string)

		if cfg.Worker.Enabled {
			pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			conn, dialErr := (&net.Dialer{}).DialContext(pingCtx, "tcp", cfg.Redis.Addr)
			if dialErr != nil {
				deps["redis"] = dialErr.Error()
				overall = "degraded"
			} else {
				conn.Close()
				deps["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if overall != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, healthResponse{
			Status:  overall,
			Version: cfg.App.Version,
			Exports: manager.Stats(),
			Deps:    deps,
		})
	})

	// 7. Start Server
	go func() {
		port := strconv.Itoa(cfg.App.Port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			zlog.Info("server stopped", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(ctxShutdown); err != nil {
		zlog.Fatal("server forced to shutdown", zap.Error(err))
	}
}
