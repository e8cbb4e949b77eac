package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/dicampus-admin/internal/service"
	"github.com/noah-isme/dicampus-admin/pkg/busy"
	"github.com/noah-isme/dicampus-admin/pkg/config"
	"github.com/noah-isme/dicampus-admin/pkg/logger"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
)

// @title Dicampus Admin API
// @version 1.0.0
// @description Live mirrors of courses, students and enrollments
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	backend, err := openBackend(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer backend.Close()

	counter := busy.NewCounter()
	metrics := service.NewMetricsService()
	metrics.TrackBusy(counter)

	feed := notify.NewFeed(cfg.Notify.FeedSize)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Workers:         cfg.Notify.Workers,
		BufferSize:      cfg.Notify.BufferSize,
		DefaultDuration: cfg.Notify.Duration,
		Logger:          logr,
	}, notify.LogHandler(logr.Named("notify")), feed.Handler())
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	validate := service.NewValidator()
	deps := service.SyncDeps{
		Store:    backend.store,
		Busy:     counter,
		Notifier: dispatcher,
		Metrics:  metrics,
		Logger:   logr,
	}
	courses := service.NewCourseService(deps, validate)
	students := service.NewStudentService(deps, validate)
	enrollments := service.NewEnrollmentService(deps, students, courses, validate)
	auth := service.NewAuthService(backend.credentials, validate, logr.Named("auth"), dispatcher, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	exports := service.NewExportService(courses, students, enrollments, logr.Named("export"), nil, nil)

	for _, starter := range []interface{ Start(context.Context) error }{courses.Sync(), students.Sync(), enrollments.Sync()} {
		if err := starter.Start(ctx); err != nil {
			// The sync is marked failed and /ready reports it; keep serving the rest.
			logr.Error("collection sync did not start", zap.Error(err))
		}
	}

	router := newRouter(cfg, logr, app{
		auth:        auth,
		courses:     courses,
		students:    students,
		enrollments: enrollments,
		exports:     exports,
		busy:        counter,
		notifier:    dispatcher,
		feed:        feed,
		metrics:     metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
