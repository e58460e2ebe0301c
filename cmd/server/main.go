// Package main is the entry point for the safety report service.
//
// It loads configuration, opens the database pool, wires the report
// pipeline (submission store, renderers, email delivery, optional S3 archive
// and CloudWatch metrics), installs the cron triggers of active schedules and
// serves the schedule API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"safetyreports/internal/api/handlers"
	"safetyreports/internal/archive"
	"safetyreports/internal/config"
	"safetyreports/internal/core"
	"safetyreports/internal/db"
	"safetyreports/internal/external"
	"safetyreports/internal/notifications/email"
	"safetyreports/internal/reports"
	"safetyreports/internal/reports/document"
	"safetyreports/internal/reports/workbook"
	"safetyreports/internal/scheduler"
	"safetyreports/internal/telemetry"
	"safetyreports/internal/types"
)

const localEnv = "local"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(newSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("safety report service starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"timezone", cfg.Scheduler.Timezone,
	)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, cfg.Database.URL.Unmask(), logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	sched, closeArchive, err := buildScheduler(cfg, awsCfg, pool, loc, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	scheduleRepo := db.NewScheduleRepository(pool)
	service := scheduler.NewService(scheduleRepo, db.NewRunHistoryRepository(pool), sched, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{ProbeName: "database", Target: pool})
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		handlers.NewScheduleHandler(service, logger).RegisterRoutes)
	srv.MountRoutes()

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	} else {
		logger.Warn("scheduler disabled, reports only run on demand")
	}

	return serve(ctx, srv, sched, cfg, logger)
}

// buildScheduler wires the report pipeline. The returned func releases the
// archiver's encoder.
func buildScheduler(cfg *config.Config, awsCfg aws.Config, pool *pgxpool.Pool, loc *time.Location, logger *slog.Logger) (*scheduler.Scheduler, func(), error) {
	provider, err := external.NewEmailProvider(cfg.Email, awsCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating email provider: %w", err)
	}

	deliverer := email.NewDeliverer(email.Config{
		Provider:   provider,
		From:       types.SenderIdentity{Address: cfg.Email.FromAddress, Name: cfg.Email.FromName},
		OverrideTo: cfg.Email.OverrideTo,
		Logger:     logger,
	})

	var (
		archiver     archive.Archiver = archive.NopArchiver{}
		closeArchive                  = func() {}
	)
	if bucket := cfg.AWS.ReportArchiveBucket; bucket != "" {
		s3Archiver, err := archive.NewS3Archiver(s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				o.UsePathStyle = true
			}
		}), bucket, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating report archiver: %w", err)
		}
		archiver = s3Archiver
		closeArchive = func() { _ = s3Archiver.Close() }
		logger.Info("report archive enabled", "bucket", bucket)
	}

	var metrics telemetry.RunMetrics = telemetry.NopRunMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = telemetry.NewCloudWatchRunMetrics(cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		}), cfg.Observability.MetricNamespace, logger)
	}

	sched := scheduler.New(scheduler.Config{
		Schedules:   db.NewScheduleRepository(pool),
		Submissions: db.NewSubmissionRepository(pool),
		Runs:        db.NewRunHistoryRepository(pool),
		Renderers:   []reports.Renderer{document.New(), workbook.New()},
		Deliverer:   deliverer,
		Archiver:    archiver,
		Metrics:     metrics,
		Location:    loc,
		RunTimeout:  cfg.Scheduler.RunTimeout,
		Clock:       types.RealClock{},
		Logger:      logger,
	})
	return sched, closeArchive, nil
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// serve runs the HTTP server until ctx is cancelled, then drains requests and
// waits for in-flight report runs.
func serve(ctx context.Context, srv *core.Server, sched *scheduler.Scheduler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler did not stop cleanly", "error", err)
	}

	if runErr == nil {
		logger.Info("server stopped cleanly")
	}
	return runErr
}

// newSecretProvider returns the SSM provider outside local development.
func newSecretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == localEnv {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
}

// newLogger creates a JSON slog.Logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
