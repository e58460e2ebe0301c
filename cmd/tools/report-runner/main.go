// Package main implements the report-runner CLI for executing a report
// schedule by hand, outside the server's cron loop.
//
// Usage:
//
//	go run ./cmd/tools/report-runner --list
//	go run ./cmd/tools/report-runner --schedule=sch_123
//	go run ./cmd/tools/report-runner --schedule=sch_123 --dry-run --out=./out
//
// A normal run goes through the same pipeline as a manual API run: the report
// is delivered with the configured email provider and the run is recorded on
// the schedule. --dry-run renders and "sends" through the stub provider,
// records nothing, and with --out writes the attachments to disk.
//
// Configuration is read the same way as the server (environment, .env, SSM).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/robfig/cron/v3"

	"safetyreports/internal/archive"
	"safetyreports/internal/config"
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

func main() {
	scheduleFlag := flag.String("schedule", "", "ID of the schedule to run")
	listFlag := flag.Bool("list", false, "List schedules with their next trigger time and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Render and deliver through the stub provider without recording the run")
	outFlag := flag.String("out", "", "With --dry-run, directory to write the rendered attachments to")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: report-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run a report schedule immediately.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if !*listFlag && *scheduleFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --schedule or --list is required\n\n")
		flag.Usage()
		os.Exit(2)
	}
	if *outFlag != "" && !*dryRunFlag {
		fmt.Fprintf(os.Stderr, "error: --out requires --dry-run\n")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var err error
	if *listFlag {
		err = listSchedules(ctx, os.Stdout)
	} else {
		err = runSchedule(ctx, *scheduleFlag, *dryRunFlag, *outFlag, logger)
	}
	if err != nil {
		logger.Error("report-runner failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *time.Location, error) {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loc, nil
}

func listSchedules(ctx context.Context, out io.Writer) error {
	cfg, loc, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	schedules, err := db.NewScheduleRepository(pool).List(ctx)
	if err != nil {
		return err
	}
	return writeScheduleTable(out, schedules, time.Now().In(loc))
}

// writeScheduleTable prints one row per schedule. Inactive schedules and
// schedules with an unusable recurrence show "-" as their next trigger.
func writeScheduleTable(out io.Writer, schedules []*types.Schedule, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFREQUENCY\tACTIVE\tNEXT RUN\tLAST RUN")
	for _, sch := range schedules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			sch.ID, sch.Name, sch.Frequency, sch.IsActive, nextRun(sch, now), lastRun(sch, now.Location()))
	}
	return tw.Flush()
}

func nextRun(sch *types.Schedule, now time.Time) string {
	if !sch.IsActive {
		return "-"
	}
	spec, err := scheduler.CronSpec(sch)
	if err != nil {
		return "-"
	}
	parsed, err := cron.ParseStandard(spec)
	if err != nil {
		return "-"
	}
	return parsed.Next(now).Format("2006-01-02 15:04 MST")
}

func lastRun(sch *types.Schedule, loc *time.Location) string {
	if sch.LastRunAt == nil {
		return "never"
	}
	status := "unknown"
	if sch.LastRunStatus != nil {
		status = string(*sch.LastRunStatus)
	}
	return sch.LastRunAt.In(loc).Format("2006-01-02 15:04") + " (" + status + ")"
}

func runSchedule(ctx context.Context, id string, dryRun bool, outDir string, logger *slog.Logger) error {
	cfg, loc, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var (
		provider external.EmailProvider
		stub     *external.StubEmailProvider
		store    scheduler.ScheduleStore = db.NewScheduleRepository(pool)
		history  scheduler.RunHistory    = db.NewRunHistoryRepository(pool)
	)
	if dryRun {
		stub = external.NewStubEmailProvider(logger)
		provider = stub
		store = dryRunStore{store}
		history = dryRunHistory{}
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		if provider, err = external.NewEmailProvider(cfg.Email, awsCfg, logger); err != nil {
			return err
		}
	}

	sched := scheduler.New(scheduler.Config{
		Schedules:   store,
		Submissions: db.NewSubmissionRepository(pool),
		Runs:        history,
		Renderers:   []reports.Renderer{document.New(), workbook.New()},
		Deliverer: email.NewDeliverer(email.Config{
			Provider:   provider,
			From:       types.SenderIdentity{Address: cfg.Email.FromAddress, Name: cfg.Email.FromName},
			OverrideTo: cfg.Email.OverrideTo,
			Logger:     logger,
		}),
		Archiver:   archive.NopArchiver{},
		Metrics:    telemetry.NopRunMetrics{},
		Location:   loc,
		RunTimeout: cfg.Scheduler.RunTimeout,
		Clock:      types.RealClock{},
		Logger:     logger,
	})

	res, err := sched.Execute(ctx, id, types.TriggerManual)
	if err != nil {
		return err
	}
	logger.Info("report run finished",
		"schedule_id", res.ScheduleID,
		"status", res.Status,
		"window", res.Window.String(),
		"submissions", res.SubmissionCount,
		"attachments", res.Attachments,
		"dry_run", dryRun,
	)

	if dryRun && outDir != "" {
		return writeAttachments(outDir, stub.Sent())
	}
	return nil
}

func writeAttachments(dir string, sent []types.EmailMessage) error {
	if len(sent) == 0 {
		return errors.New("no message was produced")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, att := range sent[len(sent)-1].Attachments {
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(att.Filename)), att.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", att.Filename, err)
		}
	}
	return nil
}

// dryRunStore leaves the schedule's last-run fields untouched.
type dryRunStore struct {
	scheduler.ScheduleStore
}

func (dryRunStore) RecordRun(context.Context, string, time.Time, types.RunStatus) error { return nil }

// dryRunHistory records nothing.
type dryRunHistory struct{}

func (dryRunHistory) Start(context.Context, string, types.RunTrigger, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (dryRunHistory) Finish(context.Context, int64, types.RunOutcome) error { return nil }
