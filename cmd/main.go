package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"icstask/internal/config"
	"icstask/internal/scheduler"
	"icstask/internal/syncer"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Exit statuses.
const (
	exitFailed     = 1 // The pass could not start, or its state was not saved
	exitItemErrors = 2 // The pass completed but some tasks failed
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(exitFailed)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "icstask",
		Usage: "Sync iCalendar events into a Todoist project.",
		Commands: []*cli.Command{
			syncCommand(),
			checkCommand(),
			stateCommand(),
		},
	}
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file (.json, .yaml or .toml)", EnvVars: []string{"ICSTASK_CONFIG"}},
		&cli.StringFlag{Name: "source", Usage: "Calendar source: ics, caldav or google"},
		&cli.StringFlag{Name: "ical-url", Usage: "URL to .ics calendar"},
		&cli.StringFlag{Name: "todoist-token", Usage: "Todoist API token (or set TODOIST_API_TOKEN)"},
		&cli.StringFlag{Name: "project-id", Usage: "Todoist project id"},
		&cli.StringFlag{Name: "marker", Usage: "Marker used to tag tasks with the event UID (default: ICUID:)"},
		&cli.StringFlag{Name: "update-policy", Usage: "When to update existing tasks: due-only or content-or-due"},
		&cli.StringFlag{Name: "identity", Usage: "How synced tasks are recognized: store or marker"},
		&cli.StringFlag{Name: "store", Usage: "State store for the store strategy: file, sqlite or memory"},
		&cli.StringFlag{Name: "state-path", Usage: "Path of the state file or database"},
		&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
		&cli.IntFlag{Name: "limit", Usage: "Max number of events to process (for testing)"},
		&cli.DurationFlag{Name: "timeout", Usage: "Timeout for each network call"},
		&cli.IntFlag{Name: "concurrency", Usage: "Task manager calls in flight at once"},
		&cli.Float64Flag{Name: "rate-limit", Usage: "Task manager requests per second (0 disables)"},
	}
}

func syncCommand() *cli.Command {
	flags := append(configFlags(),
		&cli.BoolFlag{Name: "once", Usage: "Run the sync cycle once and exit."},
		&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds. Overrides --once."},
		&cli.StringFlag{Name: "schedule", Usage: "Run sync on a cron schedule (e.g. '*/15 * * * *'). Overrides --watch."},
		&cli.BoolFlag{Name: "json", Usage: "Print the report as JSON."},
	)

	return &cli.Command{
		Name:  "sync",
		Usage: "Run the calendar synchronization process.",
		Flags: flags,
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			if cfg.DryRun {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			s, closeFn, err := buildSyncer(c.Context, logger, cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			defer closeFn()

			pass := func(ctx context.Context) error {
				report, err := s.Sync(ctx)
				if report != nil {
					printReport(c.App.Writer, report, c.Bool("json"))
				}
				return err
			}

			switch {
			case c.IsSet("schedule"):
				return scheduler.Cron(c.Context, logger, c.String("schedule"), time.UTC, pass)
			case c.IsSet("watch"):
				interval := time.Duration(c.Int("watch")) * time.Second
				return scheduler.Every(c.Context, logger, interval, pass)
			}

			// --once is the default behavior if neither --watch nor --schedule is set
			logger.Info("Running a single sync cycle.")
			report, err := s.Sync(c.Context)
			if report != nil {
				printReport(c.App.Writer, report, c.Bool("json"))
			}
			return exitFor(report, err)
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate the configuration and show what a sync would do, without changing anything.",
		Flags: configFlags(),
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			cfg.DryRun = true

			tasks, err := newTodoistClient(c.Context, logger, cfg).ListTasks(c.Context)
			if err != nil {
				return cli.Exit(fmt.Sprintf("check failed: cannot list tasks: %v", err), exitFailed)
			}
			fmt.Fprintf(c.App.Writer, "Project %s has %d active task(s).\n", cfg.ProjectID, len(tasks))

			s, closeFn, err := buildSyncer(c.Context, logger, cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			defer closeFn()

			report, err := s.Sync(c.Context)
			if err != nil {
				return cli.Exit(fmt.Sprintf("check failed: %v", err), exitFailed)
			}
			printReport(c.App.Writer, report, false)
			fmt.Fprintln(c.App.Writer, "Configuration OK.")
			return nil
		},
	}
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Print the stored sync state.",
		Flags: configFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigUnchecked(c)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			if cfg.Identity == config.IdentityMarker {
				return cli.Exit("the marker strategy keeps no local state; use 'check' to see recovered tasks", exitFailed)
			}

			store, closeFn, err := openStore(cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			defer closeFn()

			set, err := store.Load(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		},
	}
}

// loadConfig layers defaults, config file, environment and flags, then validates.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfigUnchecked(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadConfigUnchecked(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	str := func(dst *string, name string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	str(&cfg.Source, "source")
	str(&cfg.ICalURL, "ical-url")
	str(&cfg.TodoistToken, "todoist-token")
	str(&cfg.ProjectID, "project-id")
	str(&cfg.Marker, "marker")
	str(&cfg.Identity, "identity")
	str(&cfg.Store, "store")
	str(&cfg.StatePath, "state-path")
	if c.IsSet("update-policy") {
		cfg.Policy = syncer.Policy(c.String("update-policy"))
	}
	if c.IsSet("dry-run") {
		cfg.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("limit") {
		cfg.Limit = c.Int("limit")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Float64("rate-limit")
	}
	return cfg, nil
}

// exitFor maps the outcome of a single pass to an exit status.
func exitFor(report *syncer.Report, err error) error {
	switch {
	case err != nil && errors.Is(err, syncer.ErrStateNotSaved):
		return cli.Exit(fmt.Sprintf("pass completed but state was not saved: %v", err), exitFailed)
	case err != nil:
		return cli.Exit(err.Error(), exitFailed)
	case !report.OK():
		return cli.Exit(fmt.Sprintf("pass completed with %d failed item(s)", len(report.Errors)), exitItemErrors)
	}
	return nil
}

func printReport(w io.Writer, report *syncer.Report, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	fmt.Fprintf(w, "Done. %s\n", report)
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  %s %s: %s\n", e.Op, e.UID, e.Message)
	}
}

// setupLogger writes text logs to stderr, or to a rotating file when LOG_FILE is set.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := os.Getenv("LOG_FILE"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
}
