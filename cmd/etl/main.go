package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sparkify/internal/batch"
	"sparkify/internal/config"
	"sparkify/internal/logging"
	"sparkify/internal/metrics"
	"sparkify/internal/metrics/datadog"
	"sparkify/internal/metrics/prompush"
	"sparkify/internal/storage"
	"sparkify/internal/transform"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "sparkify/internal/storage/all"
)

// main loads song metadata then event logs into the configured database.
// With no flags and no environment it reads data/song_data and data/log_data
// and connects to the local sparkifydb.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// appDeps are the side-effecting collaborators of runMain, swapped in tests.
type appDeps struct {
	loadConfig  func(path string) (*config.Config, error)
	newLogger   func(level string, w io.Writer) (*zap.Logger, error)
	initMetrics func(ctx context.Context, mc config.MetricsConfig, runID string) (func(), error)
	openGateway func(ctx context.Context, cfg storage.Config) (storage.Gateway, error)
	newRunID    func() string
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		newLogger:   logging.NewWriter,
		initMetrics: initMetrics,
		openGateway: storage.Open,
		newRunID:    uuid.NewString,
	}
}

const usageLine = "usage: etl [-config path] [-validate] [-v]"

// runMain is main without the process exit, returning the exit code:
// 0 success, 1 runtime failure, 2 usage or configuration error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "config.yaml", "optional YAML config path (missing file = defaults + environment)")
	validate := fs.Bool("validate", false, "validate the configuration and exit")
	verbose := fs.Bool("v", false, "enable debug logs")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
		fmt.Fprintln(stderr, "\n"+config.Usage())
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n%s\n", fs.Args(), usageLine)
		return 2
	}

	cfg, err := deps.loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 2
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", *cfgPath)
		return 2
	}
	if *validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	log, err := deps.newLogger(cfg.Log.Level, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	runID := deps.newRunID()
	log = log.With(zap.String("run_id", runID))
	restore := zap.ReplaceGlobals(log)
	defer restore()

	cleanup, err := deps.initMetrics(ctx, cfg.Metrics, runID)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	stmts, err := loadStatementOverrides(cfg.Database.StatementsDir)
	if err != nil {
		fmt.Fprintf(stderr, "load statements: %v\n", err)
		return 1
	}

	dsn, err := cfg.Database.ConnectionString()
	if err != nil {
		fmt.Fprintf(stderr, "database: %v\n", err)
		return 2
	}
	log.Info("connecting",
		zap.String("kind", cfg.Database.Kind),
		zap.String("dsn", logging.SanitizeDSN(dsn)),
	)

	start := time.Now()
	gw, err := deps.openGateway(ctx, storage.Config{Kind: cfg.Database.Kind, DSN: dsn, Statements: stmts})
	if err != nil {
		fmt.Fprintf(stderr, "open database: %s\n", logging.SanitizeError(err))
		return 1
	}
	defer func() {
		if err := gw.Close(); err != nil {
			log.Warn("close database", zap.String("error", logging.SanitizeError(err)))
		}
	}()

	d := batch.New(gw, stdout, batch.WithLogger(log), batch.WithPattern(cfg.Data.Pattern))
	passes := []struct {
		root string
		t    transform.Transformer
	}{
		{cfg.Data.SongRoot, transform.SongFile{}},
		{cfg.Data.LogRoot, transform.LogFile{}},
	}
	for _, p := range passes {
		if _, err := d.Run(ctx, p.root, p.t); err != nil {
			fmt.Fprintf(stderr, "run: %s\n", logging.SanitizeError(err))
			return 1
		}
	}

	log.Info("run complete", zap.Duration("elapsed", time.Since(start)))
	return 0
}

func loadStatementOverrides(dir string) (storage.Statements, error) {
	if dir == "" {
		return storage.Statements{}, nil
	}
	return storage.LoadStatementOverrides(os.DirFS(dir), ".")
}

// ---- metrics wiring ----

// metricsBackend is the lifecycle half of a backend that owns a flush loop.
type metricsBackend interface {
	Close() error
}

// flusher is a backend that publishes only when flushed.
type flusher interface {
	Flush() error
}

// Seams for tests. Production values wire the real backends.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string, grouping map[string]string) (flusher, error) {
		return prompush.NewBackend(job, url, grouping)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = func(format string, v ...any) {
		zap.S().Warnf(format, v...)
	}
)

// initMetrics installs the configured metrics backend.
//
// The returned cleanup is never nil and is safe to call once; it performs the
// backend's final flush and logs (does not return) any error from it.
//
// Errors:
//   - unknown backend name.
//   - backend construction failure.
func initMetrics(ctx context.Context, mc config.MetricsConfig, runID string) (func(), error) {
	noop := func() {}

	switch mc.Backend {
	case "", "none":
		return noop, nil

	case "datadog":
		tags := datadog.ParseTagsCSV(mc.Tags)
		if runID != "" {
			tags = append(tags, "run_id:"+runID)
		}
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    mc.Job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, datadog.WrapInitErr(err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "pushgateway":
		grouping := map[string]string{}
		if runID != "" {
			grouping["run_id"] = runID
		}
		b, err := newPushBackend(mc.Job, mc.PushgatewayURL, grouping)
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog|pushgateway)", mc.Backend)
	}
}
