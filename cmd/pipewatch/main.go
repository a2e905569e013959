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

	"github.com/alecthomas/kong"
	"github.com/okarhu/pipewatch/internal"
	"github.com/okarhu/pipewatch/internal/engine"
	"github.com/okarhu/pipewatch/internal/executor"
	"github.com/okarhu/pipewatch/internal/metrics"
	"github.com/okarhu/pipewatch/internal/pipeline"
	"github.com/okarhu/pipewatch/internal/service"
	"github.com/okarhu/pipewatch/internal/settings"
	"github.com/okarhu/pipewatch/internal/store"
	"github.com/okarhu/pipewatch/internal/trigger"
	"github.com/okarhu/pipewatch/internal/vcs"
	"github.com/okarhu/pipewatch/internal/workspace"
)

// Exit codes: 0 passed, 1 failed, 2 cancelled, 3 definition or VCS error.
const (
	exitPassed    = 0
	exitFailed    = 1
	exitCancelled = 2
	exitAborted   = 3
)

var CLI struct {
	Verbose bool `short:"v" help:"Enable verbose logging"`

	Run struct {
		Repository string `arg:"" help:"Repository URL to run the pipeline against"`
		Ref        string `short:"r" help:"Branch to build" default:"main"`
		Pipeline   string `short:"p" help:"Pipeline script path" default:"pipewatch.yml"`
	} `cmd:"" help:"Run the pipeline once against the current tip of the ref"`

	Watch struct {
		Repository string        `arg:"" help:"Repository URL to watch"`
		Ref        string        `short:"r" help:"Branch to watch" default:"main"`
		Pipeline   string        `short:"p" help:"Pipeline script path" default:"pipewatch.yml"`
		Interval   time.Duration `short:"i" help:"Polling interval" default:"30s"`
		Schedule   string        `short:"s" help:"Optional cron schedule for unconditional runs"`
	} `cmd:"" help:"Poll the ref and run the pipeline on every new commit"`

	Validate struct {
		Pipeline string `arg:"" help:"Pipeline script path"`
	} `cmd:"" help:"Parse and validate a pipeline script without running it"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()

	switch kctx.Command() {
	case "run <repository>":
		os.Exit(runOnce())
	case "watch <repository>":
		os.Exit(watch())
	case "validate <pipeline>":
		os.Exit(validate())
	}
}

func runOnce() int {
	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb)

	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	manager := workspace.NewManager(settings.Settings.WorkspaceRoot, newVCSClient())

	exec, collector, cleanup, err := newExecutor()
	if err != nil {
		slog.Error("err setting up executor", "error", err)
		return exitFailed
	}
	defer cleanup()

	runner := service.NewRunner(runStore, manager, exec, settings.Settings.DefaultStepTimeout).
		WithCollector(collector).
		WithOutput(func(out string) { fmt.Print(out) })

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run, err := runStore.CreateRun(ctx, CLI.Run.Repository, CLI.Run.Ref)
	if err != nil {
		slog.Error("err creating run", "error", err)
		return exitFailed
	}

	result, err := runner.Process(ctx, &service.RunRequest{
		Run:          run,
		PipelinePath: CLI.Run.Pipeline,
	})
	if err != nil {
		var defErr *pipeline.DefinitionError
		var vcsErr *vcs.VCSError
		if errors.As(err, &defErr) || errors.As(err, &vcsErr) {
			slog.Error("run aborted", "error", err)
			return exitAborted
		}
		slog.Error("err processing run", "error", err)
		return exitFailed
	}

	printSummary(run.RunID, result)
	switch result.Outcome {
	case engine.OutcomePassed:
		return exitPassed
	case engine.OutcomeCancelled:
		return exitCancelled
	default:
		return exitFailed
	}
}

func watch() int {
	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb)

	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	client := newVCSClient()
	manager := workspace.NewManager(settings.Settings.WorkspaceRoot, client)

	exec, collector, cleanup, err := newExecutor()
	if err != nil {
		slog.Error("err setting up executor", "error", err)
		return exitFailed
	}
	defer cleanup()

	runner := service.NewRunner(runStore, manager, exec, settings.Settings.DefaultStepTimeout).
		WithCollector(collector)
	rq := service.NewRunQueue(runner, settings.Settings.QueueSize)
	go rq.Run()
	defer rq.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if addr := settings.Settings.MetricsAddr; addr != "" {
		go func() {
			slog.Info("serving metrics", "addr", addr)
			if err := metrics.Serve(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	enqueue := func() {
		r, err := runStore.CreateRun(context.Background(), CLI.Watch.Repository, CLI.Watch.Ref)
		if err != nil {
			slog.Error("err creating run", "error", err)
			return
		}
		if err := rq.Enqueue(&service.RunRequest{
			Run:          r,
			PipelinePath: CLI.Watch.Pipeline,
		}); err != nil {
			slog.Warn("run rejected", "run_id", r.RunID, "error", err)
		}
	}

	if CLI.Watch.Schedule != "" {
		scheduler := trigger.NewScheduler()
		jobID, err := scheduler.Schedule(CLI.Watch.Schedule, enqueue)
		if err != nil {
			slog.Error("err scheduling runs", "schedule", CLI.Watch.Schedule, "error", err)
			return exitFailed
		}
		scheduler.Start()
		defer scheduler.Shutdown()
		slog.Info("scheduled runs enabled", "schedule", CLI.Watch.Schedule, "job_id", jobID)
	}

	w := trigger.NewWatcher(client, CLI.Watch.Repository, CLI.Watch.Ref, CLI.Watch.Interval)
	go w.Watch(ctx)

	slog.Info("watching repository",
		"repository", CLI.Watch.Repository,
		"ref", CLI.Watch.Ref,
		"interval", CLI.Watch.Interval,
	)
	for ev := range w.Events() {
		metrics.TriggerEventsTotal.Inc()
		slog.Info("new commit observed", "ref", ev.Ref, "commit", ev.Commit)
		enqueue()
	}

	slog.Info("shutting down")
	return exitPassed
}

func validate() int {
	if _, err := pipeline.Load(CLI.Validate.Pipeline); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitAborted
	}
	fmt.Printf("%s: pipeline script is valid\n", CLI.Validate.Pipeline)
	return exitPassed
}

func newVCSClient() *vcs.Client {
	client := vcs.NewClient()
	if settings.Settings.GitToken != "" {
		client = client.WithTokenAuth(settings.Settings.GitUsername, settings.Settings.GitToken)
	}
	return client
}

// newExecutor picks the local shell executor, or an SSH executor when an
// agent host is configured. The returned cleanup closes the SSH connection.
func newExecutor() (executor.Executor, service.ArtifactCollector, func(), error) {
	s := settings.Settings
	if s.AgentHost == "" {
		return executor.NewLocalExecutor(),
			service.NewLocalCollector(s.ArtifactsDir),
			func() {},
			nil
	}

	key, err := os.ReadFile(s.AgentKeyPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("err reading agent key: %w", err)
	}
	sshExec, err := executor.NewSSHExecutor(s.AgentUser, s.AgentHost, key)
	if err != nil {
		return nil, nil, nil, err
	}
	return sshExec,
		service.NewSFTPCollector(s.ArtifactsDir, sshExec.Client()),
		func() { _ = sshExec.Close() },
		nil
}

func printSummary(runID int64, result *engine.Run) {
	commit := result.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	fmt.Printf("\nRun #%d %s (commit %s, took %s)\n",
		runID,
		result.Outcome,
		commit,
		result.EndedOn.Sub(result.StartedOn).Round(time.Millisecond),
	)
	for _, sr := range result.Stages {
		fmt.Printf("  %-20s %s\n", sr.Stage, sr.Status)
	}
}
