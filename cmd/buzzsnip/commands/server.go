package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/buzzsnip/buzzsnip/am"
	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/pulse/janitor"
	"github.com/buzzsnip/buzzsnip/pulse/metrics"
	"github.com/buzzsnip/buzzsnip/pulse/schedule"
	"github.com/buzzsnip/buzzsnip/server"
)

// ServerCmd starts the HTTP API together with the worker pool, the schedule
// ticker and the job janitor
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the BuzzSnip API server",
	Long: `Start the BuzzSnip backend in the foreground.

The server will:
- Open and migrate the database
- Start the worker pool that dispatches jobs to the generation service
- Start the ticker that fires due schedules
- Start the janitor that removes finished jobs past retention
- Reload the admission ceiling and timeouts when the config file changes
- Run until interrupted (Ctrl+C), then drain in-flight requests`,
	RunE: runServer,
}

var (
	serverPort           int
	serverStubGeneration bool
	serverSeed           bool
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides config)")
	ServerCmd.Flags().BoolVar(&serverStubGeneration, "stub-generation", false, "Complete jobs with canned results instead of calling the generation service")
	ServerCmd.Flags().BoolVar(&serverSeed, "seed", false, "Insert the default schedules before serving")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	logger.SetTheme(cfg.GetServerLogTheme())

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	svc.jobs.SetMetrics(m)
	svc.schedules.SetMetrics(m)

	if serverSeed || cfg.Scheduler.SeedDefaults {
		n, err := svc.schedules.SeedDefaults(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to seed default schedules")
		}
		if n > 0 {
			pterm.Info.Printf("Seeded %d default schedules\n", n)
		}
	}

	dispatcher, err := newDispatcher(cfg, serverStubGeneration)
	if err != nil {
		return err
	}

	pool := async.NewWorkerPool(ctx, svc.jobs, dispatcher, async.WorkerPoolConfig{
		Workers:      cfg.Jobs.Workers,
		PollInterval: seconds(cfg.Jobs.PollIntervalSeconds),
		Timeouts:     timeoutsFrom(cfg),
	}, logger.Logger)
	pool.SetMetrics(m)
	pool.Start()

	var ticker *schedule.Ticker
	if cfg.Scheduler.Enabled {
		ticker = schedule.NewTicker(ctx, svc.schedules, svc.jobs, schedule.TickerConfig{
			Interval: seconds(cfg.Scheduler.TickerIntervalSeconds),
		}, logger.Logger)
		ticker.Start()
	} else {
		pterm.Warning.Println("Scheduler disabled, schedules fire only through run")
	}

	jan, err := janitor.New(svc.jobs, janitor.Config{
		Schedule:      cfg.Jobs.CleanupSchedule,
		RetentionDays: cfg.Jobs.CleanupDays,
	}, logger.Logger)
	if err != nil {
		pool.Stop()
		return errors.Wrap(err, "failed to create job janitor")
	}
	jan.Start()

	watcher := startConfigWatcher(svc.jobs, pool)

	srv, err := server.New(ctx, server.Deps{
		Schedules:      svc.schedules,
		Jobs:           svc.jobs,
		Pool:           pool,
		Ticker:         ticker,
		Janitor:        jan,
		Gatherer:       prometheus.DefaultGatherer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DataDir:        cfg.Database.DataDir,
	}, logger.Logger)
	if err != nil {
		pool.Stop()
		return errors.Wrap(err, "failed to create server")
	}

	addr := cfg.GetServerAddress()
	printStartupBanner(cfg, svc.dbPath, addr, dispatcher)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	stopBackground := func() {
		if watcher != nil {
			watcher.Stop()
		}
		if ticker != nil {
			ticker.Stop()
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer stopCancel()
		jan.Stop(stopCtx)
		pool.Stop()
	}

	select {
	case err := <-errChan:
		stopBackground()
		if err != nil {
			return errors.Wrap(err, "server stopped unexpectedly")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
			defer shutdownCancel()
			err := srv.Shutdown(shutdownCtx)
			stopBackground()
			shutdownDone <- err
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

// startConfigWatcher applies the reloadable settings of the active config
// file to the running job core. Returns nil when no config file exists.
func startConfigWatcher(jobs *async.Manager, pool *async.WorkerPool) *am.ConfigWatcher {
	path := am.ActiveConfigFile()
	if path == "" {
		logger.Debugw("No config file found, hot reload disabled")
		return nil
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config hot reload unavailable", "path", path, logger.FieldError, err)
		return nil
	}
	watcher.OnReload(func(cfg *am.Config) error {
		jobs.SetCeiling(cfg.Jobs.MaxConcurrent)
		jobs.SetMaxDuration(cfg.Jobs.MaxVideoDuration)
		pool.SetTimeouts(timeoutsFrom(cfg))
		logger.SetTheme(cfg.GetServerLogTheme())
		logger.Infow("Applied reloaded config",
			logger.FieldCeiling, cfg.Jobs.MaxConcurrent,
			"max_video_duration", cfg.Jobs.MaxVideoDuration)
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()
	return watcher
}
