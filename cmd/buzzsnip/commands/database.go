package commands

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/buzzsnip/buzzsnip/am"
	"github.com/buzzsnip/buzzsnip/db"
	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
	"github.com/buzzsnip/buzzsnip/pulse/dispatch"
	"github.com/buzzsnip/buzzsnip/pulse/schedule"
)

// openDatabase opens and migrates the configured database, creating its
// directory on first use.
func openDatabase(cfg *am.Config) (*sql.DB, string, error) {
	dbPath := cfg.GetDatabasePath()
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return nil, dbPath, errors.Wrapf(err, "failed to create data directory %s", dir)
		}
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, dbPath, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, dbPath, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, dbPath, nil
}

// services is the persistent core shared by the server and one-shot commands
type services struct {
	cfg       *am.Config
	db        *sql.DB
	dbPath    string
	jobs      *async.Manager
	schedules *schedule.Manager
}

// openServices opens the database and wires the job and schedule managers
// against it. Completed schedule-linked jobs report back to their schedule.
func openServices(cfg *am.Config) (*services, error) {
	database, dbPath, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	clock := cadence.SystemClock{}
	jobs := async.NewManager(async.NewSQLStore(database), clock, async.ManagerConfig{
		Ceiling:     cfg.Jobs.MaxConcurrent,
		MaxDuration: cfg.Jobs.MaxVideoDuration,
	}, logger.Logger)
	schedules := schedule.NewManager(schedule.NewSQLStore(database), jobs, clock, logger.Logger)
	jobs.SetRecorder(schedules)

	return &services{
		cfg:       cfg,
		db:        database,
		dbPath:    dbPath,
		jobs:      jobs,
		schedules: schedules,
	}, nil
}

func (s *services) Close() error {
	return s.db.Close()
}

// newDispatcher builds the generation client, or the in-process stub when
// configured or forced.
func newDispatcher(cfg *am.Config, forceStub bool) (async.Dispatcher, error) {
	if forceStub || cfg.Generation.Stub {
		logger.Warnw("Generation service stubbed, jobs complete with canned results")
		return dispatch.NewStub(), nil
	}
	client, err := dispatch.NewClient(dispatch.Config{
		BaseURL:           cfg.Generation.BaseURL,
		RequestsPerMinute: cfg.Generation.RequestsPerMinute,
		BlockPrivateIPs:   cfg.Generation.BlockPrivateIPs,
	}, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create generation client")
	}
	return client, nil
}

// timeoutsFrom converts configured seconds to dispatch deadlines. Zero
// entries fall back to the pool defaults.
func timeoutsFrom(cfg *am.Config) async.Timeouts {
	automated, audio, face, video := cfg.Generation.Timeouts.Durations()
	return async.Timeouts{Automated: automated, Audio: audio, Face: face, Video: video}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
