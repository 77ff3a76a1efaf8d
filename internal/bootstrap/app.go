package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	infralogger "github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/profiling"
	"github.com/wepublish/dorfkoenig/internal/config"
	"github.com/wepublish/dorfkoenig/internal/schedule"
)

const dispatchTimeout = 30 * time.Minute

// App holds the shared resources of one process.
type App struct {
	Config   *config.Config
	Log      infralogger.Logger
	DB       *sqlx.DB
	Redis    *goredis.Client
	Services *Services
}

// New loads config, connects the stores and wires the services. Call Close
// when done.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := SetupDatabase(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	app := &App{Config: cfg, Log: log, DB: db, Redis: SetupRedis(ctx, cfg, log)}

	svc, err := SetupServices(ctx, cfg, db, app.Redis, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Services = svc
	return app, nil
}

// Close releases the connections and flushes the logger.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Error("Failed to close redis", infralogger.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Error("Failed to close database", infralogger.Error(err))
	}
	_ = a.Log.Sync()
}

// Serve runs the HTTP API until ctx is cancelled or a signal arrives.
func Serve(ctx context.Context, configPath string) error {
	app, err := New(ctx, configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	profiling.Start(ctx, app.Config.Profiling, app.Log)

	server := SetupHTTPServer(app.Config, app.DB, app.Redis, app.Services, app.Log)

	if runErr := server.Run(ctx); runErr != nil {
		app.Log.Error("Server error", infralogger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	app.Log.Info("Server exited")
	return nil
}

// Dispatch runs every due scout once and sweeps expired verifications.
func Dispatch(ctx context.Context, configPath string) (schedule.Summary, error) {
	app, err := New(ctx, configPath)
	if err != nil {
		return schedule.Summary{}, err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	dispatcher := schedule.NewDispatcher(
		app.Services.ScoutRepo,
		app.Services.Executor,
		app.Services.Verification,
		app.Log,
	)
	summary, err := dispatcher.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("dispatch: %w", err)
	}
	return summary, nil
}
