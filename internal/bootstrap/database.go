package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	infralogger "github.com/wepublish/dorfkoenig/infrastructure/logger"
	infraredis "github.com/wepublish/dorfkoenig/infrastructure/redis"
	"github.com/wepublish/dorfkoenig/internal/config"
	"github.com/wepublish/dorfkoenig/internal/database"
)

// SetupDatabase creates a database connection.
func SetupDatabase(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*sqlx.DB, error) {
	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	log.Info("Connected to database",
		infralogger.String("host", cfg.Database.Host),
		infralogger.String("database", cfg.Database.DBName),
	)
	return db, nil
}

// SetupRedis connects to Redis when configured. It returns nil when Redis is
// disabled or unreachable; dependent features then run without it.
func SetupRedis(ctx context.Context, cfg *config.Config, log infralogger.Logger) *goredis.Client {
	if !cfg.Redis.Enabled() {
		log.Info("Redis disabled, direct scrape change tracking and upload limits are off")
		return nil
	}

	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis not available, continuing without it",
			infralogger.String("redis_address", cfg.Redis.Address),
			infralogger.Error(err),
		)
		return nil
	}

	log.Info("Redis connected", infralogger.String("redis_address", cfg.Redis.Address))
	return client
}
