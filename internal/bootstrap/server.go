package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	infragin "github.com/wepublish/dorfkoenig/infrastructure/gin"
	infralogger "github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/api"
	"github.com/wepublish/dorfkoenig/internal/config"
	"github.com/wepublish/dorfkoenig/internal/database"
)

// SetupHTTPServer creates and configures the HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	db *sqlx.DB,
	rdb *goredis.Client,
	svc *Services,
	log infralogger.Logger,
) *infragin.Server {
	handlers := api.Handlers{
		Scouts:  api.NewScoutHandler(svc.Scouts, svc.Executor, svc.Executions, svc.Units),
		Units:   api.NewUnitHandler(svc.UnitService),
		Drafts:  api.NewDraftHandler(svc.Verification),
		Compose: api.NewComposeHandler(svc.Compose),
	}

	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithCORSOrigins(cfg.Service.CORSOrigins).
		WithDatabaseHealthCheck(database.Ping(db)).
		WithMetrics(svc.Telemetry.Handler()).
		WithRoutes(func(router *gin.Engine) {
			api.RegisterRoutes(router, handlers, cfg.Auth.JWTSecret, svc.Telemetry.GinMiddleware())
		})

	if rdb != nil {
		builder = builder.WithRedisHealthCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("Auth disabled, protected routes accept X-User-ID")
	}

	return builder.Build()
}
