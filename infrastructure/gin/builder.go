package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wepublish/dorfkoenig/infrastructure/jwt"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
)

// ServerBuilder assembles a Server fluently.
type ServerBuilder struct {
	config         *Config
	logger         logger.Logger
	setupRoutes    func(*gin.Engine)
	healthChecks   map[string]HealthCheck
	metricsHandler http.Handler
}

// NewServerBuilder starts a builder with default config.
func NewServerBuilder(serviceName string, port int) *ServerBuilder {
	return &ServerBuilder{
		config:       NewConfig(serviceName, port),
		healthChecks: make(map[string]HealthCheck),
	}
}

func (b *ServerBuilder) WithLogger(log logger.Logger) *ServerBuilder {
	b.logger = log
	return b
}

func (b *ServerBuilder) WithDebug(debug bool) *ServerBuilder {
	b.config.Debug = debug
	return b
}

func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.config.ServiceVersion = version
	return b
}

func (b *ServerBuilder) WithCORSOrigins(origins []string) *ServerBuilder {
	b.config.CORS.AllowedOrigins = origins
	return b
}

func (b *ServerBuilder) WithTimeouts(read, write, idle time.Duration) *ServerBuilder {
	b.config.ReadTimeout = read
	b.config.WriteTimeout = write
	b.config.IdleTimeout = idle
	return b
}

// WithDatabaseHealthCheck registers a required "database" check.
func (b *ServerBuilder) WithDatabaseHealthCheck(ping func(ctx context.Context) error) *ServerBuilder {
	b.healthChecks["database"] = HealthCheck{Ping: ping}
	return b
}

// WithRedisHealthCheck registers an optional "redis" check.
func (b *ServerBuilder) WithRedisHealthCheck(ping func(ctx context.Context) error) *ServerBuilder {
	b.healthChecks["redis"] = HealthCheck{Ping: ping, Optional: true}
	return b
}

// WithMetrics exposes h at GET /metrics.
func (b *ServerBuilder) WithMetrics(h http.Handler) *ServerBuilder {
	b.metricsHandler = h
	return b
}

func (b *ServerBuilder) WithRoutes(setup func(*gin.Engine)) *ServerBuilder {
	b.setupRoutes = setup
	return b
}

// Build creates the server.
func (b *ServerBuilder) Build() *Server {
	if b.logger == nil {
		b.logger = logger.NewNop()
	}

	return NewServer(b.config, b.logger, func(router *gin.Engine) {
		RegisterHealthRoutes(router, b.config, b.healthChecks)
		if b.metricsHandler != nil {
			router.GET("/metrics", gin.WrapH(b.metricsHandler))
		}
		if b.setupRoutes != nil {
			b.setupRoutes(router)
		}
	})
}

// SetupAPIRoutesWithPublic returns the unauthenticated and the JWT-protected
// /api/v1 groups. An empty secret leaves the protected group open, which is
// only meant for local development.
func SetupAPIRoutesWithPublic(router *gin.Engine, jwtSecret string) (public, protected *gin.RouterGroup) {
	public = router.Group("/api/v1")
	protected = router.Group("/api/v1")
	if jwtSecret != "" {
		protected.Use(jwt.Middleware(jwtSecret))
	}
	return public, protected
}
