package gin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infragin "github.com/wepublish/dorfkoenig/infrastructure/gin"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
)

func newServer(t *testing.T, b *infragin.ServerBuilder) *ginpkg.Engine {
	t.Helper()
	return b.WithLogger(logger.NewNop()).Build().Router()
}

func TestRequestID_GeneratedAndPropagated(t *testing.T) {
	router := newServer(t, infragin.NewServerBuilder("test", 0).WithRoutes(func(r *ginpkg.Engine) {
		r.GET("/ping", func(c *ginpkg.Context) {
			id, _ := c.Get("request_id")
			c.String(http.StatusOK, "%v", id)
		})
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/ping", http.NoBody))

	id := w.Header().Get("X-Request-ID")
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/ping", http.NoBody)
	req.Header.Set("X-Request-ID", "upstream-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, "upstream-1", w.Body.String())
}

func TestRecovery_Returns500(t *testing.T) {
	router := newServer(t, infragin.NewServerBuilder("test", 0).WithRoutes(func(r *ginpkg.Engine) {
		r.GET("/boom", func(*ginpkg.Context) { panic("boom") })
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/boom", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORS_Preflight(t *testing.T) {
	router := newServer(t, infragin.NewServerBuilder("test", 0).WithCORSOrigins([]string{"https://app.example"}))

	req := httptest.NewRequestWithContext(t.Context(), http.MethodOptions, "/api/v1/scouts", http.NoBody)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth_StatusAggregation(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		redisErr error
		code     int
		status   infragin.HealthStatus
	}{
		{name: "all healthy", code: http.StatusOK, status: infragin.HealthStatusHealthy},
		{name: "redis down degrades", redisErr: errors.New("down"), code: http.StatusOK, status: infragin.HealthStatusDegraded},
		{name: "database down fails", dbErr: errors.New("down"), code: http.StatusServiceUnavailable, status: infragin.HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newServer(t, infragin.NewServerBuilder("dorfkoenig", 0).
				WithDatabaseHealthCheck(func(context.Context) error { return tt.dbErr }).
				WithRedisHealthCheck(func(context.Context) error { return tt.redisErr }))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/health", http.NoBody))
			require.Equal(t, tt.code, w.Code)

			var resp infragin.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, "dorfkoenig", resp.Service)
			assert.Len(t, resp.Checks, 2)
		})
	}
}
