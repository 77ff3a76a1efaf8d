package profiling_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/profiling"
)

func TestHandler_ServesIndex(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	profiling.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")
}

func TestStart_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		profiling.Start(context.Background(), profiling.Config{}, logger.NewNop())
	})
}
