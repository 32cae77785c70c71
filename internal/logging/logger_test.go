package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, production := range []bool{false, true} {
		logger, err := New("emergency-button", production)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Equal(t, !production, logger.Core().Enabled(zap.DebugLevel))
	}
}

func TestForRequestAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	var got *zap.Logger
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ForRequest(base, r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	got.Info("hello")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.NotEmpty(t, fields["request_id"])
}

func TestWithRequestIDEmpty(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithRequestID(base, ""))
}
