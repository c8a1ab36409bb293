package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/konsulin-care/focus/internal/handlers"
	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T, startLimit uint) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	settings := func() services.SessionSettings {
		return services.SessionSettings{
			TotalTrials: 4,
			Timing:      services.TimingFromMillis(100, 1900, 3000),
			Scoring:     metrics.DefaultScoringConfig(),
		}
	}
	engine, err := services.NewEngine(services.EngineOptions{
		Clock:    services.NewManualClock(0),
		Settings: settings,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return Setup(zap.NewNop(), Options{
		CPT:            handlers.NewCPTHandler(zap.NewNop(), engine, nil, settings),
		Stream:         handlers.NewStreamHub(zap.NewNop()),
		StartRateLimit: startLimit,
	})
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetup_SecurityHeaders(t *testing.T) {
	r := setupRouter(t, 0)

	w := serve(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestSetup_Routes(t *testing.T) {
	r := setupRouter(t, 0)

	w := serve(r, http.MethodGet, "/api/cpt/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phase":"idle"`)

	w = serve(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = serve(r, http.MethodGet, "/api/cpt/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodPost, "/api/cpt/sessions", `{"age": 30}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSetup_RateLimitsSessionStarts(t *testing.T) {
	r := setupRouter(t, 2)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/cpt/sessions", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/cpt/sessions", `{}`).Code)
	w := serve(r, http.MethodPost, "/api/cpt/sessions", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many requests")

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/cpt/status", "").Code)
}
