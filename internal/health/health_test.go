package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Report {
	t.Helper()
	var r Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	return r
}

func TestLiveness(t *testing.T) {
	h := NewHandler(time.Second)
	h.Register("storage", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusUp, decode(t, rec).Status)
}

func TestReadiness_AllUp(t *testing.T) {
	h := NewHandler(time.Second)
	h.Register("storage", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	report := decode(t, rec)
	assert.Equal(t, StatusUp, report.Status)
	assert.Equal(t, StatusUp, report.Checks["storage"].Status)
}

func TestReadiness_Down(t *testing.T) {
	h := NewHandler(time.Second)
	h.Register("storage", func(context.Context) error { return errors.New("bucket missing") })
	h.Register("disk", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	report := decode(t, rec)
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "bucket missing", report.Checks["storage"].Error)
	assert.Equal(t, StatusUp, report.Checks["disk"].Status)
}

func TestReadiness_TimeoutReachesChecker(t *testing.T) {
	h := NewHandler(10 * time.Millisecond)
	h.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
