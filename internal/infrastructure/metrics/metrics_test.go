package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/store-approval/internal/application/dispatcher"
	"github.com/garyjia/store-approval/internal/application/monitor"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/event"
)

var now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func TestRecorder_Handle(t *testing.T) {
	r := NewRecorder(Config{})
	ctx := context.Background()

	events := []*event.Event{
		event.NewEvent(event.TypeActionRecorded, "i1", "AP-1", map[string]any{event.KeyAction: string(entity.ActionApprove)}, now),
		event.NewEvent(event.TypeActionRecorded, "i1", "AP-1", map[string]any{event.KeyAction: string(entity.ActionApprove)}, now),
		event.NewEvent(event.TypeInstanceRejected, "i2", "AP-2", nil, now),
		event.NewEvent(event.TypeActionRefused, "i1", "AP-1", map[string]any{
			event.KeyAction: string(entity.ActionApprove),
			event.KeyCode:   string(entity.CodeNotAuthorized),
		}, now),
		event.NewEvent(event.TypeInstanceHeld, "i3", "AP-3", map[string]any{event.KeyReason: string(entity.HoldUnresolvedApprover)}, now),
	}
	for _, evt := range events {
		require.NoError(t, r.Handle(ctx, evt))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(r.events.WithLabelValues(string(event.TypeActionRecorded))))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.actions.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.actions.WithLabelValues("reject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.refusals.WithLabelValues("approve", string(entity.CodeNotAuthorized))))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.holds.WithLabelValues(string(entity.HoldUnresolvedApprover))))
}

func TestRecorder_RegisterSeesEveryType(t *testing.T) {
	r := NewRecorder(Config{})
	d := dispatcher.NewDispatcher()
	r.Register(d)

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeInstanceCreated, "i1", "AP-1", nil, now))
	require.NoError(t, d.Close())

	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues(string(event.TypeInstanceCreated))))
}

func TestRecorder_ObserveScan(t *testing.T) {
	r := NewRecorder(Config{})

	r.ObserveScan(monitor.ScanResult{Checked: 4, TimedOut: 2, Skipped: 1, Failed: 1}, 30*time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(r.scanChecked))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.scanTimedOut))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scanFailed))
}

func TestRecorder_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRecorder(Config{Namespace: "test"})
	router := gin.New()
	router.Use(r.Middleware())
	router.GET("/api/v1/instances/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/metrics", gin.WrapH(r.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/instances/abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/api/v1/instances/:id", "404")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_http_requests_total"))
}
