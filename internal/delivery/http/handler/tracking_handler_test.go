package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/mapview"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/stream"
	"fleetwatch/internal/tracking"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newRouter(t *testing.T) (*gin.Engine, *tracking.Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl := tracking.NewController(tracking.Deps{
		Dispatcher: alert.NewDispatcher(alert.NewAllowList("sos", "alarm")),
		Renderer:   mapview.NewRenderer(mapview.Config{DefaultZoom: 5, FocusZoom: 16}),
	})
	t.Cleanup(ctrl.Close)

	ctrl.Handle(stream.DeviceBatch{Records: []fleet.Record{
		{"id": "1", "name": "Truck1", "category": "truck", "status": "online"},
		{"id": "2", "name": "Van2"},
	}})
	ctrl.Handle(stream.PositionBatch{Records: []fleet.Record{
		{"deviceId": "1", "latitude": 10.5, "longitude": 20.25, "course": 90.0},
	}})

	r := gin.New()
	NewTrackingHandler(ctrl, nil).RegisterRoutes(r.Group("/api/v1"))
	return r, ctrl
}

func call(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestDeviceEndpoints(t *testing.T) {
	r, _ := newRouter(t)

	code, env := call(t, r, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, code)
	var devices []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &devices))
	assert.Len(t, devices, 2)

	code, env = call(t, r, http.MethodGet, "/api/v1/devices/1", "")
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		Device   map[string]any `json:"device"`
		Position map[string]any `json:"position"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "Truck1", detail.Device["name"])
	assert.Equal(t, 10.5, detail.Position["latitude"])

	code, env = call(t, r, http.MethodGet, "/api/v1/devices/99", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestMarkerEndpoint(t *testing.T) {
	r, _ := newRouter(t)

	code, env := call(t, r, http.MethodGet, "/api/v1/markers", "")
	require.Equal(t, http.StatusOK, code)
	var markers []mapview.Marker
	require.NoError(t, json.Unmarshal(env.Data, &markers))
	require.Len(t, markers, 1)
	assert.Equal(t, "truck", markers[0].Icon)
	assert.Equal(t, 90.0, markers[0].Rotation)
}

func TestFocusEndpoints(t *testing.T) {
	r, ctrl := newRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/focus/1", "")
	require.Equal(t, http.StatusOK, code)
	var vp mapview.Viewport
	require.NoError(t, json.Unmarshal(env.Data, &vp))
	assert.Equal(t, 16.0, vp.Zoom)
	assert.Equal(t, 10.5, vp.Center.Lat)

	code, _ = call(t, r, http.MethodPost, "/api/v1/focus/404", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "1", ctrl.Renderer().Focused())

	code, _ = call(t, r, http.MethodPost, "/api/v1/map/click", `{}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, ctrl.Renderer().Focused())

	code, _ = call(t, r, http.MethodPost, "/api/v1/map/click", `{"deviceId":"2"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2", ctrl.Renderer().Focused())

	code, env = call(t, r, http.MethodDelete, "/api/v1/focus", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &vp))
	assert.Equal(t, 5.0, vp.Zoom)
}

func TestAlertEndpoints(t *testing.T) {
	r, ctrl := newRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/alert/dismiss", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", env.Code)

	code, _ = call(t, r, http.MethodGet, "/api/v1/events/latest", "")
	assert.Equal(t, http.StatusNotFound, code)

	ctrl.Handle(stream.DiscreteEvent{Event: fleet.Event{Type: fleet.EventSOS, DeviceID: "1"}})

	code, env = call(t, r, http.MethodGet, "/api/v1/alert", "")
	require.Equal(t, http.StatusOK, code)
	var st alert.State
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Active)
	assert.Contains(t, st.Alert.Classification.Message, "Truck1")

	code, _ = call(t, r, http.MethodGet, "/api/v1/events/latest", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/alert/dismiss", "")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, ctrl.Alert().Active)
}

func TestNotificationEndpoints(t *testing.T) {
	r, ctrl := newRouter(t)
	ctrl.Handle(stream.DiscreteEvent{Event: fleet.Event{Type: fleet.EventIgnitionOn, DeviceID: "2"}})
	ctrl.Handle(stream.DiscreteEvent{Event: fleet.Event{Type: fleet.EventAlarm, DeviceID: "1"}})

	code, env := call(t, r, http.MethodGet, "/api/v1/notifications?filter=unread", "")
	require.Equal(t, http.StatusOK, code)
	var list NotificationList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Unread)
	require.Len(t, list.Entries, 2)
	assert.Equal(t, fleet.EventAlarm, list.Entries[0].Event.Type, "newest first")

	code, _ = call(t, r, http.MethodGet, "/api/v1/notifications?filter=starred", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/notifications/read", "")
	require.Equal(t, http.StatusOK, code)
	_, env = call(t, r, http.MethodGet, "/api/v1/notifications?filter=read", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Entries, 2)
	assert.Zero(t, list.Unread)

	code, _ = call(t, r, http.MethodDelete, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, code)
	_, env = call(t, r, http.MethodGet, "/api/v1/notifications", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list.Entries)
	assert.Equal(t, "all", string(list.Filter))
}

func TestGeofencesEndpointEmpty(t *testing.T) {
	r, _ := newRouter(t)
	code, env := call(t, r, http.MethodGet, "/api/v1/geofences", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracker := metrics.NewTracker()

	r := gin.New()
	healthy := NewHealthHandler(tracker, nil)
	failing := NewHealthHandler(tracker, map[string]HealthCheck{"database": func() error { return errors.New("down") }})
	r.GET("/health", healthy.Health)
	r.GET("/health/failing", failing.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	tracker.Update(func(m *metrics.StreamMetrics) { m.Connected = true })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/failing", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"down"`)
}
