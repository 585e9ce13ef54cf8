package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/clawwatch/internal/engine"
)

type testAPI struct {
	control *gin.Engine
	data    *gin.Engine
	token   string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	SetJWTSecret("test-secret")
	require.NoError(t, SetAdminCredentials("admin", "hunter2"))

	eng, err := engine.New(engine.Rules{
		ReportInterval:   30 * time.Second,
		OfflineThreshold: 60 * time.Second,
		MetricRetention:  100,
		LogCap:           50,
		PricePerMillion:  1.0,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	srv := New(eng, 5*time.Second, zerolog.Nop())

	control := gin.New()
	srv.RegisterControlRoutes(control)
	data := gin.New()
	srv.RegisterDataRoutes(data)

	api := &testAPI{control: control, data: data}
	api.token = api.login(t, "admin", "hunter2", http.StatusOK)
	return api
}

func (a *testAPI) login(t *testing.T, user, pass string, wantStatus int) string {
	t.Helper()
	body, _ := json.Marshal(gin.H{"username": user, "password": pass})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.control.ServeHTTP(w, req)
	require.Equal(t, wantStatus, w.Code, w.Body.String())
	if wantStatus != http.StatusOK {
		return ""
	}
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	w := httptest.NewRecorder()
	a.control.ServeHTTP(w, req)
	return w
}

func (a *testAPI) report(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/report", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.data.ServeHTTP(w, req)
	return w
}

// createDevice registers a device through the API and returns id + key.
func (a *testAPI) createDevice(t *testing.T, name string) (uint, string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/devices", gin.H{"name": name, "device_type": "vps"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Key, 64)
	return resp.Data.ID, resp.Key
}

func validReport(key string) gin.H {
	return gin.H{
		"key":            key,
		"cpu_percent":    45.2,
		"memory_percent": 46.4,
		"memory_total":   8192.0,
		"memory_used":    3800.0,
		"disk_percent":   61.0,
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "admin", "wrong", http.StatusUnauthorized)
	api.login(t, "nobody", "hunter2", http.StatusUnauthorized)
}

func TestProtectedRoutesRequireJWT(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	api.control.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	api.control.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeviceLifecycle(t *testing.T) {
	api := newTestAPI(t)
	id, _ := api.createDevice(t, "vps-1")

	// Duplicate name conflicts.
	w := api.do(t, http.MethodPost, "/api/devices", gin.H{"name": "vps-1"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodDelete, fmt.Sprintf("/api/devices/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d", id), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/devices/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportIngestionStatuses(t *testing.T) {
	api := newTestAPI(t)
	id, key := api.createDevice(t, "vps-1")

	w := api.report(t, validReport(key))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Unknown key.
	w = api.report(t, validReport("deadbeef"))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Missing required metric.
	bad := validReport(key)
	delete(bad, "cpu_percent")
	w = api.report(t, bad)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// The accepted report shows up on the card.
	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Status string `json:"status"`
			Latest *struct {
				CPUPercent float64 `json:"cpu_percent"`
			} `json:"latest"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Online", resp.Data.Status)
	require.NotNil(t, resp.Data.Latest)
	require.Equal(t, 45.2, resp.Data.Latest.CPUPercent)
}

func TestStatsCountsFleet(t *testing.T) {
	api := newTestAPI(t)
	_, key := api.createDevice(t, "vps-1")
	api.createDevice(t, "vps-2")

	w := api.report(t, validReport(key))
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Total   int `json:"total"`
			Online  int `json:"online"`
			Unknown int `json:"unknown"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Data.Total)
	require.Equal(t, 1, resp.Data.Online)
	require.Equal(t, 1, resp.Data.Unknown)
}

func TestTrendAndLogsEndpoints(t *testing.T) {
	api := newTestAPI(t)
	id, key := api.createDevice(t, "vps-1")

	report := validReport(key)
	report["logs"] = []gin.H{{"message": "agent crashed", "level": "error"}}
	w := api.report(t, report)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d/trend?metric=cpu&hours=1", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trend struct {
		Data []struct {
			Value float64 `json:"value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trend))
	require.Len(t, trend.Data, 1)
	require.Equal(t, 45.2, trend.Data[0].Value)

	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d/trend?metric=bogus", id), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d/logs", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Data []struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs.Data, 1)
	require.Equal(t, "agent crashed", logs.Data[0].Message)

	w = api.do(t, http.MethodGet, "/api/logs?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	api.control.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	api.data.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
