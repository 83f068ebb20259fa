package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexwatch/histview/internal/config"
	"github.com/plexwatch/histview/internal/history"
	"github.com/plexwatch/histview/internal/logging"
	"github.com/plexwatch/histview/pkg/models"
)

func fixtureEvent(user, mediaType, show string, started time.Time, minutes float64) models.WatchEvent {
	e := models.WatchEvent{
		Username:         user,
		MediaType:        mediaType,
		GrandparentTitle: show,
		StartedAt:        started,
		StoppedAt:        started.Add(time.Duration(minutes * float64(time.Minute))),
		DurationMinutes:  minutes,
		HasDuration:      true,
		HourOfDay:        started.Hour(),
		Weekday:          started.Weekday().String(),
	}
	return e
}

func newTestAPI() *API {
	events := []models.WatchEvent{
		fixtureEvent("alice", "episode", "Severance", time.Date(2024, 1, 8, 20, 30, 0, 0, time.UTC), 45),
		fixtureEvent("alice", "episode", "Dark", time.Date(2024, 2, 2, 22, 15, 0, 0, time.UTC), 55),
		fixtureEvent("bob", "movie", "", time.Date(2024, 2, 10, 19, 0, 0, 0, time.UTC), 120),
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimitRPS:   100,
			RateLimitBurst: 100,
		},
		History: config.HistoryConfig{
			DefaultMinDuration: 10,
			DefaultTopUsers:    10,
			DefaultTopShows:    20,
		},
	}

	return &API{
		svc:    history.NewService(events, "testdataset0001", nil),
		cfg:    cfg,
		logger: logging.NewNopLogger(),
	}
}

func newTestRouter() (*API, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	api := newTestAPI()
	return api, setupRouter(api)
}

func doRequest(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "testdataset0001", body["dataset_id"])
	assert.Equal(t, float64(3), body["events"])
}

func TestGetFilterOptions(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/filters")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Users      []string `json:"users"`
		MediaTypes []string `json:"media_types"`
		MinDate    string   `json:"min_date"`
		MaxDate    string   `json:"max_date"`
		MinYear    int      `json:"min_year"`
		MaxYear    int      `json:"max_year"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"alice", "bob"}, body.Users)
	assert.Equal(t, []string{"episode", "movie"}, body.MediaTypes)
	assert.Equal(t, "2024-01-08", body.MinDate)
	assert.Equal(t, "2024-02-10", body.MaxDate)
	assert.Equal(t, 2024, body.MinYear)
	assert.Equal(t, 2024, body.MaxYear)
}

func TestGetHistoryDefaultsToEveryone(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/history")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int                 `json:"count"`
		Rows  []models.WatchEvent `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	// Presentation order: longest watch first.
	assert.Equal(t, "bob", body.Rows[0].Username)
}

func TestGetHistoryFilterParams(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/history?user=alice&media_type=episode&min_duration=50")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int                 `json:"count"`
		Rows  []models.WatchEvent `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Dark", body.Rows[0].GrandparentTitle)
}

func TestGetHistoryInvalidParams(t *testing.T) {
	_, router := newTestRouter()

	tests := []struct {
		name string
		path string
	}{
		{"bad min_duration", "/api/v1/history?min_duration=soon"},
		{"negative min_duration", "/api/v1/history?min_duration=-3"},
		{"bad date", "/api/v1/history?start_date=January"},
		{"inverted range", "/api/v1/history?start_date=2024-02-01&end_date=2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetHistoryCSV(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/history?format=csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "history_filtered.csv")
	assert.Contains(t, w.Body.String(), "Duration (min)")
}

func TestGetDashboard(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/dashboard")
	require.Equal(t, http.StatusOK, w.Code)

	var overview models.Overview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &overview))
	assert.Equal(t, int64(3), overview.TotalEntries)
	assert.Equal(t, int64(2), overview.UniqueUsers)
	assert.InDelta(t, 220.0, overview.TotalMinutes, 1e-9)
}

func TestGetMonthlySummary(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/summary/monthly")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rows []models.AggregateRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "2024-01", body.Rows[0].Key)
	assert.Equal(t, "2024-02", body.Rows[1].Key)
}

func TestGetYearlySummaryRange(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/summary/yearly?min_year=2024&max_year=2024")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, "/api/v1/summary/yearly?min_year=2025&max_year=2024")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, "/api/v1/summary/yearly?min_year=many")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUserSummaryTopN(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/summary/users?top_n=1")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rows []models.AggregateRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "alice", body.Rows[0].Key)

	w = doRequest(router, "/api/v1/summary/users?top_n=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetWeekdaySummaryComplete(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/summary/weekday")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rows []models.AggregateRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rows, 7)
	assert.Equal(t, "Monday", body.Rows[0].Key)
	assert.Equal(t, "Sunday", body.Rows[6].Key)
}

func TestGetHeatmap(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/heatmap")
	require.Equal(t, http.StatusOK, w.Code)

	var ct models.CrossTab
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ct))
	assert.Equal(t, []string{"alice", "bob"}, ct.Users)
	require.Len(t, ct.Counts, 2)
}

func TestSummaryCSVDisposition(t *testing.T) {
	_, router := newTestRouter()

	tests := []struct {
		path     string
		filename string
	}{
		{"/api/v1/summary/monthly?format=csv", "monthly_summary.csv"},
		{"/api/v1/summary/yearly?format=csv", "yearly_summary.csv"},
		{"/api/v1/summary/users?format=csv", "user_summary.csv"},
		{"/api/v1/summary/shows?format=csv", "show_summary.csv"},
		{"/api/v1/summary/hourly?format=csv", "hourly_summary.csv"},
		{"/api/v1/summary/weekday?format=csv", "weekday_summary.csv"},
		{"/api/v1/heatmap?format=csv", "user_show_heatmap.csv"},
	}

	for _, tt := range tests {
		w := doRequest(router, tt.path)
		require.Equal(t, http.StatusOK, w.Code, tt.path)
		assert.Contains(t, w.Header().Get("Content-Disposition"), tt.filename)
	}
}

func TestExportRoutesRequireStore(t *testing.T) {
	_, router := newTestRouter()

	w := doRequest(router, "/api/v1/exports/some-run")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(router, "/api/v1/exports/some-run/history_filtered.csv")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(router, "/api/v1/exports/some-run/history_filtered.csv?presign=true")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req := httptest.NewRequest("DELETE", "/api/v1/exports/some-run/history_filtered.csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitUsesConfiguredBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api := newTestAPI()
	api.cfg.Server.RateLimitRPS = 1
	api.cfg.Server.RateLimitBurst = 1
	router := setupRouter(api)

	w := doRequest(router, "/api/v1/filters")
	require.Equal(t, http.StatusOK, w.Code)

	// The single-token burst is spent; the next request is rejected.
	w = doRequest(router, "/api/v1/filters")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAuthProtectsAPIRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api := newTestAPI()
	api.cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret-key"}
	router := setupRouter(api)

	w := doRequest(router, "/api/v1/history")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Health stays open for probes.
	w = doRequest(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
