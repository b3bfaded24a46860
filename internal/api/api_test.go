package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trolley-pm/config"
	"trolley-pm/internal/db"
	"trolley-pm/internal/metrics"
	"trolley-pm/internal/service"
	"trolley-pm/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter serves the full API on a private in-memory database whose
// clock reads 2024-04-05.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	policy := config.DefaultPolicy()
	today := time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)
	engine, err := service.New(store.NewGormStore(gormDB, policy.IntervalDays), policy,
		service.WithClock(func() time.Time { return today }))
	require.NoError(t, err)

	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60}
	return NewRouter(cfg, engine, nil, metrics.New())
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestMaintenanceLifecycle(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/trolleys", `{"id":"T-101"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "T-101", decode(t, w)["current_id"])

	w = do(r, http.MethodPost, "/api/trolleys", `{"id":"T-101"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_identity", decode(t, w)["kind"])

	w = do(r, http.MethodGet, "/api/trolleys/T-101/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NEVER_SERVICED", decode(t, w)["status"])

	w = do(r, http.MethodPost, "/api/trolleys/T-101/maintenance",
		`{"performed_date":"01/01/2024","technician":"A.S","cost":"1,200"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode(t, w)
	assert.Equal(t, "2024-03-31T00:00:00Z", rec["next_due_date"])
	assert.Equal(t, "1200", rec["cost"])

	w = do(r, http.MethodGet, "/api/trolleys/T-101/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, "OVERDUE", status["status"])
	assert.Equal(t, "2024-03-31T00:00:00Z", status["next_due"])

	w = do(r, http.MethodGet, "/api/reminders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["overdue"], 1)

	w = do(r, http.MethodPost, "/api/trolleys/T-101/mark_done", `{"technician":"R.K","cost":150}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	done := decode(t, w)
	assert.Equal(t, "2024-07-04T00:00:00Z", done["next_due_date"])
	assert.Equal(t, "150", done["cost"])

	w = do(r, http.MethodGet, "/api/trolleys/T-101/status?as_of=2024-04-06", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CURRENT", decode(t, w)["status"])

	w = do(r, http.MethodGet, "/api/trolleys/T-101/cost", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1350", decode(t, w)["total"])

	w = do(r, http.MethodGet, "/api/trolleys/T-101/records?kind=maintenance&start=2024-04-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []store.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "R.K", records[0].Maintenance.Technician)
}

func TestRepeatFailureAlert(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys", `{"id":"T-202"}`).Code)

	var last map[string]interface{}
	for _, d := range []string{"2024-03-01", "2024-03-05", "2024-03-10"} {
		w := do(r, http.MethodPost, "/api/trolleys/T-202/failures",
			fmt.Sprintf(`{"reported_date":%q,"category":"wheel_issue","repair_cost":"80"}`, d))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		last = decode(t, w)
	}
	require.NotNil(t, last["alert"])
	assert.EqualValues(t, 3, last["alert"].(map[string]interface{})["count"])
	assert.NotNil(t, last["maintenance"])

	w := do(r, http.MethodGet, "/api/trolleys/T-202/failures/count?category=WHEEL_ISSUE", "")
	require.Equal(t, http.StatusOK, w.Code)
	count := decode(t, w)
	assert.EqualValues(t, 3, count["count"])
	assert.EqualValues(t, 3, count["threshold"])
	assert.Equal(t, true, count["repeat_offender"])

	w = do(r, http.MethodGet, "/api/trolleys/T-202/failures/count?category=FRAME_BEND&threshold=4", "")
	require.Equal(t, http.StatusOK, w.Code)
	count = decode(t, w)
	assert.EqualValues(t, 0, count["count"])
	assert.Equal(t, false, count["repeat_offender"])

	w = do(r, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var alerts []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "T-202", alerts[0]["current_id"])

	w = do(r, http.MethodGet, "/api/trolleys/T-202/risk", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIGH", decode(t, w)["level"])
}

func TestRemapAndScrap(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys", `{"id":"T-404"}`).Code)

	w := do(r, http.MethodPost, "/api/trolleys/T-404/remap", `{"new_id":"T-405","effective_date":"2024-02-01","reason":"relabelled"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/trolleys/T-404", "")
	require.Equal(t, http.StatusOK, w.Code)
	identity := decode(t, w)
	assert.Equal(t, "T-405", identity["current_id"])
	assert.ElementsMatch(t, []interface{}{"T-404", "T-405"}, identity["aliases"])

	w = do(r, http.MethodPost, "/api/trolleys/T-405/scrap", `{"scrap_date":"2024-03-01","reason":"worn frame","recorded_by":"J.Doe"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/trolleys/T-404/lookup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SCRAPPED", decode(t, w)["status"])

	w = do(r, http.MethodGet, "/api/trolleys/T-405/next_due", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["next_due"])

	w = do(r, http.MethodPost, "/api/trolleys/T-405/maintenance", `{"performed_date":"2024-03-02"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys", `{"id":"T-1"}`).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
		kind   string
	}{
		{"unknown trolley", http.MethodGet, "/api/trolleys/T-999/status", "", http.StatusNotFound, "unknown_identity"},
		{"bad as_of", http.MethodGet, "/api/trolleys/T-1/status?as_of=tomorrow", "", http.StatusBadRequest, "validation"},
		{"missing kind", http.MethodGet, "/api/trolleys/T-1/records", "", http.StatusBadRequest, "validation"},
		{"inverted range", http.MethodGet, "/api/trolleys/T-1/records?kind=failure&start=2024-02-01&end=2024-01-01", "", http.StatusBadRequest, "validation"},
		{"bad category", http.MethodPost, "/api/trolleys/T-1/failures", `{"category":"RUST"}`, http.StatusBadRequest, "validation"},
		{"negative cost", http.MethodPost, "/api/trolleys/T-1/maintenance", `{"cost":"-5"}`, http.StatusBadRequest, "validation"},
		{"empty body", http.MethodPost, "/api/trolleys", "", http.StatusBadRequest, "validation"},
		{"bad timeframe", http.MethodGet, "/api/dashboard?timeframe=decade", "", http.StatusBadRequest, "validation"},
		{"bad limit", http.MethodGet, "/api/history?limit=-1", "", http.StatusBadRequest, "validation"},
		{"unknown cost trolley", http.MethodGet, "/api/costs?trolley_id=T-999", "", http.StatusNotFound, "unknown_identity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, decode(t, w)["kind"])
		})
	}
}

func TestReadsAreNotStaleAfterWrites(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/trolleys", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(r, http.MethodGet, "/api/trolleys", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys", `{"id":"T-7"}`).Code)

	w = do(r, http.MethodGet, "/api/trolleys", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	var fleet []service.FleetEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fleet))
	require.Len(t, fleet, 1)
	assert.Equal(t, "T-7", fleet[0].TrolleyID)
}

func TestReports(t *testing.T) {
	r := newTestRouter(t)
	for _, id := range []string{"T-1", "T-2"} {
		require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys", fmt.Sprintf(`{"id":%q}`, id)).Code)
	}
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys/T-1/maintenance", `{"performed_date":"2024-04-01","cost":100}`).Code)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys/T-2/maintenance", `{"performed_date":"2024-02-10","cost":"250.50"}`).Code)

	w := do(r, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode(t, w)
	assert.Equal(t, "week", dash["timeframe"])
	assert.EqualValues(t, 2, dash["trolleys"])
	assert.EqualValues(t, 1, dash["maintained"])
	assert.Equal(t, "100", dash["total_cost"])

	w = do(r, http.MethodGet, "/api/costs?start=2024-01-01&granularity=month", "")
	require.Equal(t, http.StatusOK, w.Code)
	costs := decode(t, w)
	assert.Equal(t, "350.5", costs["total"])
	assert.Len(t, costs["buckets"], 2)

	w = do(r, http.MethodGet, "/api/costs/trolleys?timeframe=year", "")
	require.Equal(t, http.StatusOK, w.Code)
	var totals []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totals))
	require.Len(t, totals, 2)
	assert.Equal(t, "T-2", totals[0]["trolley_id"])

	w = do(r, http.MethodGet, "/api/history?kind=maintenance&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []store.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "T-1", history[0].TrolleyID)

	w = do(r, http.MethodGet, "/api/history?kind=scrap", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(r, http.MethodGet, "/api/trolleys/T-1/records?kind=failure", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(r, http.MethodPost, "/api/trolleys/T-1/maintenance", `{"performed_date":"9999-12-01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["kind"])

	w = do(r, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["HANDLE_BREAK","WHEEL_ISSUE","FRAME_BEND","OTHER"]`, w.Body.String())
}

func TestSubscriptions(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/trolleys", `{"id":"T-1"}`).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/trolleys/T-1/remap", `{"new_id":"T-1A"}`).Code)

	endpoint := "https://push.example.com/send/abc"
	w := do(r, http.MethodPut, "/api/subscriptions",
		fmt.Sprintf(`{"endpoint":%q,"p256dh":"key","auth":"secret","subscribed_trolleys":["T-1"]}`, endpoint))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_trolleys":["T-1A"]}`, w.Body.String())

	w = do(r, http.MethodPut, "/api/subscriptions",
		fmt.Sprintf(`{"endpoint":%q,"p256dh":"key","auth":"secret","subscribed_trolleys":["T-9"]}`, endpoint))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPut, "/api/subscriptions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, "/api/subscriptions", fmt.Sprintf(`{"endpoint":%q}`, endpoint))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	do(r, http.MethodGet, "/api/alerts", "")

	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `endpoint="/api/alerts"`)

	w = do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
