package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/salespulse/internal/api/handlers"
	"github.com/wonny/salespulse/internal/dashboard"
	"github.com/wonny/salespulse/internal/dataset"
	"github.com/wonny/salespulse/internal/realtime"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/internal/sales"
	"github.com/wonny/salespulse/pkg/config"
	"github.com/wonny/salespulse/pkg/logger"
)

func strp(s string) *string { return &s }

func retailRows() []sales.RawRecord {
	return []sales.RawRecord{
		{Row: 0, CustomerID: strp("C1"), Country: strp("UK"), Description: strp("Widget"), Quantity: "2", UnitPrice: "5.0", InvoiceDate: "2010-12-01 08:26:00"},
		{Row: 1, CustomerID: strp("C2"), Country: strp("uk"), Description: strp("Widget"), Quantity: "3", UnitPrice: "5.0", InvoiceDate: "2010-12-01 08:28:00"},
		{Row: 2, CustomerID: strp("C3"), Country: nil, Description: strp("Gadget"), Quantity: "1", UnitPrice: "10.0"},
		{Row: 3, CustomerID: strp("C4"), Country: strp("France"), Description: strp("Gadget"), Quantity: "1", UnitPrice: "10.004"},
	}
}

type testEnv struct {
	server  *httptest.Server
	manager *replay.Manager
	hub     *realtime.Hub
}

func newTestEnv(t *testing.T, rows []sales.RawRecord, maxSessions int) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Replay: config.ReplayConfig{
			Retention:    "sliding",
			WindowSize:   200,
			UpdateEvery:  1,
			Speed:        0,
			SpeedOptions: []float64{1.0, 0.8, 0.5, 0.3},
		},
		Session: config.SessionConfig{MaxSessions: maxSessions},
	}

	log := logger.Nop()
	hub := realtime.NewHub(8, log)
	manager, err := replay.NewManager(dataset.New("test", rows), cfg, hub, log)
	require.NoError(t, err)
	manager.OnRemove(hub.CloseSession)
	manager.OnReset(hub.ResetSession)

	server := httptest.NewServer(NewRouter(handlers.NewSessionHandler(manager, hub, log), log))
	t.Cleanup(func() {
		server.Close()
		manager.Shutdown()
	})

	return &testEnv{server: server, manager: manager, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (e *testEnv) createSession(t *testing.T) replay.Status {
	t.Helper()
	resp := e.do(t, "POST", "/api/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var st replay.Status
	decodeBody(t, resp, &st)
	require.NotEmpty(t, st.ID)
	return st
}

func (e *testEnv) waitExhausted(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		sess, err := e.manager.Get(id)
		if err != nil {
			return false
		}
		st := sess.Status()
		return st.Exhausted && !st.Running
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)

	resp := env.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)

	st := env.createSession(t)
	env.waitExhausted(t, st.ID)

	resp := env.do(t, "GET", "/api/sessions/"+st.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &st)
	assert.Equal(t, 4, st.Position)
	assert.Equal(t, 3, st.Accepted)
	assert.Equal(t, map[string]int{"missing_country": 1}, st.RejectedBy)

	resp = env.do(t, "GET", "/api/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Sessions     []replay.Status `json:"sessions"`
		SpeedOptions []float64       `json:"speed_options"`
	}
	decodeBody(t, resp, &list)
	assert.Len(t, list.Sessions, 1)
	assert.Equal(t, []float64{1.0, 0.8, 0.5, 0.3}, list.SpeedOptions)

	resp = env.do(t, "POST", "/api/sessions/"+st.ID+"/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env.waitExhausted(t, st.ID)

	resp = env.do(t, "DELETE", "/api/sessions/"+st.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, "GET", "/api/sessions/"+st.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "DELETE", "/api/sessions/"+st.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSession_Validation(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"override speed", `{"speed": 0.3}`, http.StatusCreated},
		{"override cadence", `{"update_every": 10}`, http.StatusCreated},
		{"speed not offered", `{"speed": 0.7}`, http.StatusBadRequest},
		{"negative speed", `{"speed": -1}`, http.StatusBadRequest},
		{"zero cadence", `{"update_every": 0}`, http.StatusBadRequest},
		{"unknown field", `{"window": 5}`, http.StatusBadRequest},
		{"broken json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, "POST", "/api/sessions", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCreateSession_Limit(t *testing.T) {
	env := newTestEnv(t, retailRows(), 1)

	env.createSession(t)
	resp := env.do(t, "POST", "/api/sessions", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestSetSpeed(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)
	st := env.createSession(t)

	resp := env.do(t, "PUT", "/api/sessions/"+st.ID+"/speed", `{"speed": 0.8}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &st)
	assert.Equal(t, 0.8, st.Speed)

	for _, body := range []string{`{"speed": 0.7}`, `{}`, ``} {
		resp = env.do(t, "PUT", "/api/sessions/"+st.ID+"/speed", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	resp = env.do(t, "PUT", "/api/sessions/nope/speed", `{"speed": 0.8}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)
	st := env.createSession(t)
	env.waitExhausted(t, st.ID)

	resp := env.do(t, "GET", "/api/sessions/"+st.ID+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view dashboard.MetricsView
	decodeBody(t, resp, &view)

	assert.Equal(t, st.ID, view.SessionID)
	assert.Equal(t, 35.0, view.KPIs.Revenue)
	assert.Equal(t, 2, view.KPIs.ActiveCountries)
	assert.Equal(t, 6.0, view.KPIs.UnitsSold)

	require.Len(t, view.Countries, 2)
	assert.Equal(t, "Uk", view.Countries[0].Country, "largest revenue first")
	assert.Equal(t, 25.0, view.Countries[0].Revenue)
	assert.Equal(t, 71.4, view.Countries[0].Share)
	assert.Equal(t, "France", view.Countries[1].Country)
	assert.Equal(t, 10.0, view.Countries[1].Revenue)

	require.NotEmpty(t, view.TopByQuantity)
	assert.Equal(t, "WIDGET", view.TopByQuantity[0].Description)
	assert.Len(t, view.TimeSeries, 2)
}

func TestMetrics_EmptyWindow(t *testing.T) {
	rows := []sales.RawRecord{{CustomerID: nil, Country: strp("UK"), Quantity: "1", UnitPrice: "1"}}
	env := newTestEnv(t, rows, 4)
	st := env.createSession(t)
	env.waitExhausted(t, st.ID)

	resp := env.do(t, "GET", "/api/sessions/"+st.ID+"/metrics", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, "GET", "/api/sessions/nope/metrics", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)
	st := env.createSession(t)
	env.waitExhausted(t, st.ID)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/sessions/" + st.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, realtime.MessageSnapshot, msg.Type)

	var tick dashboard.TickView
	require.NoError(t, json.Unmarshal(msg.Data, &tick))
	assert.Equal(t, 3, tick.Row)
	assert.Equal(t, 4, tick.Status.Position)

	// the stream carries exactly what the metrics endpoint serves
	resp := env.do(t, "GET", "/api/sessions/"+st.ID+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var polled dashboard.MetricsView
	decodeBody(t, resp, &polled)
	assert.Equal(t, polled, tick.Metrics)
	assert.Equal(t, 35.0, tick.Metrics.KPIs.Revenue)
	assert.Equal(t, "Uk", tick.Metrics.Countries[0].Country)

	require.Eventually(t, func() bool { return env.hub.Subscribers(st.ID) == 1 }, time.Second, 5*time.Millisecond)

	resp = env.do(t, "DELETE", "/api/sessions/"+st.ID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, realtime.MessageClosed, msg.Type)
}

func TestStream_Reset(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)
	st := env.createSession(t)
	env.waitExhausted(t, st.ID)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/sessions/" + st.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.MessageSnapshot, msg.Type)
	require.Eventually(t, func() bool { return env.hub.Subscribers(st.ID) == 1 }, time.Second, 5*time.Millisecond)

	resp := env.do(t, "POST", "/api/sessions/"+st.ID+"/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, realtime.MessageReset, msg.Type)

	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.MessageTick, msg.Type)
	var tick dashboard.TickView
	require.NoError(t, json.Unmarshal(msg.Data, &tick))
	assert.Equal(t, 0, tick.Row, "replay starts over")
	assert.Equal(t, 1, tick.Status.Ticks)
}

func TestMetrics_OverflowingRevenueIsRejected(t *testing.T) {
	rows := []sales.RawRecord{
		{CustomerID: strp("C1"), Country: strp("UK"), Description: strp("Crate"), Quantity: "1e200", UnitPrice: "1e200"},
		{CustomerID: strp("C2"), Country: strp("France"), Description: strp("Mug"), Quantity: "2", UnitPrice: "5"},
	}
	env := newTestEnv(t, rows, 4)
	st := env.createSession(t)
	env.waitExhausted(t, st.ID)

	resp := env.do(t, "GET", "/api/sessions/"+st.ID, "")
	var status replay.Status
	decodeBody(t, resp, &status)
	assert.Equal(t, map[string]int{"invalid_revenue": 1}, status.RejectedBy)

	resp = env.do(t, "GET", "/api/sessions/"+st.ID+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view dashboard.MetricsView
	decodeBody(t, resp, &view)
	assert.Equal(t, 10.0, view.KPIs.Revenue)
	require.Len(t, view.Countries, 1)
	assert.Equal(t, 100.0, view.Countries[0].Share)
}

func TestStream_UnknownSession(t *testing.T) {
	env := newTestEnv(t, retailRows(), 4)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/sessions/nope/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
