package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/usecase"
)

var now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return now }

type market struct{}

func (market) GetLatestQuote(_ context.Context, symbol string) (*models.Quote, error) {
	if symbol != "EURUSD" {
		return nil, nil
	}
	return &models.Quote{Symbol: symbol, Price: 1.08, Bid: 1.08, Ask: 1.08, Timestamp: now}, nil
}

func (market) GetHistory(_ context.Context, _ string, _ int) ([]models.Bar, error) {
	return []models.Bar{{Timestamp: now.Add(-time.Minute), Close: 1.08}}, nil
}

type provider struct {
	id   string
	side models.Side
}

func (p provider) ID() string   { return p.id }
func (p provider) Name() string { return p.id }

func (p provider) GenerateSignal(_ context.Context, symbol string, _ models.Quote, _ []models.Bar) (*models.Signal, error) {
	s := models.NewSignal(symbol, p.side, 60, 50, p.id, nil, "", now, 15*time.Minute)
	return &s, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type listData struct {
	Rows  json.RawMessage `json:"rows"`
	Total int64           `json:"total"`
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	engine := usecase.NewSignalEngine(market{}, []domsvc.SignalProvider{
		provider{id: "a", side: models.SideBuy},
		provider{id: "b", side: models.SideBuy},
	}, usecase.WithClock(fixedClock{}))
	gate, err := usecase.NewSessionGate([]models.TradingSession{
		{Name: "London", Start: "08:00", End: "17:00", Timezone: "Europe/London", Symbols: []string{"EURUSD"}, Active: true},
	}, usecase.WithGateClock(fixedClock{}))
	require.NoError(t, err)

	e := echo.New()
	NewHandler(nil, engine, gate, nil, limiter).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestGenerateAndReadSignals(t *testing.T) {
	e := newTestServer(t, nil)

	rec, _ := do(t, e, http.MethodGet, "/api/signals/consensus?symbol=EURUSD", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := do(t, e, http.MethodPost, "/api/signals/generate", `{"symbols":["EURUSD","GBPUSD"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report usecase.CycleReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Len(t, report.Generated, 2)
	assert.Contains(t, report.Failed, "GBPUSD")

	rec, env = do(t, e, http.MethodGet, "/api/signals?symbol=EURUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)

	rec, env = do(t, e, http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all map[string][]models.Signal
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all["EURUSD"], 2)

	rec, env = do(t, e, http.MethodGet, "/api/signals/consensus?symbol=EURUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cs models.ConsensusSignal
	require.NoError(t, json.Unmarshal(env.Data, &cs))
	assert.Equal(t, models.SideBuy, cs.Side)
	assert.Equal(t, 2, cs.Agreeing)

	rec, env = do(t, e, http.MethodGet, "/api/signals/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 1, list.Total)
}

func TestGenerateValidationAndFailure(t *testing.T) {
	e := newTestServer(t, nil)

	rec, _ := do(t, e, http.MethodPost, "/api/signals/generate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/signals/generate", `{"symbols":["XAUUSD"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/signals/history?limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/signals/archive", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProviderEndpoints(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(t, e, http.MethodPost, "/api/providers/a/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.ProviderInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, models.ProviderInfo{ID: "a", Name: "a", Enabled: false}, info)

	rec, _ = do(t, e, http.MethodPost, "/api/providers/zzz/enable", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, e, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
}

func TestSessionAndNewsEndpoints(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(t, e, http.MethodGet, "/api/tradeable?symbol=EURUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tr models.Tradeability
	require.NoError(t, json.Unmarshal(env.Data, &tr))
	assert.True(t, tr.Allowed)

	rec, _ = do(t, e, http.MethodGet, "/api/tradeable", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/news", `{"time":"2025-03-10T10:05:00Z","currency":"USD","title":"CPI"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = do(t, e, http.MethodPost, "/api/news", `{"time":"2025-03-10T10:05:00Z","currency":"DOLLAR","title":"CPI"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/news", `{"time":"soon","currency":"USD","title":"CPI"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, e, http.MethodGet, "/api/blackout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bo blackoutResponse
	require.NoError(t, json.Unmarshal(env.Data, &bo))
	assert.True(t, bo.Active)
	assert.Len(t, bo.Events, 1)

	_, env = do(t, e, http.MethodGet, "/api/tradeable?symbol=EURUSD", "")
	require.NoError(t, json.Unmarshal(env.Data, &tr))
	assert.Equal(t, usecase.ReasonNewsBlackout, tr.Reason)

	rec, env = do(t, e, http.MethodGet, "/api/news?hours=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 1, list.Total)

	rec, _ = do(t, e, http.MethodPatch, "/api/sessions/Frankfurt", `{"active":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodPatch, "/api/sessions/London", `{"timezone":"Mars/Olympus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, e, http.MethodPatch, "/api/sessions/London", `{"end":"09:30"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s models.TradingSession
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "09:30", s.End)

	rec, env = do(t, e, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sr sessionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &sr))
	assert.Empty(t, sr.Open)
	require.Len(t, sr.Sessions, 1)
}

func TestMutationsAreRateLimited(t *testing.T) {
	e := newTestServer(t, ratelimit.New(0.001, 1))

	rec, _ := do(t, e, http.MethodPost, "/api/providers/a/disable", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/api/providers/a/enable", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/providers", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}
