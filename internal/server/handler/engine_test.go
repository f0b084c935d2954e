package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winyoulife/arbengine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine scripts engine responses for handler tests.
type fakeEngine struct {
	state      domain.EngineState
	status     domain.EngineStatus
	pauseErr   error
	resumeErr  error
	stopped    bool
	detectOpps []domain.ArbitrageOpportunity
	detectErr  error
	execRec    domain.ExecutionRecord
	execErr    error
	execID     string
	history    []domain.ExecutionRecord
	live       []domain.ArbitrageOpportunity
	sortKey    domain.SortKey
}

func (f *fakeEngine) State() domain.EngineState   { return f.state }
func (f *fakeEngine) Status() domain.EngineStatus { return f.status }
func (f *fakeEngine) Pause(ctx context.Context) error {
	if f.pauseErr == nil {
		f.state = domain.EnginePaused
	}
	return f.pauseErr
}
func (f *fakeEngine) Resume(ctx context.Context) error {
	if f.resumeErr == nil {
		f.state = domain.EngineRunning
	}
	return f.resumeErr
}
func (f *fakeEngine) Stop() { f.stopped = true }
func (f *fakeEngine) ManualDetect(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	return f.detectOpps, f.detectErr
}
func (f *fakeEngine) ManualExecute(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	f.execID = id
	return f.execRec, f.execErr
}
func (f *fakeEngine) History(limit int) []domain.ExecutionRecord {
	if limit > 0 && limit < len(f.history) {
		return f.history[:limit]
	}
	return f.history
}
func (f *fakeEngine) Opportunities(key domain.SortKey) []domain.ArbitrageOpportunity {
	f.sortKey = key
	return f.live
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestEnginePause(t *testing.T) {
	eng := &fakeEngine{state: domain.EngineRunning}
	h := NewEngineHandler(eng, testLogger())

	rr := httptest.NewRecorder()
	h.Pause(rr, httptest.NewRequest(http.MethodPost, "/api/engine/pause", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "paused", decodeBody(t, rr)["state"])
}

func TestEnginePauseInvalidState(t *testing.T) {
	eng := &fakeEngine{
		state:    domain.EngineStopped,
		pauseErr: domain.ErrInvalidState,
	}
	h := NewEngineHandler(eng, testLogger())

	rr := httptest.NewRecorder()
	h.Pause(rr, httptest.NewRequest(http.MethodPost, "/api/engine/pause", nil))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "invalid engine state")
}

func TestEngineResume(t *testing.T) {
	eng := &fakeEngine{state: domain.EnginePaused}
	h := NewEngineHandler(eng, testLogger())

	rr := httptest.NewRecorder()
	h.Resume(rr, httptest.NewRequest(http.MethodPost, "/api/engine/resume", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "running", decodeBody(t, rr)["state"])
}

func TestEngineResumeInvalidState(t *testing.T) {
	eng := &fakeEngine{
		state:     domain.EngineRunning,
		resumeErr: domain.ErrInvalidState,
	}
	h := NewEngineHandler(eng, testLogger())

	rr := httptest.NewRecorder()
	h.Resume(rr, httptest.NewRequest(http.MethodPost, "/api/engine/resume", nil))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestEngineStopAccepted(t *testing.T) {
	eng := &fakeEngine{state: domain.EngineRunning}
	h := NewEngineHandler(eng, testLogger())

	rr := httptest.NewRecorder()
	h.Stop(rr, httptest.NewRequest(http.MethodPost, "/api/engine/stop", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, eng.stopped)
}

func TestEngineDetect(t *testing.T) {
	eng := &fakeEngine{detectOpps: []domain.ArbitrageOpportunity{
		{ID: "o1", Kind: domain.StrategyCrossVenue},
		{ID: "o2", Kind: domain.StrategyTriangular},
	}}
	h := NewEngineHandler(eng, testLogger())

	rr := httptest.NewRecorder()
	h.Detect(rr, httptest.NewRequest(http.MethodPost, "/api/engine/detect", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeBody(t, rr)["count"])
}

func TestEngineDetectError(t *testing.T) {
	eng := &fakeEngine{detectErr: errors.New("quote source down")}
	h := NewEngineHandler(eng, testLogger())

	rr := httptest.NewRecorder()
	h.Detect(rr, httptest.NewRequest(http.MethodPost, "/api/engine/detect", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestEngineExecute(t *testing.T) {
	eng := &fakeEngine{execRec: domain.ExecutionRecord{
		ID:            "e1",
		OpportunityID: "o1",
		Status:        domain.ExecCompleted,
		ActualProfit:  1.8,
	}}
	h := NewEngineHandler(eng, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/engine/execute/o1", nil)
	r.SetPathValue("id", "o1")
	rr := httptest.NewRecorder()
	h.Execute(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "o1", eng.execID)
	assert.Equal(t, "e1", decodeBody(t, rr)["ID"])
}

func TestEngineExecuteMissingID(t *testing.T) {
	h := NewEngineHandler(&fakeEngine{}, testLogger())

	rr := httptest.NewRecorder()
	h.Execute(rr, httptest.NewRequest(http.MethodPost, "/api/engine/execute/", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEngineExecuteErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"expired", domain.ErrExpired, http.StatusGone},
		{"invalid state", domain.ErrInvalidState, http.StatusConflict},
		{"risk denied", errors.New("risk: score above limit"), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewEngineHandler(&fakeEngine{execErr: tc.err}, testLogger())

			r := httptest.NewRequest(http.MethodPost, "/api/engine/execute/o1", nil)
			r.SetPathValue("id", "o1")
			rr := httptest.NewRecorder()
			h.Execute(rr, r)

			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestParseListOpts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/audit?limit=10&offset=5&since=2026-08-01T00:00:00Z", nil)
	opts := parseListOpts(r)

	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 5, opts.Offset)
	require.NotNil(t, opts.Since)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), opts.Since.UTC())
	assert.Nil(t, opts.Until)
}

func TestParseListOptsDefaultsAndClamps(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, 50, opts.Limit)
	assert.Zero(t, opts.Offset)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/audit?limit=9999", nil))
	assert.Equal(t, 500, opts.Limit)

	// Garbage values fall back to defaults.
	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/audit?limit=x&offset=-3&since=yesterday", nil))
	assert.Equal(t, 50, opts.Limit)
	assert.Zero(t, opts.Offset)
	assert.Nil(t, opts.Since)
}
