// pkg/api/handlers_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/lock"
	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/pipeline"
	"github.com/David-Botos/flat-ingress/pkg/scheduler"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// mockFlow implements FlowService for testing
type mockFlow struct {
	RunFunc      func(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error)
	StatusFunc   func(ctx context.Context) (*model.ControlRecord, error)
	LogsFunc     func(ctx context.Context, runID string) ([]model.RunLog, error)
	ResetFunc    func(ctx context.Context) (model.ControlStatus, error)
	OverviewFunc func(ctx context.Context) (*pipeline.Overview, error)
}

func (m *mockFlow) Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, trigger)
	}
	return &pipeline.Result{State: pipeline.StateDone}, nil
}

func (m *mockFlow) Status(ctx context.Context) (*model.ControlRecord, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return nil, store.ErrNotFound
}

func (m *mockFlow) Logs(ctx context.Context, runID string) ([]model.RunLog, error) {
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, runID)
	}
	return nil, nil
}

func (m *mockFlow) Reset(ctx context.Context) (model.ControlStatus, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx)
	}
	return "", nil
}

func (m *mockFlow) Overview(ctx context.Context) (*pipeline.Overview, error) {
	if m.OverviewFunc != nil {
		return m.OverviewFunc(ctx)
	}
	return &pipeline.Overview{}, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHandleRun(t *testing.T) {
	tests := []struct {
		name     string
		run      func(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error)
		wantCode int
		wantKind string
	}{
		{
			name: "done",
			run: func(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error) {
				return &pipeline.Result{RunID: "run-1", Trigger: trigger, State: pipeline.StateDone}, nil
			},
			wantCode: http.StatusOK,
		},
		{
			name: "aborted",
			run: func(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error) {
				return &pipeline.Result{State: pipeline.StateAborted},
					&pipeline.Error{Kind: pipeline.KindLockContention, Stage: model.StageLock, Err: lock.ErrAlreadyRunning}
			},
			wantCode: http.StatusConflict,
			wantKind: "LockContention",
		},
		{
			name: "failed",
			run: func(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error) {
				return &pipeline.Result{State: pipeline.StateFailed},
					&pipeline.Error{Kind: pipeline.KindTransformFailure, Stage: model.StageTransform, Err: errors.New("boom")}
			},
			wantCode: http.StatusInternalServerError,
			wantKind: "TransformFailure",
		},
		{
			name: "untyped error",
			run: func(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error) {
				return &pipeline.Result{}, errors.New("failed to release lock")
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&mockFlow{RunFunc: tt.run}, nil, zap.NewNop())
			w, body := serve(t, s, http.MethodPost, "/api/flow/run")

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["kind"])
			}
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "Done", body["state"])
				assert.Equal(t, "manual", body["trigger"])
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	s := NewServer(&mockFlow{}, nil, zap.NewNop())
	w, _ := serve(t, s, http.MethodGet, "/api/flow/status")
	assert.Equal(t, http.StatusNotFound, w.Code)

	s = NewServer(&mockFlow{StatusFunc: func(ctx context.Context) (*model.ControlRecord, error) {
		return &model.ControlRecord{ID: model.ControlRecordID, Status: model.StatusProcessed, RunID: "run-1"}, nil
	}}, nil, zap.NewNop())
	w, body := serve(t, s, http.MethodGet, "/api/flow/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PROCESSED", body["status"])
	assert.Equal(t, "run-1", body["runId"])
}

func TestHandleLogs(t *testing.T) {
	var gotRun string
	s := NewServer(&mockFlow{LogsFunc: func(ctx context.Context, runID string) ([]model.RunLog, error) {
		gotRun = runID
		return nil, nil
	}}, nil, zap.NewNop())

	w, body := serve(t, s, http.MethodGet, "/api/flow/logs/run-42")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-42", gotRun)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []interface{}{}, body["logs"])
}

func TestHandleReset(t *testing.T) {
	s := NewServer(&mockFlow{ResetFunc: func(ctx context.Context) (model.ControlStatus, error) {
		return model.StatusError, nil
	}}, nil, zap.NewNop())

	w, body := serve(t, s, http.MethodPost, "/api/flow/reset")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ERROR", body["previousStatus"])
	assert.Equal(t, "READY", body["status"])
}

func TestHandleStats(t *testing.T) {
	s := NewServer(&mockFlow{OverviewFunc: func(ctx context.Context) (*pipeline.Overview, error) {
		return &pipeline.Overview{RunID: "run-1", Status: "PROCESSED", Logs: model.LogCounts{Total: 7, Done: 7}}, nil
	}}, nil, zap.NewNop())

	w, body := serve(t, s, http.MethodGet, "/api/flow/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-1", body["runId"])
	logs := body["logs"].(map[string]interface{})
	assert.Equal(t, float64(7), logs["total"])
}

func TestHandleHealth(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("no reachable servers") })

	s := NewServer(&mockFlow{}, []HealthCheck{{"source", up}, {"control", up}}, zap.NewNop())
	w, body := serve(t, s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", body["status"])

	s = NewServer(&mockFlow{}, []HealthCheck{{"source", up}, {"control", down}}, zap.NewNop())
	w, body = serve(t, s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "DOWN", body["status"])
	assert.Equal(t, map[string]interface{}{"source": "UP", "control": "DOWN"}, body["components"])
}

func TestHandleInfo(t *testing.T) {
	next := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	s := NewServer(&mockFlow{}, nil, zap.NewNop(),
		WithVersion("1.2.3"),
		WithSchedule(func() []scheduler.EntryInfo {
			return []scheduler.EntryInfo{{Name: "pipeline", Spec: "0 0 * * * *", Next: next}}
		}))

	w, body := serve(t, s, http.MethodGet, "/api/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.3", body["version"])
	require.Len(t, body["schedule"], 1)
}
