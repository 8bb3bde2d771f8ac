package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/events"
	applog "claygrounds-desktop/internal/logger"
	"claygrounds-desktop/internal/models"
	"claygrounds-desktop/internal/services/session"
	"claygrounds-desktop/internal/services/workflow"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.API.RetryCount = 0
	cfg.Database.URL = "sqlite://" + filepath.Join(t.TempDir(), "app.db")
	cfg.Polling.RunningInterval = time.Millisecond
	cfg.Polling.IdleInterval = 2 * time.Millisecond
	cfg.Polling.ErrorInterval = time.Millisecond
	cfg.Polling.MaxErrorInterval = 2 * time.Millisecond
	cfg.Workflow.AutoReturnAfterEmail = false
	return cfg
}

func TestNew(t *testing.T) {
	t.Run("Should run an email report end to end", func(t *testing.T) {
		keyring.MockInit()
		var polls atomic.Int32

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/hudle/reports/email":
				writeJSON(w, map[string]any{"success": true, "operationId": "op-1", "venueCount": 2})
			case "/api/progress/op-1":
				status, current := "running", 1
				if polls.Add(1) >= 2 {
					status, current = "completed", 2
				}
				writeJSON(w, map[string]any{"success": true, "progress": map[string]any{
					"id": "op-1", "status": status, "current": current, "total": 2,
					"progress": current * 50, "duration": 3, "startTime": time.Now().UTC().Format(time.RFC3339), "logs": []any{},
				}})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		rec := &events.Recorder{}
		svcs, err := New(testConfig(t, srv.URL), applog.Noop(), Options{Emitter: rec})
		require.NoError(t, err)
		defer svcs.Close()

		svcs.Workflow.Open()
		require.NoError(t, svcs.Workflow.Select(workflow.StepEmailAuth))
		res, err := svcs.Workflow.SubmitEmailAuth(context.Background(), session.Credentials{
			Email: "a@b.com", Password: "x", StartDate: "2025-07-01", EndDate: "2025-07-31",
		})
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)

		require.Eventually(t, func() bool {
			op := svcs.Operations.Current()
			return op != nil && op.Status == models.StatusCompleted
		}, 2*time.Second, 5*time.Millisecond)
		<-svcs.Poller.Done()

		saved, err := svcs.History.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, saved, 1)
		assert.Equal(t, "op-1", saved[0].OperationID)

		last, err := svcs.Session.LastUsed(context.Background())
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, "a@b.com", last.Email)
		assert.NotEmpty(t, rec.Named(events.WorkflowState))
	})

	t.Run("Should fail for an unsupported database", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1")
		cfg.Database.URL = "mysql://nowhere"
		_, err := New(cfg, applog.Noop(), Options{})
		assert.Error(t, err)
	})
}
