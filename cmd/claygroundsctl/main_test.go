package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/hudle/reports/process":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["fileName"] == "broken.xlsx" {
				w.WriteHeader(http.StatusInternalServerError)
				writeJSON(w, map[string]any{"success": false, "message": "File could not be read"})
				return
			}
			writeJSON(w, map[string]any{"success": true, "operationId": "op-7", "venueCount": 2})
		case "/api/progress/op-7":
			writeJSON(w, map[string]any{"success": true, "progress": map[string]any{
				"id": "op-7", "status": "completed", "current": 2, "total": 2, "progress": 100,
				"duration": 4, "startTime": time.Now().UTC().Format(time.RFC3339), "logs": []any{},
			}})
		case "/api/storage/bookings/files/valid":
			writeJSON(w, map[string]any{"success": true, "files": []any{
				map[string]any{"fileName": "july.xlsx", "size": 2048, "uploadDate": "2025-08-01T10:00:00Z"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupEnv(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	t.Setenv("CLAYGROUNDS_CONFIG", "")
	t.Setenv("CLAYGROUNDS_API_RETRY_COUNT", "0")
	t.Setenv("CLAYGROUNDS_POLL_RUNNING_INTERVAL", "1ms")
	t.Setenv("CLAYGROUNDS_POLL_IDLE_INTERVAL", "1ms")
	return "sqlite://" + filepath.Join(t.TempDir(), "cli.db")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := Run(ctx, append([]string{"claygroundsctl", "--no-log"}, args...), nil, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun(t *testing.T) {
	t.Run("Should process bucket files and remember the finished operation", func(t *testing.T) {
		db := setupEnv(t)
		srv := newServer(t)

		out, err := runCLI(t, "--api-url", srv.URL, "--db-url", db, "process", "all")
		require.NoError(t, err)
		assert.Contains(t, out, "operation op-7 started for 2 venues")
		assert.Contains(t, out, "op-7 finished: completed")

		out, err = runCLI(t, "--api-url", srv.URL, "--db-url", db, "history", "--format", "json")
		require.NoError(t, err)

		var summaries []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, "op-7", summaries[0]["id"])
		assert.Equal(t, "completed", summaries[0]["status"])
	})

	t.Run("Should fail when the server rejects processing", func(t *testing.T) {
		db := setupEnv(t)
		srv := newServer(t)

		_, err := runCLI(t, "--api-url", srv.URL, "--db-url", db, "process", "broken.xlsx")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "File could not be read")
	})

	t.Run("Should list bucket files as a table", func(t *testing.T) {
		db := setupEnv(t)
		srv := newServer(t)

		out, err := runCLI(t, "--api-url", srv.URL, "--db-url", db, "files")
		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "july.xlsx")
		assert.Contains(t, out, "2048")
	})

	t.Run("Should clear the history", func(t *testing.T) {
		db := setupEnv(t)
		srv := newServer(t)

		out, err := runCLI(t, "--api-url", srv.URL, "--db-url", db, "history", "--clear")
		require.NoError(t, err)
		assert.Contains(t, out, "history cleared")
	})

	t.Run("Should reject unknown commands", func(t *testing.T) {
		_, err := runCLI(t, "teleport")
		assert.Error(t, err)
	})
}
