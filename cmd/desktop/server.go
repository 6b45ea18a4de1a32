package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/bridge"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
	"github.com/kimhsiao/pawtrail/core/internal/telemetry"
)

const maxBridgeBody = 1 << 20

// newMux registers the desktop API on a fresh ServeMux.
func newMux(core *bridge.Core, hub *WSHub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":  "ok",
			"service": "pawtrail-desktop",
			"online":  core.Monitor.IsConnected(),
		}
		status := http.StatusOK
		if core.StorageCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := core.StorageCheck(ctx); err != nil {
				health["status"] = "degraded"
				health["storage"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, health)
	})

	mux.HandleFunc("GET /api/walks/current", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"walk": core.CurrentWalk()})
	})

	mux.HandleFunc("GET /api/walks/pending", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"pending": core.PendingCount(r.Context())})
	})

	mux.HandleFunc("POST /api/sync", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, core.SyncNow(r.Context()))
	})

	mux.HandleFunc("GET /api/sync/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, core.Scheduler.Status(r.Context()))
	})

	// Same envelope as the mobile FFI, so the app can run against the
	// desktop core unchanged.
	mux.HandleFunc("POST /api/bridge/{method}", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBridgeBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(core.Dispatch(r.Context(), r.PathValue("method"), body))
	})

	mux.HandleFunc("GET /ws", HandleWebSocket(hub))

	if core.Registry != nil {
		mux.Handle("GET /metrics", telemetry.Handler(core.Registry))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", zap.Error(err))
	}
}
