package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	shipmentsapi "github.com/BearBump/TrackLedger/internal/api/shipments_api"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// snapshotResponse reports when the persisted snapshot was last written.
// UpdatedAt is omitted when the backend does not record it or nothing was saved yet.
type snapshotResponse struct {
	Key        string     `json:"key"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	AgeSeconds int64      `json:"age_seconds,omitempty"`
}

func newRouter(swaggerPath string, deps trackStoreDeps) (http.Handler, error) {
	if swaggerPath == "" {
		return nil, fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(swaggerPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("swagger file not found: %s", swaggerPath)
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.refresher == nil {
			_, _ = w.Write([]byte(`{"error":"refresher not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(deps.refresher.Stats())
	})
	r.Get("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := snapshotResponse{Key: deps.storeKey}
		if deps.snapshots != nil {
			at, ok, err := deps.snapshots.UpdatedAt(r.Context(), deps.storeKey)
			if err != nil {
				deps.log.Error("snapshot updated_at", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"snapshot backend unavailable"}`))
				return
			}
			if ok {
				at = at.UTC()
				resp.UpdatedAt = &at
				resp.AgeSeconds = int64(time.Since(at).Seconds())
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.refresher == nil {
			_, _ = w.Write([]byte(`{"error":"refresher not wired"}`))
			return
		}
		deps.refresher.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	shipmentsapi.New(deps.svc, deps.log.Named("api")).Routes(r)
	return r, nil
}
