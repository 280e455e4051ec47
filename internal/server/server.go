// Package server exposes the live preview and the tile pyramid over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/noysway/internal/mbtiles"
	"github.com/MeKo-Tech/noysway/internal/preview"
)

// Status is the body of GET /status.
type Status struct {
	Preview *preview.Status `json:"preview,omitempty"`
	Tiles   *RenderStatus   `json:"tiles,omitempty"`
}

// Routes collects the handlers mounted by New. Any may be nil.
type Routes struct {
	Preview *PreviewHandler
	Tiles   *OnDemandTiles
	// TileJSON describes Tiles at /tiles.json.
	TileJSON *mbtiles.Metadata
	Logger   *slog.Logger
}

// New builds the HTTP mux:
//
//	GET  /healthz
//	GET  /status          JSON
//	GET  /status/stream   server-sent events
//	GET  /frame.png       current preview frame
//	POST /regenerate      raise the regenerate flag
//	GET  /tiles/z{z}_x{x}_y{y}.png
//	GET  /tiles.json      TileJSON for the tiles
func New(rt Routes) http.Handler {
	log := rt.Logger
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	status := func() Status {
		var s Status
		if rt.Preview != nil {
			ps := rt.Preview.Status()
			s.Preview = &ps
		}
		if rt.Tiles != nil {
			ts := rt.Tiles.Status()
			s.Tiles = &ts
		}
		return s
	}
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		statusJSON(w, status(), log)
	})
	mux.HandleFunc("GET /status/stream", func(w http.ResponseWriter, r *http.Request) {
		streamStatus(w, r, status, 250*time.Millisecond)
	})

	if rt.Preview != nil {
		mux.HandleFunc("GET /frame.png", rt.Preview.Frame)
		mux.HandleFunc("POST /regenerate", rt.Preview.Regenerate)
	}
	if rt.Tiles != nil {
		mux.Handle("/tiles/", withCORS(rt.Tiles.Handler()))
		if rt.TileJSON != nil {
			mux.Handle("GET /tiles.json", withCORS(tileJSONHandler(*rt.TileJSON, log)))
		}
	}
	return mux
}

// streamStatus pushes the status as server-sent events until the client
// goes away.
func streamStatus(w http.ResponseWriter, r *http.Request, status func() Status, every time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func() bool {
		data, err := json.Marshal(status())
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	if !send() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
