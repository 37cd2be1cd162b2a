package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kwv/meshdiff/mesh"
)

// maxJobBytes caps POST /analyze bodies.
const maxJobBytes = 64 << 20

// jobRunner runs a comparison job and records its report.
type jobRunner func(ctx context.Context, job *mesh.ComparisonJob) (*mesh.Report, error)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(store *mesh.ReportStore, config *mesh.Config, runJob jobRunner) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Reports   int       `json:"reports"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Reports:   store.Len(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	// Run a comparison synchronously and return its summary
	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJobBytes))
		if err != nil {
			http.Error(w, "Request body too large or unreadable", http.StatusRequestEntityTooLarge)
			return
		}
		job, err := mesh.ParseComparisonJob(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := runJob(r.Context(), job)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, mesh.ErrInvalidInput):
				status = http.StatusUnprocessableEntity
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				status = http.StatusServiceUnavailable
			}
			log.Printf("[HTTP] /analyze failed: %v", err)
			http.Error(w, err.Error(), status)
			return
		}

		log.Printf("[HTTP] /analyze -> report %s (%s)", report.ID, report.Grade)
		w.Header().Set("Location", "/reports/"+report.ID)
		writeJSON(w, http.StatusCreated, report.Summary())
	})

	// Report summaries, newest first
	mux.HandleFunc("GET /reports", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.List())
	})

	// Full report including per-point deviations and colors
	mux.HandleFunc("GET /reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		report, ok := lookupReport(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("GET /reports/{id}/preview.png", func(w http.ResponseWriter, r *http.Request) {
		pr, ok := previewFor(w, r, store, config)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")

		var err error
		if r.URL.Query().Get("render") == "vector" {
			err = pr.RenderVectorPNG(w)
		} else {
			err = pr.WritePNG(w)
		}
		if err != nil {
			log.Printf("Error encoding preview PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /reports/{id}/preview.svg", func(w http.ResponseWriter, r *http.Request) {
		pr, ok := previewFor(w, r, store, config)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := pr.RenderSVG(w); err != nil {
			log.Printf("Error encoding preview SVG: %v", err)
		}
	})

	return mux
}

// lookupReport resolves {id}; "latest" names the newest report.
func lookupReport(w http.ResponseWriter, r *http.Request, store *mesh.ReportStore) (*mesh.Report, bool) {
	id := r.PathValue("id")
	var (
		report *mesh.Report
		ok     bool
	)
	if id == "latest" {
		report, ok = store.Latest()
	} else {
		report, ok = store.Get(id)
	}
	if !ok {
		http.Error(w, "Report not found", http.StatusNotFound)
		return nil, false
	}
	return report, true
}

// previewFor builds a renderer for {id}. Reports reloaded from the cache
// carry no point data and cannot be drawn.
func previewFor(w http.ResponseWriter, r *http.Request, store *mesh.ReportStore, config *mesh.Config) (*mesh.PreviewRenderer, bool) {
	report, ok := lookupReport(w, r, store)
	if !ok {
		return nil, false
	}
	pr, err := report.Preview(config.Preview)
	if err != nil {
		log.Printf("[HTTP] preview for %s unavailable: %v", report.ID, err)
		http.Error(w, "Preview not available for this report", http.StatusNotFound)
		return nil, false
	}
	return pr, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
