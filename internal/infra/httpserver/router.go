package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/christophervi/secainw-backend/internal/application/baseline"
	"github.com/christophervi/secainw-backend/internal/application/detection"
	"github.com/christophervi/secainw-backend/internal/application/imports"
	domai "github.com/christophervi/secainw-backend/internal/domain/ai"
	"github.com/christophervi/secainw-backend/internal/domain/events"
	"github.com/christophervi/secainw-backend/internal/middleware"
)

type Router struct {
	detection *detection.Service
	baseline  *baseline.Service
	importer  *imports.Service
	repo      events.Repository
	dataDir   string
}

func NewRouter(det *detection.Service, base *baseline.Service, imp *imports.Service, repo events.Repository, dataDir string, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{detection: det, baseline: base, importer: imp, repo: repo, dataDir: dataDir}
	mux := chi.NewRouter()

	mux.Use(middleware.Logging)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	mux.Get("/health", middleware.HealthHandler(checkers))

	// Model backend calls are slow and metered, so the analysis surface is
	// rate limited per client IP.
	limiter := middleware.NewRateLimiter(30, 1)

	mux.Route("/api/anomaly", func(rt chi.Router) {
		rt.Use(limiter.Handler)
		rt.Post("/detect", r.wrap(r.handleDetect))
		rt.Post("/detect/compare", r.wrap(r.handleCompare))
		rt.Post("/detect/rules", r.wrap(r.handleDetectRules))
		rt.Post("/detect/{model}", r.wrap(r.handleDetectWithModel))
		rt.Get("/models", r.wrap(r.handleModels))
		rt.Get("/events", r.wrap(r.handleEvents))
		rt.Get("/events/{id}", r.wrap(r.handleEvent))
		rt.Get("/stats", r.wrap(r.handleStats))
	})

	mux.Route("/api/import", func(rt chi.Router) {
		rt.Post("/netflow", r.wrap(r.handleImportNetflow))
		rt.Post("/windows-logs", r.wrap(r.handleImportWindowsLogs))
		rt.Get("/status", r.wrap(r.handleImportStatus))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domai.ErrUnavailable):
				http.Error(w, err.Error(), http.StatusBadGateway)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func (r *Router) decodeRequest(req *http.Request) (events.AnalysisRequest, error) {
	var ar events.AnalysisRequest
	if err := json.NewDecoder(req.Body).Decode(&ar); err != nil {
		return ar, fmt.Errorf("decode request: %w", err)
	}
	return ar, ar.Validate()
}

// POST /api/anomaly/detect
func (r *Router) handleDetect(w http.ResponseWriter, req *http.Request) error {
	ar, err := r.decodeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	event, err := r.detection.Analyze(req.Context(), ar)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, event)
}

// POST /api/anomaly/detect/{model}
func (r *Router) handleDetectWithModel(w http.ResponseWriter, req *http.Request) error {
	ar, err := r.decodeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	event, err := r.detection.AnalyzeWithBackend(req.Context(), ar, chi.URLParam(req, "model"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, event)
}

// POST /api/anomaly/detect/compare
func (r *Router) handleCompare(w http.ResponseWriter, req *http.Request) error {
	ar, err := r.decodeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	event, err := r.detection.CompareBackends(req.Context(), ar)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, event)
}

// POST /api/anomaly/detect/rules
func (r *Router) handleDetectRules(w http.ResponseWriter, req *http.Request) error {
	ar, err := r.decodeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	event, err := r.baseline.Analyze(req.Context(), ar)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, event)
}

// GET /api/anomaly/models
func (r *Router) handleModels(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"models":  r.detection.BackendNames(),
		"default": "deepseek",
	})
}

// GET /api/anomaly/events?limit=N
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	limit := 20
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list, err := r.repo.Latest(req.Context(), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /api/anomaly/events/{id}
func (r *Router) handleEvent(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil
	}
	event, err := r.repo.FindByID(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, event)
}

// GET /api/anomaly/stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	stats := make(map[string]int)
	for _, v := range []events.Verdict{events.VerdictNormal, events.VerdictSuspicious, events.VerdictAnomalous} {
		list, err := r.repo.FindByVerdict(req.Context(), v)
		if err != nil {
			return err
		}
		stats[string(v)] = len(list)
	}
	return writeJSON(w, http.StatusOK, stats)
}

type importRequest struct {
	Filename string `json:"filename"`
}

// POST /api/import/netflow
func (r *Router) handleImportNetflow(w http.ResponseWriter, req *http.Request) error {
	return r.startImport(w, req, "netflow", r.importer.ImportNetflow)
}

// POST /api/import/windows-logs
func (r *Router) handleImportWindowsLogs(w http.ResponseWriter, req *http.Request) error {
	return r.startImport(w, req, "windows-logs", r.importer.ImportWindowsLogs)
}

// startImport kicks off the import in the background; progress is polled via
// /api/import/status. Runs with a fresh context so it survives the request.
func (r *Router) startImport(w http.ResponseWriter, req *http.Request, kind string, run func(context.Context, string) (imports.Summary, error)) error {
	var body importRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Filename == "" {
		http.Error(w, "filename is required", http.StatusBadRequest)
		return nil
	}
	path := filepath.Join(r.dataDir, kind, filepath.Base(body.Filename))

	go func() {
		summary, err := run(context.Background(), path)
		if err != nil {
			log.Printf("%s import failed: %v", kind, err)
			return
		}
		log.Printf("%s import finished: %d records from %s", kind, summary.Processed, summary.Filename)
	}()

	return writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "started",
		"filename": body.Filename,
	})
}

// GET /api/import/status
func (r *Router) handleImportStatus(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.importer.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
