package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ecomverify/internal/domain"
	"ecomverify/internal/logger"
	"ecomverify/internal/ports"
	"ecomverify/internal/services/analyzer"
	"ecomverify/internal/services/reports"
)

const (
	defaultAnalyzeTimeout = 60 * time.Second
	maxBodyBytes          = 64 << 10
	pingTimeout           = 2 * time.Second
)

// Options carries the knobs the server takes from config.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	Workers        int
	// Checks are pinged by /status, keyed by dependency name.
	Checks map[string]ports.Pinger
}

type Server struct {
	analyzer ports.Analyzer
	reports  ports.Reports
	checks   map[string]ports.Pinger
	workers  int
	limiter  *ipLimiter
}

func New(a ports.Analyzer, r ports.Reports, opts Options) *Server {
	return &Server{
		analyzer: a,
		reports:  r,
		checks:   opts.Checks,
		workers:  opts.Workers,
		limiter:  newIPLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
}

// Routes returns a chi.Router with middleware and handlers mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, Observe, Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Get("/status", s.getStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/analyze", s.postAnalyze)
		r.Get("/analyses", s.getAnalyses)
		r.Get("/analyses/lookup", s.getAnalysisByURL)
		r.Get("/jobs/{id}", s.getJob)
	})
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Workers      int               `json:"workers"`
}

// getStatus always answers 200; a failed dependency only flips the overall
// status to "degraded" since analysis still works without db and cache.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: "ok", Dependencies: map[string]string{}, Workers: s.workers}
	for name, p := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Dependencies[name] = "error: " + err.Error()
			continue
		}
		resp.Dependencies[name] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

type analyzeRequest struct {
	URL string `json:"url"`
}

type analyzeResponse struct {
	URL    string                `json:"url"`
	Source domain.Source         `json:"source"`
	Result domain.AnalysisResult `json:"result"`
}

type acceptedResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

func (s *Server) postAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q := r.URL.Query()
	refresh, err := queryBool(q.Get("refresh"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "refresh must be a boolean")
		return
	}
	async, err := queryBool(q.Get("async"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "async must be a boolean")
		return
	}

	if async {
		id, err := s.analyzer.Enqueue(r.Context(), req.URL)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, acceptedResponse{JobID: id, StatusURL: "/jobs/" + id})
		return
	}

	timeout := defaultAnalyzeTimeout
	if v := q.Get("timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a positive number of seconds")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	res, src, err := s.analyzer.Analyze(ctx, req.URL, ports.AnalyzeOptions{Refresh: refresh})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{URL: res.URL, Source: src, Result: res})
}

func (s *Server) getAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	items, err := s.reports.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.AnalysisSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": items, "count": len(items)})
}

func (s *Server) getAnalysisByURL(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	res, err := s.reports.Lookup(r.Context(), target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.analyzer.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// fail maps service errors onto status codes. Anything unrecognised is a 500
// and gets logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analyzer.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		// The analysis keeps running; a later request is served from the store.
		writeError(w, http.StatusGatewayTimeout, "analysis did not finish in time, retry later")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, analyzer.ErrQueueUnavailable), errors.Is(err, reports.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
