package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"macropulse/internal/digest"
	"macropulse/internal/logging"
)

// Runner triggers one full pipeline run.
type Runner interface {
	Run(ctx context.Context) (*digest.RunStats, error)
}

// ReportReader exposes stored reports for inspection.
type ReportReader interface {
	LatestReport(ctx context.Context) (*digest.Report, error)
}

// Server exposes the pipeline over HTTP: a health probe, a manual run
// trigger, and read access to the latest report.
type Server struct {
	runner     Runner
	reports    ReportReader
	logger     logging.Logger
	runTimeout time.Duration
}

func NewServer(runner Runner, reports ReportReader, logger logging.Logger, runTimeout time.Duration) *Server {
	if runTimeout <= 0 {
		runTimeout = 2 * time.Hour
	}
	return &Server{
		runner:     runner,
		reports:    reports,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.health)
	mux.HandleFunc("/v1/run", s.handleRun)
	mux.HandleFunc("/v1/reports/latest", s.handleLatestReport)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	stats, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.WithFields(logging.Fields{"error": err.Error()}).Error("manual run failed")
		status := http.StatusInternalServerError
		if errors.Is(err, digest.ErrSummaryGeneration) || errors.Is(err, digest.ErrDeliveryFailed) {
			// retried naturally on the next run
			status = http.StatusBadGateway
		}
		s.writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "completed",
		"stats":  stats,
	})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, err := s.reports.LatestReport(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		s.writeError(w, http.StatusNotFound, "no reports yet")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
