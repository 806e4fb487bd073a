package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner triggers pipeline runs. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, w domain.Window) (pipeline.Report, error)
	RunTransform(ctx context.Context, w domain.Window) (pipeline.Report, error)
	DefaultWindow() domain.Window
}

// Server exposes health, readiness, metrics, and run-trigger HTTP endpoints.
type Server struct {
	httpServer *http.Server
	runner     Runner
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and POST /runs routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runner Runner, runTimeout time.Duration, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runner:     runner,
		runTimeout: runTimeout,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /runs", s.handleRun)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleRun runs the pipeline synchronously for ?start=YYYY-MM-DD&end=YYYY-MM-DD,
// or the default window when both are omitted. transform_only=true skips extract.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window, err := s.parseWindow(q.Get("start"), q.Get("end"))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	transformOnly := false
	if v := q.Get("transform_only"); v != "" {
		transformOnly, err = strconv.ParseBool(v)
		if err != nil {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid transform_only: " + v})
			return
		}
	}

	// The run outlives a dropped client; it is bounded by runTimeout instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.runTimeout)
	defer cancel()
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(s.runTimeout + 5*time.Second)); err != nil {
		s.logger.Debug("extend write deadline", "error", err)
	}

	var report pipeline.Report
	if transformOnly {
		report, err = s.runner.RunTransform(ctx, window)
	} else {
		report, err = s.runner.Run(ctx, window)
	}

	var stageErr *pipeline.StageError
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusOK, report)
	case errors.Is(err, pipeline.ErrRunInProgress):
		sharedobs.WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &stageErr):
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"run_id": report.RunID,
			"stage":  stageErr.Stage,
			"window": stageErr.Window,
			"error":  stageErr.Err.Error(),
		})
	default:
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) parseWindow(start, end string) (domain.Window, error) {
	switch {
	case start == "" && end == "":
		return s.runner.DefaultWindow(), nil
	case start == "" || end == "":
		return domain.Window{}, errors.New("start and end must be given together")
	default:
		return domain.ParseWindow(start, end)
	}
}
