package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"archivist/internal/api"
	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/logs"
	"archivist/internal/pipeline"
	"archivist/internal/progress"
	"archivist/internal/services"
)

const (
	maxRequestBody  = 1 << 20
	defaultLogLines = 100
	maxLogWait      = 10 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.server.Handler = srv.requireToken(cfg.Paths.APIToken, srv.routes())
	return srv, nil
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathStatus, s.handleStatus)
	mux.HandleFunc("GET "+api.PathRuns, s.handleListRuns)
	mux.HandleFunc("POST "+api.PathRuns, s.handleStartRun)
	mux.HandleFunc("GET "+api.PathRuns+"/{id}", s.handleRun)
	mux.HandleFunc("DELETE "+api.PathRuns+"/{id}", s.handlePurgeRun)
	mux.HandleFunc("GET "+api.PathRuns+"/{id}/log", s.handleRunLog)
	mux.HandleFunc("GET "+api.PathWorkers, s.handleWorkers)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		APIBind:      status.APIBind,
		Checkpoint:   status.Checkpoint,
		ActiveRuns:   status.ActiveRuns,
		TotalRuns:    status.TotalRuns,
		Workers:      status.Workers,
		Workflows:    status.Workflows,
	})
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	records := s.daemon.Runner().Runs()
	runs := make([]api.Run, 0, len(records))
	for _, rec := range records {
		runs = append(runs, api.FromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: runs})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	tracker := s.daemon.Runner().Tracker()
	steps, err := tracker.OrderedSteps(runID)
	if err != nil && !progress.IsNotFound(err) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rec, known := s.daemon.Runner().Lookup(runID)
	if !known && progress.IsNotFound(err) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run := api.FromRecord(rec)
	if !known {
		run = api.Run{RunID: runID}
	}
	run.Steps = api.FromProcessSteps(steps)
	s.writeJSON(w, http.StatusOK, api.RunResponse{Run: run})
}

func (s *apiServer) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req api.StartRunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Workflow) == "" {
		s.writeError(w, http.StatusBadRequest, "workflow is required")
		return
	}
	runID, err := s.daemon.StartRun(strings.TrimSpace(req.Workflow), pipeline.Request{
		Container:  strings.TrimSpace(req.Container),
		Tenant:     strings.TrimSpace(req.Tenant),
		Properties: req.Properties,
	})
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.log().Info("run submitted",
		logging.String(logging.FieldRunID, runID),
		logging.String("workflow_id", req.Workflow),
		logging.String("container", req.Container),
		logging.String(logging.FieldEventType, "run_submitted"),
	)
	s.writeJSON(w, http.StatusAccepted, api.StartRunResponse{RunID: runID})
}

func (s *apiServer) handlePurgeRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	removed, known := s.daemon.Runner().Forget(runID)
	switch {
	case !known:
		s.writeError(w, http.StatusNotFound, "run not found")
	case !removed:
		s.writeError(w, http.StatusConflict, "run is still in progress")
	default:
		s.writeJSON(w, http.StatusOK, api.PurgeRunResponse{RunID: runID, Purged: true})
	}
}

func (s *apiServer) handleRunLog(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	rec, known := s.daemon.Runner().Lookup(runID)
	if !known {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.LogPath == "" {
		s.writeError(w, http.StatusNotFound, "run has no log file")
		return
	}

	query := r.URL.Query()
	opts := logs.Options{Offset: -1, Limit: defaultLogLines}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		opts.Offset = offset
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}
	if raw := query.Get("wait_ms"); raw != "" {
		waitMS, err := strconv.Atoi(raw)
		if err != nil || waitMS < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid wait_ms")
			return
		}
		opts.Follow = true
		opts.Wait = min(time.Duration(waitMS)*time.Millisecond, maxLogWait)
	}

	result, err := logs.Tail(r.Context(), rec.LogPath, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lines := result.Lines
	if lines == nil {
		lines = []string{}
	}
	s.writeJSON(w, http.StatusOK, api.RunLogResponse{RunID: runID, Lines: lines, Offset: result.Offset})
}

func (s *apiServer) handleWorkers(w http.ResponseWriter, r *http.Request) {
	registry := s.daemon.Registry()
	probe := r.URL.Query().Get("probe")
	if probe == "1" || strings.EqualFold(probe, "true") {
		results := registry.ProbeAll(r.Context())
		s.writeJSON(w, http.StatusOK, api.WorkersResponse{Workers: api.FromProbeResults(results)})
		return
	}
	s.writeJSON(w, http.StatusOK, api.WorkersResponse{Workers: api.FromWorkerInfo(registry.Snapshot())})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
