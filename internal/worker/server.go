package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"archivist/internal/logging"
	"archivist/internal/services"
	"archivist/internal/status"
)

// Message identifiers produced by the worker process.
const (
	MessageHandlerNotFound = "HANDLER_NOT_FOUND"
	MessageHandlerFailed   = "HANDLER_FAILED"
)

// Server is the HTTP side of a worker process.
type Server struct {
	id        string
	catalogue *Catalogue
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer wires the worker endpoints around catalogue.
func NewServer(id string, catalogue *Catalogue, logger *slog.Logger) *Server {
	if id == "" {
		id = uuid.NewString()
	}
	if catalogue == nil {
		catalogue = NewCatalogue()
	}
	s := &Server{
		id:        id,
		catalogue: catalogue,
		logger:    logging.NewComponentLogger(logger, "worker").With(logging.String(logging.FieldWorkerID, id)),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc(unitsPath, s.handleUnits)
	s.mux.HandleFunc(healthPath, s.handleHealth)
	return s
}

// Handler exposes the endpoints, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on bind until ctx is cancelled.
func (s *Server) Run(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("worker listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("worker listening", logging.String("address", listener.Addr().String()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type healthResponse struct {
	WorkerID string   `json:"worker_id"`
	Ready    bool     `json:"ready"`
	Handlers []Health `json:"handlers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	handlers := s.catalogue.Health(r.Context())
	ready := true
	for _, h := range handlers {
		ready = ready && h.Ready
	}
	s.writeJSON(w, http.StatusOK, healthResponse{WorkerID: s.id, Ready: ready, Handlers: handlers})
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get(headerRequestID)
	}

	ctx := services.WithSession(r.Context(), firstNonEmpty(r.Header.Get(headerRunID), req.RunID), firstNonEmpty(r.Header.Get(headerTenantID), req.Context.TenantID))
	ctx = services.WithRequestID(ctx, req.RequestID)
	ctx = services.WithStep(ctx, req.Step.Name())
	ctx = services.WithObject(ctx, req.Context.ObjectName)

	outcome := s.Process(ctx, req)
	s.writeJSON(w, http.StatusOK, outcome)
}

// Process applies the step's actions in order to the request's item. The
// result is the fold of every executed action, keyed by handler name. A
// blocking action that ends KO or worse stops the remaining actions.
func (s *Server) Process(ctx context.Context, req Request) *status.ItemStatus {
	logger := logging.WithContext(ctx, s.logger)
	start := time.Now()
	item := status.New(req.Context.ObjectName)

	actions := req.Step.Actions()
	if len(actions) == 0 {
		item.Increment(status.OK)
	}
	for _, action := range actions {
		outcome := s.runAction(ctx, logger, action.Handler, req)
		outcome.ItemID = action.Handler
		item.SetChild(outcome)
		if action.Blocking() && outcome.Code.AtLeast(status.KO) {
			logger.Info("blocking action stopped item",
				logging.String("handler", action.Handler),
				logging.String("status", outcome.Code.String()),
			)
			break
		}
	}

	logger.Debug("item processed",
		logging.String(logging.FieldEventType, "item_processed"),
		logging.String("status", item.Code.String()),
		logging.Duration("duration", time.Since(start)),
	)
	return item
}

func (s *Server) runAction(ctx context.Context, logger *slog.Logger, name string, req Request) (outcome *status.ItemStatus) {
	handler, ok := s.catalogue.Lookup(name)
	if !ok {
		logging.ErrorWithContext(logger, "handler not found", "handler_missing",
			logging.String("handler", name),
			logging.String(logging.FieldErrorHint, "register the handler on this worker or fix the workflow definition"),
		)
		return status.FatalOutcome(name, MessageHandlerNotFound)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", logging.String("handler", name), logging.Any("panic", r))
			outcome = status.FatalOutcome(name, MessageHandlerFailed)
		}
	}()
	result, err := handler.Execute(ctx, req)
	if err != nil {
		logging.ErrorWithContext(logger, "handler failed", "handler_failed",
			logging.String("handler", name),
			logging.Error(err),
		)
		return status.FatalOutcome(name, MessageHandlerFailed)
	}
	if result == nil {
		return status.Outcome(name, status.OK, "")
	}
	return result
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
