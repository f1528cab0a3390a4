package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/logging"
	"archivist/internal/status"
	"archivist/internal/workflow"
)

type stubHandler struct {
	name    string
	outcome *status.ItemStatus
	err     error
	calls   int
}

func (s *stubHandler) Name() string { return s.name }

func (s *stubHandler) Execute(context.Context, Request) (*status.ItemStatus, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome.Clone(), nil
}

func (s *stubHandler) HealthCheck(context.Context) Health { return Healthy(s.name) }

func requestWithActions(actions ...workflow.Action) Request {
	return Request{
		RunID:   "run-1",
		Step:    workflow.NewStep("STP", "G", workflow.Distribution{Kind: workflow.KindList, Element: "ObjectGroup"}, actions...),
		Context: workflow.ExecutionContext{ContainerName: "c1", ObjectName: "obj"},
	}
}

func TestProcessFoldsActionsByHandler(t *testing.T) {
	warn := &stubHandler{name: "WARNER", outcome: status.Outcome("x", status.Warning, "SOFT")}
	srv := NewServer("w1", NewCatalogue(noopHandler{}, warn), logging.NewNop())

	outcome := srv.Process(context.Background(), requestWithActions(
		workflow.Action{Handler: "NOOP"},
		workflow.Action{Handler: "warner"},
	))
	assert.Equal(t, "obj", outcome.ItemID)
	assert.Equal(t, status.Warning, outcome.Code)
	assert.Equal(t, []string{"NOOP", "warner"}, outcome.ChildKeys())
}

func TestProcessBlockingFailureStopsLaterActions(t *testing.T) {
	ko := &stubHandler{name: "KO", outcome: status.Outcome("x", status.KO, "BAD")}
	after := &stubHandler{name: "AFTER", outcome: status.Outcome("x", status.OK, "")}
	srv := NewServer("w1", NewCatalogue(ko, after), logging.NewNop())

	outcome := srv.Process(context.Background(), requestWithActions(
		workflow.Action{Handler: "KO", Behavior: workflow.BehaviorBlocking},
		workflow.Action{Handler: "AFTER"},
	))
	assert.Equal(t, status.KO, outcome.Code)
	assert.Equal(t, 0, after.calls)

	outcome = srv.Process(context.Background(), requestWithActions(
		workflow.Action{Handler: "KO", Behavior: workflow.BehaviorNonBlocking},
		workflow.Action{Handler: "AFTER"},
	))
	assert.Equal(t, status.KO, outcome.Code)
	assert.Equal(t, 1, after.calls)
}

func TestProcessUnknownAndFailingHandlersAreFatal(t *testing.T) {
	failing := &stubHandler{name: "FAIL", err: errors.New("disk full")}
	srv := NewServer("w1", NewCatalogue(failing), logging.NewNop())

	outcome := srv.Process(context.Background(), requestWithActions(workflow.Action{Handler: "MISSING", Behavior: workflow.BehaviorNonBlocking}))
	assert.Equal(t, status.Fatal, outcome.Code)
	assert.Equal(t, MessageHandlerNotFound, outcome.MessageID)

	outcome = srv.Process(context.Background(), requestWithActions(workflow.Action{Handler: "FAIL"}))
	assert.Equal(t, status.Fatal, outcome.Code)
	assert.Equal(t, MessageHandlerFailed, outcome.MessageID)
}

func TestProcessWithoutActionsIsOK(t *testing.T) {
	srv := NewServer("w1", nil, logging.NewNop())
	outcome := srv.Process(context.Background(), requestWithActions())
	assert.Equal(t, status.OK, outcome.Code)
}

func TestServerRoundTripThroughTransport(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "c1", "ObjectGroup"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c1", "ObjectGroup", "obj"), []byte("x"), 0o644))

	srv := NewServer("w1", NewCatalogue(BuiltinHandlers(root)...), logging.NewNop())
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	transport := NewHTTPTransport(httpSrv.URL, time.Second)
	require.NoError(t, transport.CheckLiveness(context.Background()))

	outcome, err := transport.Submit(context.Background(), requestWithActions(workflow.Action{Handler: "LIST_CHECK"}))
	require.NoError(t, err)
	assert.Equal(t, status.OK, outcome.Code)

	req := requestWithActions(workflow.Action{Handler: "LIST_CHECK"})
	req.Context.ObjectName = "absent"
	outcome, err = transport.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, status.KO, outcome.Code)
	assert.Equal(t, "OBJECT_MISSING", outcome.Items["LIST_CHECK"].MessageID)
}

func TestServerHealthAndMethods(t *testing.T) {
	srv := NewServer("w1", NewCatalogue(BuiltinHandlers("")...), logging.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, healthPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "w1", health.WorkerID)
	assert.False(t, health.Ready, "LIST_CHECK without a workspace is not ready")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, unitsPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, unitsPath, strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSleepHandlerHonoursPropertyAndContext(t *testing.T) {
	h := sleepHandler{}
	req := requestWithActions(workflow.Action{Handler: "SLEEP"})
	req.Context.Properties = map[string]string{SleepProperty: "5"}

	outcome, err := h.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, status.OK, outcome.Code)

	req.Context.Properties[SleepProperty] = "soon"
	_, err = h.Execute(context.Background(), req)
	assert.ErrorContains(t, err, "invalid sleep_ms")

	req.Context.Properties[SleepProperty] = "60000"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Execute(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}
