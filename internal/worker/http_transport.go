package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"archivist/internal/services"
	"archivist/internal/status"
)

const (
	unitsPath  = "/api/v1/units"
	healthPath = "/api/v1/health"

	headerRequestID = "X-Request-Id"
	headerRunID     = "X-Run-Id"
	headerTenantID  = "X-Tenant-Id"

	maxErrorBody = 4 << 10
)

// HTTPTransport talks JSON over HTTP to a worker started with
// `archivist worker serve`.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport targets address, which may omit the scheme. A zero timeout
// leaves requests bounded only by their context.
func NewHTTPTransport(address string, timeout time.Duration) *HTTPTransport {
	base := strings.TrimRight(strings.TrimSpace(address), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &HTTPTransport{baseURL: base, client: &http.Client{Timeout: timeout}}
}

// Submit posts req to the worker and decodes the item outcome.
func (t *HTTPTransport) Submit(ctx context.Context, req Request) (*status.ItemStatus, error) {
	if req.RequestID == "" {
		if rid, ok := services.RequestIDFromContext(ctx); ok {
			req.RequestID = rid
		} else {
			req.RequestID = uuid.NewString()
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transport", "encode request", "", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+unitsPath, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transport", "build request", "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setSessionHeaders(ctx, httpReq, req)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transport", "submit", t.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var outcome status.ItemStatus
		if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
			return nil, services.Wrap(services.ErrWorkerExecutor, "transport", "decode outcome", t.baseURL, err)
		}
		return &outcome, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, "transport", "submit", fmt.Sprintf("%s returned 404", t.baseURL), nil)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return nil, services.Wrap(services.ErrTransient, "transport", "submit", fmt.Sprintf("%s returned %d", t.baseURL, resp.StatusCode), nil)
	default:
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, services.Wrap(services.ErrWorkerExecutor, "transport", "submit",
			fmt.Sprintf("%s returned %d: %s", t.baseURL, resp.StatusCode, strings.TrimSpace(string(excerpt))), nil)
	}
}

// CheckLiveness reports whether the worker answers its health endpoint.
func (t *HTTPTransport) CheckLiveness(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+healthPath, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transport", "build request", "", err)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transport", "liveness", t.baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, "transport", "liveness", fmt.Sprintf("%s returned %d", t.baseURL, resp.StatusCode), nil)
	}
	return nil
}

func setSessionHeaders(ctx context.Context, httpReq *http.Request, req Request) {
	httpReq.Header.Set(headerRequestID, req.RequestID)
	runID := req.RunID
	if v, ok := services.RunIDFromContext(ctx); ok {
		runID = v
	}
	if runID != "" {
		httpReq.Header.Set(headerRunID, runID)
	}
	tenant := req.Context.TenantID
	if v, ok := services.TenantIDFromContext(ctx); ok {
		tenant = v
	}
	if tenant != "" {
		httpReq.Header.Set(headerTenantID, tenant)
	}
}
