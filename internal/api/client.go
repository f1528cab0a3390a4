package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"archivist/internal/services"
)

const (
	// PathStatus and the paths below are served by the daemon.
	PathStatus  = "/api/status"
	PathRuns    = "/api/runs"
	PathWorkers = "/api/workers"

	maxErrorBody = 4 << 10
)

// Client talks to a running daemon over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient targets bind, which may omit the scheme. token is sent as a
// bearer token when set.
func NewClient(bind, token string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{baseURL: base, token: strings.TrimSpace(token), http: &http.Client{Timeout: timeout}}
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, PathStatus, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Runs lists runs known to the daemon.
func (c *Client) Runs(ctx context.Context) ([]Run, error) {
	var resp RunListResponse
	if err := c.do(ctx, http.MethodGet, PathRuns, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Run describes one run including its step progress.
func (c *Client) Run(ctx context.Context, runID string) (*Run, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodGet, PathRuns+"/"+url.PathEscape(runID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// StartRun asks the daemon to start a run and returns its id.
func (c *Client) StartRun(ctx context.Context, req StartRunRequest) (string, error) {
	var resp StartRunResponse
	if err := c.do(ctx, http.MethodPost, PathRuns, req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// PurgeRun removes a finished run from the daemon.
func (c *Client) PurgeRun(ctx context.Context, runID string) (bool, error) {
	var resp PurgeRunResponse
	if err := c.do(ctx, http.MethodDelete, PathRuns+"/"+url.PathEscape(runID), nil, &resp); err != nil {
		return false, err
	}
	return resp.Purged, nil
}

// RunLogQuery selects lines from a run log. A negative Offset returns the
// last Limit lines; a positive Wait holds the request until lines arrive.
type RunLogQuery struct {
	Offset int64
	Limit  int
	Wait   time.Duration
}

// RunLog tails the log file of a run.
func (c *Client) RunLog(ctx context.Context, runID string, q RunLogQuery) (*RunLogResponse, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(q.Offset, 10))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Wait > 0 {
		params.Set("wait_ms", strconv.FormatInt(q.Wait.Milliseconds(), 10))
	}
	path := PathRuns + "/" + url.PathEscape(runID) + "/log?" + params.Encode()
	var resp RunLogResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Workers lists registered workers. probe asks the daemon to check liveness.
func (c *Client) Workers(ctx context.Context, probe bool) ([]Worker, error) {
	path := PathWorkers
	if probe {
		path += "?probe=1"
	}
	var resp WorkersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workers, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api", "request", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(raw))
	var payload ErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	marker := services.ErrTransient
	switch resp.StatusCode {
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusBadRequest, http.StatusConflict:
		marker = services.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		marker = services.ErrConfiguration
	}
	return services.Wrap(marker, "api", "response", fmt.Sprintf("status %d: %s", resp.StatusCode, message), nil)
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
