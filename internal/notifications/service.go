package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"archivist/internal/config"
	"archivist/internal/services"
	"archivist/internal/status"
)

const userAgent = "Archivist/0.1.0"

// RunSummary carries the facts announced when a run finishes.
type RunSummary struct {
	RunID      string
	WorkflowID string
	Container  string
	Status     status.Code
	Halted     bool
	Steps      int
	Duration   time.Duration
}

// Service defines the notification surface used by the run pipeline.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
	// Threshold is the least severe status worth a run notification.
	Threshold() status.Code
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.Notifications.RequestTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold, err := status.ParseCode(cfg.Notifications.MinStatus)
	if err != nil {
		threshold = status.KO
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		threshold: threshold,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	threshold status.Code
}

func (n *ntfyService) Threshold() status.Code {
	return n.threshold
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	label := strings.ToLower(summary.Status.String())
	var builder strings.Builder
	fmt.Fprintf(&builder, "Workflow %s on %s finished %s", summary.WorkflowID, summary.Container, summary.Status)
	fmt.Fprintf(&builder, " after %d step(s) in %s", summary.Steps, duration)
	if summary.Halted {
		builder.WriteString("\nRun halted on a fatal step")
	}
	if summary.RunID != "" {
		fmt.Fprintf(&builder, "\nRun: %s", summary.RunID)
	}

	data := payload{
		title:   fmt.Sprintf("Archivist - %s %s", summary.WorkflowID, summary.Status),
		message: builder.String(),
		tags:    []string{"archivist", "run", label},
	}
	switch summary.Status {
	case status.Fatal:
		data.priority = "urgent"
	case status.KO:
		data.priority = "high"
	case status.OK:
		data.priority = "low"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Archivist - Error",
		message:  builder.String(),
		tags:     []string{"archivist", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Archivist - Test",
		message:  "Notification system test",
		tags:     []string{"archivist", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	req, err := data.request(ctx, n.endpoint)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "notifications", "build request", n.endpoint, err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notifications", "send", n.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	marker := services.ErrTransient
	if resp.StatusCode < 500 {
		marker = services.ErrConfiguration
	}
	return services.Wrap(marker, "notifications", "send",
		fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
}

// request encodes the payload the way ntfy expects: the message as a plain
// text body and everything else as headers.
func (p payload) request(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(p.message))
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"User-Agent":   userAgent,
		"Content-Type": "text/plain; charset=utf-8",
		"Title":        p.title,
		"Tags":         strings.Join(p.tags, ","),
		"Priority":     p.priority,
	}
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	return req, nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
func (noopService) Threshold() status.Code                               { return status.Fatal }
