package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"brickkit/internal/config"
	"brickkit/internal/pipeline"
	"brickkit/internal/services"
)

const userAgent = "brickkit/0.1"

// Service sends user-facing notifications.
type Service interface {
	NotifyRunFinished(ctx context.Context, result *pipeline.Result) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy notifier for cfg, or a no-op when no topic is set.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		notifySuccess: cfg.NotifySuccess,
	}
}

// Recorder lets a Service observe finished runs through pipeline.WithRecorder.
type Recorder struct {
	Service Service
}

// Record notifies about res.
func (r Recorder) Record(ctx context.Context, res *pipeline.Result) error {
	if r.Service == nil {
		return nil
	}
	return r.Service.NotifyRunFinished(ctx, res)
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	notifySuccess bool
}

func (n *ntfyService) NotifyRunFinished(ctx context.Context, res *pipeline.Result) error {
	if res == nil {
		return nil
	}
	data, ok := n.runPayload(res)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) runPayload(res *pipeline.Result) (payload, bool) {
	subject := strings.TrimSpace(res.Prompt)
	if res.Choice != nil {
		subject = fmt.Sprintf("%s - %s", res.Choice.Candidate.ID, res.Choice.Candidate.DisplayName)
	}
	status := res.Status()
	switch status {
	case services.StatusDone:
		if !n.notifySuccess {
			return payload{}, false
		}
		return payload{
			title:   "brickkit - Instructions Ready",
			message: fmt.Sprintf("Instructions ready: %s\n%s", subject, res.Summary),
			tags:    []string{"brickkit", "run", "done"},
		}, true
	case services.StatusPartial:
		if !n.notifySuccess {
			return payload{}, false
		}
		return payload{
			title:   "brickkit - Parts List Only",
			message: fmt.Sprintf("No steps rendered for %s\n%s", subject, res.Summary),
			tags:    []string{"brickkit", "run", "partial"},
		}, true
	default:
		message := fmt.Sprintf("Run failed for %q", strings.TrimSpace(res.Prompt))
		if res.FailedStage != "" {
			message += fmt.Sprintf(" while %s", res.FailedStage)
		}
		if text := strings.TrimSpace(res.ErrorMessage()); text != "" {
			message += ": " + text
		}
		title := "brickkit - Run Failed"
		if status == services.StatusReview {
			title = "brickkit - Needs Review"
		}
		return payload{
			title:    title,
			message:  message,
			tags:     []string{"brickkit", "run", status},
			priority: "high",
		}, true
	}
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "brickkit - Test",
		message:  "Notification system test",
		tags:     []string{"brickkit", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunFinished(context.Context, *pipeline.Result) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
