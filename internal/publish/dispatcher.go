package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"recut/internal/config"
	"recut/internal/extcmd"
	"recut/internal/logging"
	"recut/internal/project"
	"recut/internal/services"
)

const userAgent = "recut/0.1.0"

// Request is what a scheduler needs to publish one target.
type Request struct {
	ProjectID   string    `json:"project_id"`
	Platform    string    `json:"platform"`
	VideoPath   string    `json:"video_path"`
	Caption     string    `json:"caption,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Scheduler schedules a post on a platform that supports it natively.
type Scheduler interface {
	Schedule(ctx context.Context, req Request) (detail string, err error)
}

// WebhookPayload is posted to the workflow runner for platforms without
// native scheduling.
type WebhookPayload struct {
	ProjectID              string            `json:"project_id" validate:"required"`
	ScheduledAt            string            `json:"scheduled_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	SourceVideoReference   string            `json:"source_video_reference" validate:"required"`
	PlatformCredentials    map[string]string `json:"platform_credentials"`
	Caption                string            `json:"caption"`
	NotificationWebhookURL string            `json:"notification_webhook_url,omitempty" validate:"omitempty,url"`
}

// Dispatcher routes publish targets to schedulers or the webhook runner.
type Dispatcher struct {
	modes       map[string]string
	schedulers  map[string]Scheduler
	credentials map[string]map[string]string
	webhookURL  string
	notifyURL   string
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithScheduler registers a native scheduler for platform.
func WithScheduler(platform string, s Scheduler) Option {
	return func(d *Dispatcher) {
		key := strings.ToLower(strings.TrimSpace(platform))
		d.schedulers[key] = s
		if _, ok := d.modes[key]; !ok {
			d.modes[key] = config.PublishModeNative
		}
	}
}

// WithHTTPClient overrides the webhook client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithClock overrides the dispatch timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher builds a dispatcher from the [publish] config. Native
// platforms get a command scheduler for their configured command line.
func NewDispatcher(cfg config.Publish, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Dispatcher{
		modes:       make(map[string]string, len(cfg.Platforms)),
		schedulers:  make(map[string]Scheduler),
		credentials: cfg.Credentials,
		webhookURL:  strings.TrimSpace(cfg.WebhookURL),
		notifyURL:   strings.TrimSpace(cfg.NotificationWebhookURL),
		client:      &http.Client{Timeout: timeout},
		logger:      logging.NewComponentLogger(logger, "publish"),
		now:         time.Now,
	}
	for name, mode := range cfg.Platforms {
		d.modes[name] = mode
	}
	for name, argv := range cfg.Native {
		if len(argv) > 0 {
			d.schedulers[name] = CommandScheduler{cmd: extcmd.New("publish-"+name, argv, logger)}
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode reports how platform would be dispatched: native, webhook, or "" when
// there is no route.
func (d *Dispatcher) Mode(platform string) string {
	key := strings.ToLower(strings.TrimSpace(platform))
	mode := d.modes[key]
	switch {
	case mode == config.PublishModeNative && d.schedulers[key] != nil:
		return config.PublishModeNative
	case mode == config.PublishModeNative:
		return ""
	case mode == config.PublishModeWebhook || mode == "":
		if d.webhookURL != "" {
			return config.PublishModeWebhook
		}
	}
	return ""
}

// Dispatch hands one target off and records the outcome. The returned error
// is non-nil only when ctx was cancelled; dispatch failures are recorded in
// the Dispatch status instead.
func (d *Dispatcher) Dispatch(ctx context.Context, p *project.Project, target project.PublishTarget) (project.Dispatch, error) {
	record := project.Dispatch{
		ID:       uuid.NewString(),
		Platform: target.Platform,
	}
	logger := logging.WithContext(ctx, d.logger).With(logging.String("platform", target.Platform))

	var (
		detail string
		err    error
	)
	switch mode := d.Mode(target.Platform); mode {
	case config.PublishModeNative:
		detail, err = d.schedulers[strings.ToLower(strings.TrimSpace(target.Platform))].Schedule(ctx, Request{
			ProjectID:   p.ID,
			Platform:    target.Platform,
			VideoPath:   p.RenderPath,
			Caption:     target.Caption,
			ScheduledAt: target.ScheduledAt.UTC(),
		})
	case config.PublishModeWebhook:
		detail, err = d.postWebhook(ctx, d.payload(p, target))
	default:
		err = services.Wrap(services.ErrConfiguration, "publish", "route", "no dispatch route for platform "+target.Platform, nil)
	}
	record.At = d.now().UTC()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return record, services.Wrap(services.ErrStreamAborted, "publish", "dispatch", target.Platform, ctxErr)
		}
		record.Status = project.DispatchFailed
		record.Detail = err.Error()
		logging.WarnWithContext(logger, "publish dispatch failed", "publish_dispatch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the publish route for this platform"),
		)
		return record, nil
	}
	record.Status = project.DispatchDispatched
	record.Detail = detail
	logger.Info("publish dispatched",
		logging.String(logging.FieldEventType, "publish_dispatched"),
		logging.String("dispatch_id", record.ID),
		logging.String("detail", detail),
	)
	return record, nil
}

func (d *Dispatcher) payload(p *project.Project, target project.PublishTarget) WebhookPayload {
	creds := d.credentials[strings.ToLower(strings.TrimSpace(target.Platform))]
	if creds == nil {
		creds = map[string]string{}
	}
	ref := p.RenderPath
	if ref == "" {
		ref = p.SourceReference
	}
	return WebhookPayload{
		ProjectID:              p.ID,
		ScheduledAt:            target.ScheduledAt.UTC().Format(time.RFC3339),
		SourceVideoReference:   ref,
		PlatformCredentials:    creds,
		Caption:                target.Caption,
		NotificationWebhookURL: d.notifyURL,
	}
}

func (d *Dispatcher) postWebhook(ctx context.Context, payload WebhookPayload) (string, error) {
	if err := services.ValidateStruct("publish", "webhook payload", payload); err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternalStep, "publish", "webhook", "send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", services.Wrap(services.ErrExternalStep, "publish", "webhook",
			fmt.Sprintf("runner returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return fmt.Sprintf("webhook accepted (%d)", resp.StatusCode), nil
}

// CommandScheduler runs a configured scheduling command. The command gets a
// Request on stdin and reports a "detail" string in its result.
type CommandScheduler struct {
	cmd *extcmd.Command
}

// NewCommandScheduler wraps cmd.
func NewCommandScheduler(cmd *extcmd.Command) CommandScheduler {
	return CommandScheduler{cmd: cmd}
}

// Schedule runs the command.
func (s CommandScheduler) Schedule(ctx context.Context, req Request) (string, error) {
	var out struct {
		Detail string `json:"detail"`
	}
	if err := s.cmd.Run(ctx, req, nil, &out); err != nil {
		return "", err
	}
	return out.Detail, nil
}
