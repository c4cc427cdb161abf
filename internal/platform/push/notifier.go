package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phrazzld/postpilot/internal/notify"
)

// ErrPushFailed is returned when the gateway did not accept a push.
var ErrPushFailed = errors.New("push delivery failed")

// Config points the notifier at a push gateway.
type Config struct {
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

type pushRequest struct {
	Channel string               `json:"channel"`
	Payload notify.ResultPayload `json:"payload"`
}

// GatewayNotifier sends pushes to the gateway.
type GatewayNotifier struct {
	client *resty.Client
	logger *slog.Logger
}

var _ notify.Notifier = (*GatewayNotifier)(nil)

// NewGatewayNotifier creates a GatewayNotifier for cfg.
func NewGatewayNotifier(cfg Config, logger *slog.Logger) (*GatewayNotifier, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("push gateway URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &GatewayNotifier{
		client: client,
		logger: logger.With("component", "push_notifier"),
	}, nil
}

// Push implements notify.Notifier.
func (n *GatewayNotifier) Push(ctx context.Context, channel string, payload notify.ResultPayload) error {
	if channel == "" {
		return fmt.Errorf("%w: empty push channel", ErrPushFailed)
	}

	res, err := n.client.R().
		SetContext(ctx).
		SetBody(pushRequest{Channel: channel, Payload: payload}).
		Post("/v1/push")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	if res.IsError() {
		return fmt.Errorf("%w: gateway answered %s", ErrPushFailed, res.Status())
	}

	n.logger.DebugContext(ctx, "push delivered",
		"task_id", payload.TaskID,
		"status", payload.Status)
	return nil
}

// LogNotifier writes pushes to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

// Push implements notify.Notifier.
func (n *LogNotifier) Push(ctx context.Context, channel string, payload notify.ResultPayload) error {
	n.logger.InfoContext(ctx, "task result",
		"channel", channel,
		"task_id", payload.TaskID,
		"status", payload.Status,
		"error_message", payload.ErrorMessage)
	return nil
}
