package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/publishing"
)

// Config points the publisher at a bridge.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Publisher posts content through the platform bridge.
type Publisher struct {
	client *resty.Client
	logger *slog.Logger
}

var _ publishing.Publisher = (*Publisher)(nil)

type publishRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Platform  string    `json:"platform"`
	Account   string    `json:"account"`
	ContentID uuid.UUID `json:"content_id"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	Images    []string  `json:"images,omitempty"`
	Videos    []string  `json:"videos,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

type publishResponse struct {
	PostID      string    `json:"post_id"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewPublisher creates a Publisher for cfg.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("bridge base URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Publisher{
		client: client,
		logger: logger.With("component", "bridge_publisher"),
	}, nil
}

// Publish implements publishing.Publisher.
func (p *Publisher) Publish(ctx context.Context, content *domain.Content, account *domain.Account) (*domain.PublishReceipt, error) {
	body := publishRequest{
		AccountID: account.ID,
		Platform:  account.Platform,
		Account:   account.Name,
		ContentID: content.ID,
		Title:     content.Title,
		Text:      content.Text,
		Images:    content.Images,
		Videos:    content.Videos,
		Tags:      content.Tags,
	}

	var out publishResponse
	err := p.request(ctx, "/v1/posts", http.MethodPost, func(req *resty.Request) {
		req.SetBody(body).SetHeader("Idempotency-Key", content.ID.String()+":"+account.ID.String())
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.PostID == "" {
		return nil, fmt.Errorf("%w: bridge returned no post id", publishing.ErrPublishFailed)
	}
	if out.PublishedAt.IsZero() {
		out.PublishedAt = time.Now()
	}

	p.logger.InfoContext(ctx, "content published",
		"content_id", content.ID,
		"account_id", account.ID,
		"platform", account.Platform,
		"post_id", out.PostID)

	return &domain.PublishReceipt{
		PlatformPostID: out.PostID,
		URL:            out.URL,
		PublishedAt:    out.PublishedAt.UTC(),
	}, nil
}

// request sends one call to the bridge and decodes a 2xx body into resp.
func (p *Publisher) request(ctx context.Context, path, method string, callback func(req *resty.Request), resp any) error {
	var e errorResponse
	req := p.client.R().SetContext(ctx).SetError(&e)
	if callback != nil {
		callback(req)
	}
	if resp != nil {
		req.SetResult(resp)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", publishing.ErrPublishFailed, err)
	}
	if !res.IsError() {
		return nil
	}

	msg := e.Error
	if msg == "" {
		msg = res.Status()
	}
	if e.Code == "unsupported_platform" || res.StatusCode() == http.StatusNotImplemented {
		return fmt.Errorf("%w: %s", publishing.ErrUnsupportedPlatform, msg)
	}
	return fmt.Errorf("%w: bridge answered %d: %s", publishing.ErrPublishFailed, res.StatusCode(), msg)
}

// DryRunPublisher logs what would be published and reports success.
type DryRunPublisher struct {
	logger *slog.Logger
}

// NewDryRunPublisher creates a DryRunPublisher.
func NewDryRunPublisher(logger *slog.Logger) *DryRunPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunPublisher{logger: logger.With("component", "dry_run_publisher")}
}

// Publish implements publishing.Publisher.
func (p *DryRunPublisher) Publish(ctx context.Context, content *domain.Content, account *domain.Account) (*domain.PublishReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "dry run: not publishing",
		"content_id", content.ID,
		"account_id", account.ID,
		"platform", account.Platform,
		"text_length", len(content.Text))
	return &domain.PublishReceipt{
		PlatformPostID: "dry-run-" + content.ID.String(),
		PublishedAt:    time.Now().UTC(),
	}, nil
}
