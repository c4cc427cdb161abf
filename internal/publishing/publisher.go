// Package publishing defines the publishing capability used by the
// orchestration engine to post generated content to a social platform
// account. Implementations must tolerate being retried: a post may be
// delivered more than once.
package publishing

import (
	"context"
	"errors"

	"github.com/phrazzld/postpilot/internal/domain"
)

var (
	// ErrPublishFailed is returned when the platform rejected or failed the post.
	ErrPublishFailed = errors.New("failed to publish content")

	// ErrUnsupportedPlatform is returned when no route exists for the account's platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Publisher posts content to an account.
type Publisher interface {
	Publish(ctx context.Context, content *domain.Content, account *domain.Account) (*domain.PublishReceipt, error)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, content *domain.Content, account *domain.Account) (*domain.PublishReceipt, error)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, content *domain.Content, account *domain.Account) (*domain.PublishReceipt, error) {
	return f(ctx, content, account)
}
