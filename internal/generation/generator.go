package generation

import (
	"context"

	"github.com/phrazzld/postpilot/internal/domain"
)

// Generator produces content from a generation config. Implementations must
// be safe to call again with the same config after a failure.
type Generator interface {
	// Generate returns new, unsaved content or an error. The caller bounds
	// the call through ctx.
	Generate(ctx context.Context, cfg domain.GenerationConfig) (*domain.Content, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, cfg domain.GenerationConfig) (*domain.Content, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, cfg domain.GenerationConfig) (*domain.Content, error) {
	return f(ctx, cfg)
}
