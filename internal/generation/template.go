package generation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/phrazzld/postpilot/internal/domain"
)

// TemplateGenerator builds posts from the generation config alone. It backs
// local runs that have no language model configured.
type TemplateGenerator struct{}

// NewTemplateGenerator creates a TemplateGenerator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate implements Generator.
func (TemplateGenerator) Generate(ctx context.Context, cfg domain.GenerationConfig) (*domain.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientFailure, err)
	}
	if cfg.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to write about", ErrGenerationFailed)
	}

	subject := strings.TrimSpace(cfg.Theme)
	if subject == "" {
		subject = strings.Join(cfg.Keywords, ", ")
	}

	var text strings.Builder
	text.WriteString(sentenceCase(subject))
	if cfg.Audience != "" {
		fmt.Fprintf(&text, ", for %s", cfg.Audience)
	}
	text.WriteString(".")
	if cfg.Length == "long" && len(cfg.Keywords) > 0 {
		fmt.Fprintf(&text, " Think %s.", strings.Join(cfg.Keywords, ", "))
	}

	tags := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if tag := hashtag(k); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		text.WriteString("\n\n")
		for i, tag := range tags {
			if i > 0 {
				text.WriteString(" ")
			}
			text.WriteString("#" + tag)
		}
	}

	return domain.NewContent(sentenceCase(subject), text.String(), nil, nil, tags)
}

func sentenceCase(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// hashtag strips everything but letters and digits.
func hashtag(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
