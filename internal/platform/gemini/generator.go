package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/phrazzld/postpilot/internal/config"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/generation"
	"google.golang.org/genai"
)

//go:embed prompt.tmpl
var defaultPrompt string

// ErrEmptyGenerationConfig is returned when there is nothing to write about.
var ErrEmptyGenerationConfig = errors.New("generation config has no theme or keywords")

// contentModel is the part of the genai client the generator calls.
type contentModel interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Generator implements generation.Generator using the Gemini API.
type Generator struct {
	logger         *slog.Logger
	models         contentModel
	model          string
	promptTemplate *template.Template
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator with a genai client built from cfg.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	return newGenerator(logger, client.Models, cfg.ModelName)
}

func newGenerator(logger *slog.Logger, models contentModel, model string) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	tmpl, err := template.New("post").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(defaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}
	return &Generator{
		logger:         logger.With("component", "gemini_generator"),
		models:         models,
		model:          model,
		promptTemplate: tmpl,
	}, nil
}

// Generate writes a post for cfg.
func (g *Generator) Generate(ctx context.Context, cfg domain.GenerationConfig) (*domain.Content, error) {
	prompt, err := g.createPrompt(cfg)
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "calling Gemini API",
		"model", g.model,
		"prompt_length", len(prompt))

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
		g.logger.ErrorContext(ctx, "Gemini API call failed", "error", err)
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	schema, err := extractResponse(resp)
	if err != nil {
		g.logger.WarnContext(ctx, "unusable Gemini response", "error", err)
		return nil, err
	}

	content, err := parseResponse(schema, cfg)
	if err != nil {
		return nil, err
	}
	g.logger.InfoContext(ctx, "content generated",
		"content_id", content.ID,
		"text_length", len(content.Text),
		"tags", len(content.Tags))
	return content, nil
}

// createPrompt renders the prompt template for cfg.
func (g *Generator) createPrompt(cfg domain.GenerationConfig) (string, error) {
	if cfg.IsEmpty() {
		return "", ErrEmptyGenerationConfig
	}
	data := promptData{
		Theme:         cfg.Theme,
		Keywords:      cfg.Keywords,
		Audience:      cfg.Audience,
		Style:         cfg.Style,
		Platform:      cfg.Platform,
		Language:      cfg.Language,
		Length:        cfg.Length,
		IncludeImages: cfg.IncludeImages,
		IncludeVideos: cfg.IncludeVideos,
	}
	if data.Theme == "" {
		data.Theme = strings.Join(cfg.Keywords, ", ")
	}

	var buf bytes.Buffer
	if err := g.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// extractResponse pulls the JSON answer out of the first candidate.
func extractResponse(resp *genai.GenerateContentResponse) (*ResponseSchema, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	raw := strings.TrimSpace(text.String())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var schema ResponseSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}
	return &schema, nil
}

// parseResponse validates the model's answer and builds content from it.
func parseResponse(schema *ResponseSchema, cfg domain.GenerationConfig) (*domain.Content, error) {
	if strings.TrimSpace(schema.Text) == "" {
		return nil, fmt.Errorf("%w: response has no text", generation.ErrInvalidResponse)
	}

	tags := make([]string, 0, len(schema.Tags))
	for _, tag := range schema.Tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	var images, videos []string
	if cfg.IncludeImages {
		images = schema.Images
	}
	if cfg.IncludeVideos {
		videos = schema.Videos
	}

	content, err := domain.NewContent(schema.Title, schema.Text, images, videos, tags)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	return content, nil
}
