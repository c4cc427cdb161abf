package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/phrazzld/postpilot/internal/config"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/generation"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp       *genai.GenerateContentResponse
	err        error
	gotModel   string
	gotPrompt  string
	gotMIME    string
	callsCount int
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.callsCount++
	f.gotModel = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	if config != nil {
		f.gotMIME = config.ResponseMIMEType
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestGenerator(t *testing.T, models *fakeModels) *Generator {
	t.Helper()
	g, err := newGenerator(logger.Discard(), models, "gemini-test")
	require.NoError(t, err)
	return g
}

func TestGenerate_Success(t *testing.T) {
	models := &fakeModels{resp: textResponse(`{
		"title": "Autumn roast",
		"text": "Our autumn blend is back.",
		"tags": ["#coffee", " autumn ", ""],
		"images": ["a steaming cup on a wooden table"]
	}`)}
	g := newTestGenerator(t, models)

	content, err := g.Generate(context.Background(), domain.GenerationConfig{
		Theme:         "new seasonal coffee",
		Keywords:      []string{"autumn", "roast"},
		Audience:      "regulars",
		Platform:      "instagram",
		IncludeImages: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Autumn roast", content.Title)
	assert.Equal(t, "Our autumn blend is back.", content.Text)
	assert.Equal(t, []string{"coffee", "autumn"}, content.Tags)
	assert.Equal(t, []string{"a steaming cup on a wooden table"}, content.Images)
	assert.Empty(t, content.Videos)

	assert.Equal(t, "gemini-test", models.gotModel)
	assert.Equal(t, "application/json", models.gotMIME)
	assert.Contains(t, models.gotPrompt, "new seasonal coffee")
	assert.Contains(t, models.gotPrompt, "autumn, roast")
	assert.Contains(t, models.gotPrompt, "for instagram")
	assert.Contains(t, models.gotPrompt, `"images"`)
	assert.NotContains(t, models.gotPrompt, `"videos"`)
}

func TestGenerate_StripsCodeFence(t *testing.T) {
	models := &fakeModels{resp: textResponse("```json\n{\"title\":\"t\",\"text\":\"body\"}\n```")}
	g := newTestGenerator(t, models)

	content, err := g.Generate(context.Background(), domain.GenerationConfig{Keywords: []string{"fence"}})
	require.NoError(t, err)
	assert.Equal(t, "body", content.Text)
	assert.Contains(t, models.gotPrompt, "about: fence")
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		models  *fakeModels
		cfg     domain.GenerationConfig
		wantErr error
		calls   int
	}{
		{
			name:    "empty config",
			models:  &fakeModels{},
			cfg:     domain.GenerationConfig{},
			wantErr: ErrEmptyGenerationConfig,
			calls:   0,
		},
		{
			name:    "api error",
			models:  &fakeModels{err: errors.New("503 unavailable")},
			wantErr: generation.ErrTransientFailure,
			calls:   1,
		},
		{
			name:    "nil response",
			models:  &fakeModels{},
			wantErr: generation.ErrInvalidResponse,
			calls:   1,
		},
		{
			name:    "no candidates",
			models:  &fakeModels{resp: &genai.GenerateContentResponse{}},
			wantErr: generation.ErrInvalidResponse,
			calls:   1,
		},
		{
			name: "safety block",
			models: &fakeModels{resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}},
			wantErr: generation.ErrContentBlocked,
			calls:   1,
		},
		{
			name:    "not json",
			models:  &fakeModels{resp: textResponse("here is your post!")},
			wantErr: generation.ErrInvalidResponse,
			calls:   1,
		},
		{
			name:    "missing text",
			models:  &fakeModels{resp: textResponse(`{"title":"only a title"}`)},
			wantErr: generation.ErrInvalidResponse,
			calls:   1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if tc.wantErr != ErrEmptyGenerationConfig {
				cfg = domain.GenerationConfig{Theme: "anything"}
			}
			g := newTestGenerator(t, tc.models)

			content, err := g.Generate(context.Background(), cfg)
			assert.Nil(t, content)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.calls, tc.models.callsCount)
		})
	}
}

func TestNewGenerator_InvalidConfig(t *testing.T) {
	_, err := NewGenerator(context.Background(), logger.Discard(), configWith("", "model"))
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewGenerator(context.Background(), logger.Discard(), configWith("key", ""))
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func configWith(apiKey, model string) config.LLMConfig {
	return config.LLMConfig{Provider: "gemini", GeminiAPIKey: apiKey, ModelName: model}
}
