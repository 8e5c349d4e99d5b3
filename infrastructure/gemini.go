package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"recruitment/domain"
)

var defaultGeminiModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-flash-latest",
}

// contentGenerator is the part of the genai client the scorer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
}

func (g *genaiGenerator) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		TopP:             genai.Ptr[float32](0.8),
		ResponseMIMEType: "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || strings.TrimSpace(part.Text) == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

// GeminiScorer scores applications with Gemini, falling back through a list of models.
type GeminiScorer struct {
	generator contentGenerator
	models    []string
	logger    *zap.Logger
	maxLogLen int
}

// NewGeminiScorer creates a scorer backed by the Gemini API.
func NewGeminiScorer(ctx context.Context, cfg AIConfig, logger *zap.Logger) (*GeminiScorer, error) {
	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGeminiScorer(&genaiGenerator{client: client}, cfg.GeminiModels, cfg.MaxLogLength, logger), nil
}

func newGeminiScorer(generator contentGenerator, models []string, maxLogLen int, logger *zap.Logger) *GeminiScorer {
	cleaned := make([]string, 0, len(models))
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		cleaned = defaultGeminiModels
	}
	if maxLogLen <= 0 {
		maxLogLen = 200
	}
	return &GeminiScorer{
		generator: generator,
		models:    cleaned,
		logger:    orNop(logger).With(zap.String("ai_provider", "gemini")),
		maxLogLen: maxLogLen,
	}
}

// Score asks each configured model in turn until one returns a usable result.
// Context cancellation stops the fallback immediately.
func (g *GeminiScorer) Score(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResult, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	var lastErr error
	for _, model := range g.models {
		log := g.logger.With(zap.String("ai_model", model), zap.String("application_ref", req.ApplicationRef))
		log.Debug("gemini score request", zap.Int("prompt_length", utf8.RuneCountInString(prompt)))

		raw, err := g.generator.GenerateContent(ctx, model, prompt)
		if err == nil {
			log.Debug("gemini score response", zap.String("response_preview", TruncateForLog(raw, g.maxLogLen)))
			var result domain.ScoreResult
			result, err = parseScoreResponse(raw, model)
			if err == nil {
				return result, nil
			}
		}

		lastErr = err
		log.Warn("gemini model failed", zap.Error(err))
		if ctx.Err() != nil {
			return domain.ScoreResult{}, ctx.Err()
		}
	}

	return domain.ScoreResult{}, fmt.Errorf("all gemini models failed: %w", lastErr)
}
