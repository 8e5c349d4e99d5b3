package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"recruitment/domain"
)

// OpenAIScorer scores applications with an OpenAI chat model in JSON mode.
type OpenAIScorer struct {
	client    *openai.Client
	model     string
	logger    *zap.Logger
	maxLogLen int
}

// NewOpenAIScorer creates a scorer backed by the OpenAI API.
func NewOpenAIScorer(cfg AIConfig, logger *zap.Logger) (*OpenAIScorer, error) {
	apiKey := strings.TrimSpace(cfg.OpenAIAPIKey)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.OpenAIModel)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIScorer{
		client:    openai.NewClient(apiKey),
		model:     model,
		logger:    orNop(logger).With(zap.String("ai_provider", "openai"), zap.String("ai_model", model)),
		maxLogLen: cfg.MaxLogLength,
	}, nil
}

func (o *OpenAIScorer) Score(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResult, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a precise recruitment screening assistant that answers in JSON."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.ScoreResult{}, errors.New("openai returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	o.logger.Debug("openai score response",
		zap.String("application_ref", req.ApplicationRef),
		zap.String("response_preview", TruncateForLog(raw, o.maxLogLen)),
	)
	return parseScoreResponse(raw, o.model)
}
