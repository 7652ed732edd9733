package classify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/teslashibe/go-visionapp/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI classifies images with an OpenAI-compatible vision chat model.
// Any server speaking the chat completions API (OpenAI, vLLM, Ollama) works
// through WithBaseURL.
type OpenAI struct {
	config *Config
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI vision classifier.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = openai.GPT4oMini
	cfg.Apply(opts...)

	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrNoModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = httpc.NewClient(cfg.Timeout)

	return &OpenAI{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: cfg.Logger.With("component", "classify.openai"),
	}, nil
}

// Classify sends the image as a data URL and parses the JSON reply.
func (o *OpenAI) Classify(ctx context.Context, jpeg []byte) (Classifications, error) {
	if len(jpeg) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyImage)
	}
	start := time.Now()

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.config.Model,
		MaxTokens:   o.config.MaxTokens,
		Temperature: float32(o.config.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: o.config.Prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Provider: providerOpenAI}
		}
		return nil, WrapError(providerOpenAI, fmt.Errorf("chat completion: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, WrapError(providerOpenAI, ErrNoResults)
	}

	results, err := parseLabelJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	results = results.Top(o.config.TopK)

	o.logger.Debug("classified",
		"label", results[0].Label,
		"confidence", results[0].Confidence,
		"model", resp.Model,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// Health lists the server's models. Compatible servers without a key are
// checked the same way.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Provider: providerOpenAI}
		}
		return WrapError(providerOpenAI, fmt.Errorf("list models: %w", err))
	}
	return nil
}

// Name returns "openai".
func (o *OpenAI) Name() string {
	return providerOpenAI
}

// Close is a no-op; the client holds no resources beyond pooled connections.
func (o *OpenAI) Close() error {
	return nil
}

// Verify OpenAI implements Classifier at compile time.
var _ Classifier = (*OpenAI)(nil)
