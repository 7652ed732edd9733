package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-visionapp/internal/httpc"
)

const (
	providerGemini   = "gemini"
	geminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	geminiModelFlash = "gemini-2.0-flash"
)

// Gemini classifies images with Gemini Flash, asking for JSON labels.
type Gemini struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewGemini creates a Gemini classifier.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Model = geminiModelFlash
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}

	return &Gemini{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "classify.gemini"),
		baseURL: baseURL,
	}, nil
}

// Classify sends the image inline and parses the JSON reply.
func (g *Gemini) Classify(ctx context.Context, jpeg []byte) (Classifications, error) {
	if len(jpeg) == 0 {
		return nil, WrapError(providerGemini, ErrEmptyImage)
	}
	start := time.Now()

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": g.config.Prompt},
					{"inline_data": map[string]string{
						"mime_type": "image/jpeg",
						"data":      base64.StdEncoding.EncodeToString(jpeg),
					}},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      g.config.Temperature,
			"maxOutputTokens":  g.config.MaxTokens,
			"responseMimeType": "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("marshal payload: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.config.Model, g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("API request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := httpc.ReadBody(resp)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	var result geminiResponse
	_ = json.Unmarshal(respBody, &result)

	if resp.StatusCode != http.StatusOK {
		msg := result.Error.Message
		if msg == "" {
			msg = truncate(string(respBody), 200)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg, Provider: providerGemini}
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, WrapError(providerGemini, ErrNoResults)
	}

	results, err := parseLabelJSON(result.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	results = results.Top(g.config.TopK)

	g.logger.Debug("classified",
		"label", results[0].Label,
		"confidence", results[0].Confidence,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return providerGemini
}

// Health fetches the model's metadata, which checks the key and the model
// name without spending tokens.
func (g *Gemini) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/models/%s?key=%s", g.baseURL, g.config.Model, g.config.APIKey)
	if _, err := httpc.GetBytes(ctx, g.client, url); err != nil {
		var statusErr *httpc.StatusError
		if errors.As(err, &statusErr) {
			return &APIError{StatusCode: statusErr.StatusCode, Message: statusErr.Body, Provider: providerGemini}
		}
		return WrapError(providerGemini, err)
	}
	return nil
}

// Close releases idle connections.
func (g *Gemini) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// geminiResponse is the response structure from the Gemini API.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Verify Gemini implements Classifier at compile time.
var _ Classifier = (*Gemini)(nil)
