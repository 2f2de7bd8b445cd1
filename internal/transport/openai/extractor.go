package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kestrelsearch/kestrel/internal/domain"
	"github.com/kestrelsearch/kestrel/internal/metrics"
)

const extractPrompt = "Extract the search keywords from the user's request. " +
	"Reply with the keywords only, one per line, no punctuation, no commentary."

// Extractor converts natural-language search requests into keywords
// using an OpenAI-compatible chat API.
type Extractor struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// Config holds the extraction provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewExtractor creates an OpenAI-compatible keyword extractor.
func NewExtractor(cfg *Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Extractor{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: cfg.Logger,
	}
}

// ExtractKeywords implements search.Extractor.
func (e *Extractor) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues("error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.ExtractionRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("empty extraction response: %w", domain.ErrExtractorUnavailable)
	}

	metrics.ExtractionRequestsTotal.WithLabelValues("success").Inc()
	metrics.ExtractionRequestDuration.Observe(duration.Seconds())

	keywords := parseKeywords(resp.Choices[0].Message.Content)
	e.logger.Debug("keywords extracted",
		zap.Int("count", len(keywords)), zap.Duration("latency", duration))
	return keywords, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Extractor) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseKeywords splits the model reply into keywords. One keyword per
// line is requested, but commas and list bullets show up anyway.
func parseKeywords(content string) []string {
	var keywords []string
	for _, line := range strings.Split(content, "\n") {
		for _, part := range strings.Split(line, ",") {
			word := strings.TrimSpace(part)
			word = strings.TrimLeft(word, "-*• \t")
			word = strings.Trim(word, `"'`)
			if word != "" {
				keywords = append(keywords, word)
			}
		}
	}
	return keywords
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrExtractorUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrExtractorUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("extraction API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("extraction API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("extraction API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("extraction request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
