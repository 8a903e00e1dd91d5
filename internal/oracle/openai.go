package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds the OpenAI-compatible endpoint settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Client implements Analyzer against an OpenAI-compatible chat API in
// JSON mode with a low temperature, so responses stay parseable and
// extractive.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient builds a Client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:    openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Analyze submits one batch and returns the raw JSON payload.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, fmt.Errorf("empty batch text")
	}
	if len(req.Criteria) == 0 {
		return Result{}, fmt.Errorf("no criteria requested")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("oracle request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("oracle returned no choices")
	}

	content := stripFences(strings.TrimSpace(resp.Choices[0].Message.Content))
	c.logger.Debug("oracle batch analyzed",
		zap.String("source", req.SourceURL),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)))

	return Result{
		Payload:    []byte(content),
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// stripFences removes a markdown code fence wrapper. Some models fence
// the JSON despite the response format setting.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
