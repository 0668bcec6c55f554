package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/gapscan/gapscan/internal/config"
)

// Provider represents the LLM provider
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderNone   Provider = "none"
)

// Client provides a multi-provider prompt-in/text-out interface.
// When no provider is configured the client reports disabled and callers
// fall back to their template-only paths.
type Client struct {
	provider     Provider
	openaiClient *openai.Client
	geminiClient *GeminiClient
	limiter      *rate.Limiter
	logger       *slog.Logger
	enabled      bool
	model        string
	maxAttempts  int
	backoff      time.Duration
}

// NewClient creates an LLM client from configuration. A missing API key is
// not an error: the client comes up disabled and the pipeline degrades to
// template-only output.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	logger := slog.Default().With("component", "llm")

	limiter := rate.NewLimiter(rate.Limit(cfg.Extraction.RequestsPerSecond), 1)
	base := &Client{
		provider:    ProviderNone,
		limiter:     limiter,
		logger:      logger,
		enabled:     false,
		maxAttempts: cfg.Extraction.MaxAttempts,
		backoff:     cfg.Extraction.InitialBackoff,
	}
	if base.maxAttempts < 1 {
		base.maxAttempts = 1
	}

	provider := cfg.API.Provider
	if provider == "" {
		// Infer from which key is configured
		switch {
		case cfg.API.OpenAIKey != "":
			provider = string(ProviderOpenAI)
		case cfg.API.GeminiKey != "":
			provider = string(ProviderGemini)
		}
	}

	switch Provider(provider) {
	case ProviderOpenAI:
		if cfg.API.OpenAIKey == "" {
			logger.Warn("openai provider selected but no API key configured")
			return base, nil
		}
		base.provider = ProviderOpenAI
		base.openaiClient = openai.NewClient(cfg.API.OpenAIKey)
		base.model = cfg.API.OpenAIModel
		base.enabled = true
		logger.Info("openai client initialized", "model", base.model)
		return base, nil

	case ProviderGemini:
		if cfg.API.GeminiKey == "" {
			logger.Warn("gemini provider selected but no API key configured")
			return base, nil
		}
		geminiClient, err := NewGeminiClient(ctx, cfg.API.GeminiKey, cfg.API.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		base.provider = ProviderGemini
		base.geminiClient = geminiClient
		base.model = cfg.API.GeminiModel
		base.enabled = true
		logger.Info("gemini client initialized", "model", base.model)
		return base, nil

	default:
		logger.Info("no LLM provider configured, client disabled")
		return base, nil
	}
}

// IsEnabled returns true if a provider is configured and ready
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// GetProvider returns the active LLM provider
func (c *Client) GetProvider() Provider {
	return c.provider
}

// Complete sends a prompt and returns the text response. Calls are rate
// limited and retried with exponential backoff; this is the only retried
// path in the pipeline.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.withRetry(ctx, func() (string, error) {
		switch c.provider {
		case ProviderGemini:
			return c.geminiClient.Complete(ctx, systemPrompt, userPrompt)
		case ProviderOpenAI:
			return c.completeOpenAI(ctx, systemPrompt, userPrompt, false)
		default:
			return "", fmt.Errorf("no provider configured")
		}
	})
}

// CompleteJSON sends a prompt and returns a JSON response, using each
// provider's structured-output mode.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.withRetry(ctx, func() (string, error) {
		switch c.provider {
		case ProviderGemini:
			return c.geminiClient.CompleteJSON(ctx, systemPrompt, userPrompt)
		case ProviderOpenAI:
			return c.completeOpenAI(ctx, systemPrompt, userPrompt, true)
		default:
			return "", fmt.Errorf("no provider configured")
		}
	})
}

func (c *Client) withRetry(ctx context.Context, call func() (string, error)) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("llm client not enabled (no provider or API key configured)")
	}

	var lastErr error
	backoff := c.backoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.logger.Warn("llm call failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
		)

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) completeOpenAI(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		Temperature: 0.1, // Low temperature for consistent, repeatable extractions
		MaxTokens:   2000,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	response := resp.Choices[0].Message.Content
	c.logger.Debug("openai completion",
		"model", c.model,
		"prompt_length", len(userPrompt),
		"response_length", len(response),
		"tokens_used", resp.Usage.TotalTokens,
	)

	return response, nil
}
