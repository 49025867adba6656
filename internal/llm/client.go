package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/pkg/logging"
)

var llmTracer = otel.Tracer("hragent.internal.llm")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int
	CachedTokens     int
	CompletionTokens int
}

// Attempt records one failed call so the caller can write zero-token
// ledger rows for retries.
type Attempt struct {
	Err error
}

// Result is one successful completion with its cost.
type Result struct {
	Content string
	Usage   Usage
	Cost    float64
}

// Client wraps the model API with JSON-object output, a process-wide
// concurrency cap and bounded retries.
type Client struct {
	api         chatClient
	model       string
	temperature float32
	maxTokens   int
	retries     int
	sem         *semaphore.Weighted
	logger      *logging.Logger
}

// New builds a client from configuration, routing through the configured
// proxy when one is set.
func New(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	apiCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		apiCfg.BaseURL = cfg.LLMBaseURL
	}
	httpClient := &http.Client{Timeout: cfg.LLMTimeout}
	if cfg.LLMProxyURL != "" {
		proxyURL, err := url.Parse(cfg.LLMProxyURL)
		if err != nil {
			return nil, fmt.Errorf("llm: failed to parse proxy url: %w", err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	apiCfg.HTTPClient = httpClient

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.LLMModel,
		temperature: float32(cfg.LLMTemperature),
		maxTokens:   cfg.LLMMaxTokens,
		retries:     cfg.LLMRetries,
		sem:         semaphore.NewWeighted(int64(cfg.LLMConcurrency)),
		logger:      logger.Named("llm"),
	}, nil
}

// Complete runs one JSON-mode chat completion. Failed attempts are
// returned alongside the error or result so the caller can account for
// them in the usage ledger.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (*Result, []Attempt, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer c.sem.Release(1)

	ctx, span := llmTracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("hragent.llm.model", c.model),
		attribute.Int("hragent.llm.messages", len(messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 4 * time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	var attempts []Attempt
	var resp openai.ChatCompletionResponse
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		r, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil && len(r.Choices) == 0 {
			err = errors.New("llm: completion returned no choices")
		}
		if err != nil {
			attempts = append(attempts, Attempt{Err: err})
			c.logger.Warn("completion attempt failed", "attempt", attempt, "error", err)
			if attempt >= c.retries {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		span.RecordError(err)
		return nil, attempts, fmt.Errorf("llm: completion failed: %w", err)
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}
	result := &Result{
		Content: resp.Choices[0].Message.Content,
		Usage:   usage,
		Cost:    CompletionCost(usage),
	}
	span.SetAttributes(
		attribute.Int("hragent.llm.prompt_tokens", usage.PromptTokens),
		attribute.Int("hragent.llm.completion_tokens", usage.CompletionTokens),
	)
	return result, attempts, nil
}
