package llmclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"csv-agent/config"
	apperrors "csv-agent/errors"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrContextWindowExceeded is returned when the model reports the prompt
// exceeds the available context size.
var ErrContextWindowExceeded = errors.New("context window exceeded")

// Request is one chat completion call. Tools may be empty.
type Request struct {
	Model       string
	Messages    []openai.ChatCompletionMessage
	Tools       []openai.Tool
	Temperature float32
}

type Client struct {
	cfg    *config.Config
	api    *openai.Client
	logger *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	}
	// Requests are bounded by the configured timeout; callers may shorten it
	// further through the context.
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.LLMRequestTimeout}
	return &Client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}
}

// Complete performs a non-streaming chat completion and returns the
// assistant message, tool calls included.
func (c *Client) Complete(ctx context.Context, req Request) (openai.ChatCompletionMessage, error) {
	temperature := req.Temperature
	if temperature == 0 {
		// A zero temperature is dropped by omitempty and the server would use its default
		temperature = math.SmallestNonzeroFloat32
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: temperature,
	}

	attempts := c.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return openai.ChatCompletionMessage{}, apperrors.WrapError(apperrors.ErrLLMCommunication, "no response choices from llm server")
			}
			c.logger.Debug("LLM completion received",
				zap.String("model", req.Model),
				zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
				zap.Int("tool_calls", len(resp.Choices[0].Message.ToolCalls)),
				zap.Int("total_tokens", resp.Usage.TotalTokens))
			return resp.Choices[0].Message, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return openai.ChatCompletionMessage{}, ctx.Err()
		}
		if isContextLengthError(err) {
			return openai.ChatCompletionMessage{}, ErrContextWindowExceeded
		}
		if !isRetryable(err) {
			break
		}
		c.logger.Warn("LLM service unavailable, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < attempts-1 {
			if err := c.backoffSleep(ctx, attempt); err != nil {
				return openai.ChatCompletionMessage{}, err
			}
		}
	}
	return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %v", apperrors.ErrLLMCommunication, lastErr)
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	// Transport failures (connection refused, reset) carry no status
	return true
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isContextLengthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "context_length_exceeded") ||
		strings.Contains(msg, "exceeds the available context size") ||
		strings.Contains(msg, "maximum context length")
}

func (c *Client) backoffSleep(ctx context.Context, attempt int) error {
	// Exponential backoff with jitter and cap
	base := c.cfg.RetryDelaySeconds
	if base <= 0 {
		base = time.Second
	}
	d := base * time.Duration(1<<attempt)
	if maxWait := c.cfg.LLMBackoffMaxSeconds; maxWait > 0 && d > maxWait {
		d = maxWait
	}
	jitter := time.Duration(float64(d) * 0.1)
	if jitter > 0 {
		d = d - jitter + time.Duration(rand.Int63n(int64(2*jitter)+1))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
