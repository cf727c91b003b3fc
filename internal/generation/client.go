// Package generation wraps the OpenAI chat completion API used to
// synthesize grounded answers from retrieved evidence.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// ErrGenerationUnavailable is returned once the retry budget for the
// generation provider is exhausted.
var ErrGenerationUnavailable = errors.New("generation provider unavailable")

const (
	// DefaultModel is the chat model used unless configured otherwise.
	DefaultModel = openai.ChatModelGPT4o

	// DefaultRequestTimeout bounds a single completion round trip.
	// Completions are slower than embeddings, so the budget is larger.
	DefaultRequestTimeout = 60 * time.Second
)

// Config holds generation model configuration.
type Config struct {
	Model          string
	RequestTimeout time.Duration
}

// Client calls the chat completion API with timeout and bounded retry.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger

	retryInitial    time.Duration
	retryMaxElapsed time.Duration
}

// NewClient wraps an already configured OpenAI client. The embedding
// and generation sides share one transport.
func NewClient(client *openai.Client, cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:          client,
		model:           cfg.Model,
		timeout:         cfg.RequestTimeout,
		logger:          logger,
		retryInitial:    500 * time.Millisecond,
		retryMaxElapsed: 30 * time.Second,
	}
}

// Complete sends system and user messages and returns the model's text.
// Transient failures are retried with exponential backoff; exhaustion
// surfaces ErrGenerationUnavailable.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var text string

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Model: c.model,
		})
		if err != nil {
			if isTransient(err) {
				c.logger.Warn("completion request failed, will retry", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("completion returned no choices"))
		}
		text = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = c.retryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if isTransient(err) {
			return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
		}
		return "", err
	}
	return text, nil
}

func isTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
