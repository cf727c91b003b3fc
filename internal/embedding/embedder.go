// Package embedding converts chunk and query text into fixed-dimension
// vectors via OpenAI's embedding API, with batching, rate limiting and
// retry on transient provider failures.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the embedding model used unless configured otherwise.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector size for text-embedding-3-small.
	// Every vector produced by one configured model shares this size;
	// the chunk store validates it once at initialization.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute against
	// tokens-per-minute pressure. The API accepts up to 2048 inputs.
	DefaultBatchSize = 500

	// DefaultRequestTimeout bounds a single provider round trip.
	DefaultRequestTimeout = 30 * time.Second
)

// provider is the seam between the Embedder and the actual API client,
// letting tests substitute a stub.
type provider interface {
	createEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Config holds the explicit embedding model configuration. The "current
// model" is never ambient state: it is set here and nowhere else.
type Config struct {
	Model             string
	Dimension         int
	BatchSize         int
	RequestTimeout    time.Duration
	RequestsPerSecond float64 // 0 disables client-side rate limiting
}

func (c *Config) withDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Embedder generates embeddings in order-preserving batches.
type Embedder struct {
	provider  provider
	model     string
	dimension int
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger

	retryInitial    time.Duration
	retryMaxElapsed time.Duration
}

// NewEmbedder creates an Embedder backed by the given client.
func NewEmbedder(client *Client, cfg Config, logger *slog.Logger) *Embedder {
	return newEmbedder(client, cfg, logger)
}

func newEmbedder(p provider, cfg Config, logger *slog.Logger) *Embedder {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Embedder{
		provider:        p,
		model:           cfg.Model,
		dimension:       cfg.Dimension,
		batchSize:       cfg.BatchSize,
		timeout:         cfg.RequestTimeout,
		limiter:         limiter,
		logger:          logger,
		retryInitial:    500 * time.Millisecond,
		retryMaxElapsed: 30 * time.Second,
	}
}

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.model }

// Dimension returns the configured vector dimension.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed generates one vector per input text, in input order. Inputs
// larger than the batch size are split transparently. On transient
// provider errors each batch is retried with exponential backoff; once
// retries are exhausted the whole call fails with
// ErrProviderUnavailable and no partial result is returned.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		vectors, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatchWithRetry runs one batch with a bounded per-request timeout
// and exponential backoff on transient failures. Permanent failures
// (auth, bad request, malformed response) abort immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		result, err := e.provider.createEmbeddings(reqCtx, e.model, texts)
		if err != nil {
			if isTransient(err) {
				e.logger.Warn("embedding request failed, will retry", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}

		if len(result) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d inputs",
				ErrBadResponse, len(result), len(texts)))
		}
		for i, v := range result {
			if len(v) != e.dimension {
				return backoff.Permanent(fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
					ErrBadResponse, i, len(v), e.dimension))
			}
		}

		vectors = result
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = e.retryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if isTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	return vectors, nil
}

// isTransient reports whether an error is worth retrying: rate limits,
// server errors, and network timeouts.
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
