// Package embedding turns question text into query vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/copilot/internal/domain"
)

const (
	// DefaultEmbeddingDimensions matches the vector column width
	DefaultEmbeddingDimensions = 768
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoEmbedding is returned when a backend answers without a vector
	ErrNoEmbedding = errors.New("no embedding data returned")
)

// EmbeddingAPI is one embedding backend.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Client validates and retries calls to an embedding backend.
type Client struct {
	api         EmbeddingAPI
	model       string
	dimensions  int
	queryPrefix string
	maxRetries  uint64
	timeout     time.Duration
}

type ClientConfig struct {
	Model       string
	Dimensions  int
	QueryPrefix string
	MaxRetries  uint64
	Timeout     time.Duration
}

func NewClient(api EmbeddingAPI, cfg ClientConfig) *Client {
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:         api,
		model:       cfg.Model,
		dimensions:  dimensions,
		queryPrefix: cfg.QueryPrefix,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout,
	}
}

// Model is the tag stored alongside chunk embeddings produced by this client.
func (c *Client) Model() string {
	return c.model
}

// Dimensions is the expected vector length.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding embeds a question. Any backend failure is reported as
// domain.ErrEmbeddingUnavailable.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	input := c.queryPrefix + text

	var embedding []float32
	op := func() error {
		vec, err := c.api.CreateEmbeddings(ctx, input)
		if err != nil {
			return err
		}
		if len(vec) != c.dimensions {
			return backoff.Permanent(fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(vec)))
		}
		embedding = vec
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(200*time.Millisecond)), c.maxRetries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeTransport, domain.ErrEmbeddingUnavailable.Message, err)
	}

	return embedding, nil
}
