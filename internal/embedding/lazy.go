package embedding

import (
	"context"
	"sync"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/phuslu/log"
)

// Factory builds the process-wide embedding client.
type Factory func(ctx context.Context) (*Client, error)

// Lazy constructs its client on first use. Concurrent first callers wait on
// the same construction; a failed construction is not cached, so the next
// call tries again.
type Lazy struct {
	factory Factory
	model   string

	mu     sync.Mutex
	client *Client
}

// NewLazy returns a handle for factory. model is reported before the client
// exists so retrieval can filter on it without forcing construction.
func NewLazy(model string, factory Factory) *Lazy {
	return &Lazy{factory: factory, model: model}
}

// Get returns the client, constructing it if needed.
func (l *Lazy) Get(ctx context.Context) (*Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}

	client, err := l.factory(ctx)
	if err != nil {
		log.Error().Err(err).Str("model", l.model).Msg("embedding client init failed")
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeTransport, domain.ErrEmbeddingUnavailable.Message, err)
	}
	l.client = client
	log.Info().Str("model", client.Model()).Int("dimensions", client.Dimensions()).Msg("embedding client ready")
	return client, nil
}

func (l *Lazy) Model() string {
	return l.model
}

func (l *Lazy) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	client, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return client.GenerateEmbedding(ctx, text)
}
