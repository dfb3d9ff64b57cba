package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"
)

// WithTimeout bounds every call to next.
func WithTimeout(next Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return next
	}
	return &timeoutProvider{Provider: next, timeout: timeout}
}

type timeoutProvider struct {
	Provider
	timeout time.Duration
}

func (p *timeoutProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Provider.Generate(ctx, systemPrompt, userPrompt)
}

// WithRateLimit allows at most perSecond calls per second to next, waiting
// for a token while ctx permits.
func WithRateLimit(next Provider, perSecond float64) Provider {
	if perSecond <= 0 {
		return next
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedProvider{Provider: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

type rateLimitedProvider struct {
	Provider
	limiter *rate.Limiter
}

func (p *rateLimitedProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", transportError(err)
	}
	return p.Provider.Generate(ctx, systemPrompt, userPrompt)
}

// WithRetry retries failed calls up to maxRetries times with exponential
// backoff. Context cancellation stops retrying.
func WithRetry(next Provider, maxRetries uint64) Provider {
	if maxRetries == 0 {
		return next
	}
	return &retryProvider{Provider: next, maxRetries: maxRetries, initial: 250 * time.Millisecond}
}

type retryProvider struct {
	Provider
	maxRetries uint64
	initial    time.Duration
}

func (p *retryProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out string
	attempt := 0
	op := func() error {
		attempt++
		text, err := p.Provider.Generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			log.Warn().Err(err).Int("attempt", attempt).Str("provider", p.Name()).Msg("generation failed")
			return err
		}
		out = text
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(p.initial)), p.maxRetries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return "", transportError(err)
	}
	return out, nil
}
