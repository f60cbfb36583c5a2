// Package summarizer turns chart tables into natural-language analyses with a
// chat-completion backend (Ollama, an OpenAI-compatible endpoint or Gemini).
package summarizer

import (
	"context"
	"net/http"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Prompt is one chat exchange: an optional system message and the user turn.
type Prompt struct {
	System string
	User   string
}

// Client is a chat-completion backend.
type Client interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// RetryConfig holds exponential backoff settings.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the backoff used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (r RetryConfig) backoff(attempt int) time.Duration {
	d := r.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * r.BackoffMultiplier)
		if d > r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	return d
}

// retryable marks failures worth another attempt: transport errors, 429 and
// 5xx responses.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// withRetry runs fn until it succeeds, fails permanently, runs out of
// attempts or ctx ends.
func withRetry(ctx context.Context, rc RetryConfig, logger logging.Logger, backend string, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := rc.backoff(attempt)
			logger.Warn("retrying completion",
				logging.String("backend", backend),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", wait),
				logging.Err(lastErr))
			select {
			case <-ctx.Done():
				return "", pkgerrors.Wrap(ctx.Err(), pkgerrors.ErrCodeTimeout, "completion cancelled")
			case <-time.After(wait):
			}
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		var r retryable
		if !pkgerrors.As(err, &r) {
			return "", err
		}
		lastErr = r.err
	}
	return "", pkgerrors.Wrap(lastErr, pkgerrors.ErrCodeLLMUnavailable, "max retries exceeded").WithDetail(backend)
}

// retryableStatus reports whether an HTTP status is transient.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// NewClient builds the backend selected by cfg. The "none" backend yields a
// COMMON_015 error so callers can skip summarization.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger logging.Logger) (Client, error) {
	rc := DefaultRetryConfig()
	if cfg.MaxRetries >= 0 {
		rc.MaxRetries = cfg.MaxRetries
	}
	switch cfg.Backend {
	case config.LLMBackendOllama:
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			Retry:       rc,
		}, logger), nil
	case config.LLMBackendOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			Retry:       rc,
		}, logger)
	case config.LLMBackendGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			Retry:       rc,
		}, logger)
	case config.LLMBackendNone, "":
		return nil, pkgerrors.New(pkgerrors.ErrCodeFeatureDisabled, "summarization is disabled")
	default:
		return nil, pkgerrors.Newf(pkgerrors.ErrCodeLLMBackendUnknown, "unknown backend %q", cfg.Backend)
	}
}
