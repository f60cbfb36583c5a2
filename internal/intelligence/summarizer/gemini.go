package summarizer

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Retry       RetryConfig
}

// contentGenerator is the slice of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	cfg    GeminiConfig
	models contentGenerator
	logger logging.Logger
}

// NewGeminiClient creates a Gemini client. An API key is required.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger logging.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, pkgerrors.InvalidParam("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeLLMUnavailable, "create genai client")
	}
	return newGeminiClientWithModels(cfg, client.Models, logger), nil
}

func newGeminiClientWithModels(cfg GeminiConfig, models contentGenerator, logger logging.Logger) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &GeminiClient{cfg: cfg, models: models, logger: logger.Named("gemini")}
}

func (c *GeminiClient) Name() string { return "gemini" }

// Complete sends p and concatenates the text parts of the first candidate.
func (c *GeminiClient) Complete(ctx context.Context, p Prompt) (string, error) {
	gc := &genai.GenerateContentConfig{}
	if strings.TrimSpace(p.System) != "" {
		gc.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	if c.cfg.Temperature > 0 {
		t := float32(c.cfg.Temperature)
		gc.Temperature = &t
	}
	contents := []*genai.Content{genai.NewContentFromText(p.User, genai.RoleUser)}

	return withRetry(ctx, c.cfg.Retry, c.logger, c.Name(), func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.models.GenerateContent(callCtx, c.cfg.Model, contents, gc)
		if err != nil {
			if ctx.Err() != nil {
				return "", pkgerrors.Wrap(ctx.Err(), pkgerrors.ErrCodeTimeout, "completion cancelled")
			}
			return "", retryable{pkgerrors.Wrap(err, pkgerrors.ErrCodeLLMUnavailable, "gemini generate failed")}
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", pkgerrors.New(pkgerrors.ErrCodeLLMBadResponse, "gemini response has no candidates")
		}
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
		return nonEmpty(sb.String())
	})
}
