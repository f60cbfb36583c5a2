package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// OpenAIConfig configures an OpenAI-compatible chat client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryConfig
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIClient calls POST {base}/chat/completions with a bearer token.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient creates an OpenAI-compatible client. An API key is required.
func NewOpenAIClient(cfg OpenAIConfig, logger logging.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, pkgerrors.InvalidParam("openai api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("openai"),
	}, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

// Complete sends p and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:       c.cfg.Model,
		Messages:    messagesOf(p),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "marshal openai request")
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	return withRetry(ctx, c.cfg.Retry, c.logger, c.Name(), func(ctx context.Context) (string, error) {
		raw, err := postJSON(ctx, c.httpClient, url, body, headers)
		if err != nil {
			return "", err
		}
		var resp openAIResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", pkgerrors.Wrap(err, pkgerrors.ErrCodeLLMBadResponse, "decode openai response")
		}
		if resp.Error != nil {
			return "", pkgerrors.New(pkgerrors.ErrCodeLLMRequestFailed, "openai error").WithDetail(resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return "", pkgerrors.New(pkgerrors.ErrCodeLLMBadResponse, "openai response has no choices")
		}
		return nonEmpty(resp.Choices[0].Message.Content)
	})
}
