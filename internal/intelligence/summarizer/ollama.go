package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// OllamaConfig configures an Ollama chat client.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Retry       RetryConfig
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message *chatMessage `json:"message"`
	Error   string       `json:"error"`
}

// OllamaClient calls a local Ollama server's /api/chat without streaming.
type OllamaClient struct {
	cfg        OllamaConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(cfg OllamaConfig, logger logging.Logger) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &OllamaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("ollama"),
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

// Complete sends p and returns the assistant message.
func (c *OllamaClient) Complete(ctx context.Context, p Prompt) (string, error) {
	req := ollamaRequest{Model: c.cfg.Model, Messages: messagesOf(p), Stream: false}
	if c.cfg.Temperature > 0 {
		req.Options = map[string]any{"temperature": c.cfg.Temperature}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "marshal ollama request")
	}

	return withRetry(ctx, c.cfg.Retry, c.logger, c.Name(), func(ctx context.Context) (string, error) {
		raw, err := postJSON(ctx, c.httpClient, strings.TrimRight(c.cfg.BaseURL, "/")+"/api/chat", body, nil)
		if err != nil {
			return "", err
		}
		var resp ollamaResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", pkgerrors.Wrap(err, pkgerrors.ErrCodeLLMBadResponse, "decode ollama response")
		}
		if resp.Error != "" {
			return "", pkgerrors.New(pkgerrors.ErrCodeLLMRequestFailed, "ollama error").WithDetail(resp.Error)
		}
		if resp.Message == nil {
			return "", pkgerrors.New(pkgerrors.ErrCodeLLMBadResponse, "ollama response has no message")
		}
		return nonEmpty(resp.Message.Content)
	})
}

func messagesOf(p Prompt) []chatMessage {
	var msgs []chatMessage
	if strings.TrimSpace(p.System) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: p.User})
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", pkgerrors.New(pkgerrors.ErrCodeLLMEmptyCompletion, "empty completion")
	}
	return s, nil
}

// postJSON posts body and returns the response body of a 200 reply.
// Transport errors, 429 and 5xx come back wrapped as retryable.
func postJSON(ctx context.Context, hc *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeLLMRequestFailed, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.Wrap(ctx.Err(), pkgerrors.ErrCodeTimeout, "completion cancelled")
		}
		return nil, retryable{pkgerrors.Wrap(err, pkgerrors.ErrCodeLLMUnavailable, "request failed")}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryable{pkgerrors.Wrap(err, pkgerrors.ErrCodeLLMUnavailable, "read response")}
	}
	if resp.StatusCode != http.StatusOK {
		e := pkgerrors.New(pkgerrors.ErrCodeLLMRequestFailed, fmt.Sprintf("status %d", resp.StatusCode)).
			WithDetail(truncate(string(raw), 256))
		if retryableStatus(resp.StatusCode) {
			return nil, retryable{e}
		}
		return nil, e
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
