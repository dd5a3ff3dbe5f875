// internal/agent/provider/chat.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"trenddrop-agent/internal/common/config"
	httpx "trenddrop-agent/internal/common/http"
	"trenddrop-agent/internal/common/logger"
)

// Provider names in declared failover order.
const (
	NameOpenAI   = "openai"
	NameGrok     = "grok"
	NameLMStudio = "lmstudio"
)

// chatProvider is an HTTP client for any backend speaking the
// chat-completions wire format. OpenAI, Grok (x.ai) and LM Studio all do;
// they differ only in base URL, model name and credential requirements.
type chatProvider struct {
	name     string
	baseURL  string
	apiKey   string
	model    string
	needsKey bool
	timeout  time.Duration
	client   *httpx.Client
	log      logger.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func newChatProvider(name string, cfg config.ProviderConfig, needsKey bool, log logger.Logger) *chatProvider {
	timeout := config.GetDuration(cfg.Timeout)
	return &chatProvider{
		name:     name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		needsKey: needsKey,
		timeout:  timeout,
		client:   httpx.NewClient(timeout),
		log:      log.With(map[string]interface{}{"provider": name}),
	}
}

// NewOpenAI creates the hosted OpenAI backend. Configured iff an API key is set.
func NewOpenAI(cfg config.ProviderConfig, log logger.Logger) Provider {
	return newChatProvider(NameOpenAI, cfg, true, log)
}

// NewGrok creates the x.ai backend. Configured iff an API key is set.
func NewGrok(cfg config.ProviderConfig, log logger.Logger) Provider {
	return newChatProvider(NameGrok, cfg, true, log)
}

// NewLMStudio creates the local inference backend. No key needed; configured
// iff a base URL is set.
func NewLMStudio(cfg config.ProviderConfig, log logger.Logger) Provider {
	return newChatProvider(NameLMStudio, cfg, false, log)
}

func (p *chatProvider) Name() string { return p.name }

func (p *chatProvider) Configured() bool {
	if p.baseURL == "" {
		return false
	}
	if p.needsKey && p.apiKey == "" {
		return false
	}
	return true
}

func (p *chatProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	resp, err := p.client.PostJSON(ctx, p.baseURL+"/chat/completions", p.apiKey, reqBody)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%s returned status %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s response decode failed: %w", p.name, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s API error: %s", p.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.name)
	}

	text := parsed.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s returned an empty completion", p.name)
	}

	return text, nil
}
