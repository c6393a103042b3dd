package deepseek

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"consensus-backend/internal/llm"
	"consensus-backend/internal/shared/metrics"
	"consensus-backend/internal/shared/telemetry"
)

// ProviderID is the registry name of this adapter.
const ProviderID = "deepseek"

const (
	defaultBaseURL = "https://api.deepseek.com"
	defaultModel   = "deepseek-chat"
	defaultTimeout = 60 * time.Second
	temperature    = 0.7
	maxTokens      = 4000
	maxErrorBody   = 512
)

//go:embed canned/*.json
var cannedFiles embed.FS

// Config configures the DeepSeek adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Offline forces canned payloads without calling the API.
	Offline bool
}

// Client implements llm.Adapter over the OpenAI-compatible chat completions API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	offline    bool
	httpClient *http.Client
	canned     *llm.CannedSet
}

// NewClient constructs a DeepSeek adapter. A missing API key is not an error;
// the adapter then serves canned payloads.
func NewClient(cfg Config) (*Client, error) {
	canned, err := llm.LoadCannedSet(cannedFiles, "canned")
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		model:   model,
		offline: cfg.Offline,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		canned: canned,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Name returns the provider id.
func (c *Client) Name() string { return ProviderID }

// Analyze asks DeepSeek for a framework payload. Provider failures degrade to
// the canned payload for the framework.
func (c *Client) Analyze(ctx context.Context, promptContext, frameworkID string) (llm.Payload, error) {
	if c.offline {
		return c.canned.Payload(frameworkID), nil
	}
	if c.apiKey == "" {
		return c.fallback(frameworkID, errors.New("DEEPSEEK_API_KEY not configured")), nil
	}

	content, err := c.complete(ctx, llm.SystemPrompt(frameworkID), promptContext)
	if err != nil {
		return c.fallback(frameworkID, err), nil
	}
	return llm.ParsePayload(content), nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("deepseek request timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepseek status %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("deepseek response parse: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("deepseek error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("deepseek response missing choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("deepseek response empty content")
	}
	if parsed.Usage != nil {
		telemetry.Info("provider.usage", map[string]any{
			"provider":          ProviderID,
			"model":             c.model,
			"prompt_tokens":     parsed.Usage.PromptTokens,
			"completion_tokens": parsed.Usage.CompletionTokens,
			"total_tokens":      parsed.Usage.TotalTokens,
		})
	}
	return content, nil
}

func (c *Client) fallback(frameworkID string, cause error) llm.Payload {
	metrics.IncProviderFallback(ProviderID)
	telemetry.Warn("provider.fallback", map[string]any{
		"provider":  ProviderID,
		"framework": frameworkID,
		"error":     cause.Error(),
	})
	return c.canned.Payload(frameworkID)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ llm.Adapter = (*Client)(nil)
