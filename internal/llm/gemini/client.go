package gemini

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"consensus-backend/internal/llm"
	"consensus-backend/internal/shared/metrics"
	"consensus-backend/internal/shared/telemetry"
)

// ProviderID is the registry name of this adapter.
const ProviderID = "gemini"

const (
	defaultModel  = "gemini-1.5-pro"
	defaultRegion = "us-central1"
	temperature   = 0.7
	maxTokens     = 4000
)

//go:embed canned/*.json
var cannedFiles embed.FS

// Config configures the Gemini adapter.
type Config struct {
	ProjectID       string
	Region          string
	Model           string
	CredentialsFile string
	// Offline forces canned payloads without creating a Vertex AI client.
	Offline bool
}

// generator is the slice of *genai.GenerativeModel the adapter uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client implements llm.Adapter over Vertex AI Gemini models.
type Client struct {
	newModel   func(systemPrompt string) generator
	baseClient *genai.Client
	canned     *llm.CannedSet
	offline    bool
}

// NewClient constructs a Gemini adapter. Missing project configuration or a
// failed Vertex AI client leaves the adapter serving canned payloads.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	canned, err := llm.LoadCannedSet(cannedFiles, "canned")
	if err != nil {
		return nil, err
	}
	c := &Client{canned: canned, offline: cfg.Offline}
	if cfg.Offline || strings.TrimSpace(cfg.ProjectID) == "" {
		return c, nil
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultModel
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, region, opts...)
	if err != nil {
		telemetry.Warn("provider.init_failed", map[string]any{
			"provider": ProviderID,
			"error":    err.Error(),
		})
		return c, nil
	}
	c.baseClient = baseClient
	c.newModel = func(systemPrompt string) generator {
		model := baseClient.GenerativeModel(modelName)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
		model.GenerationConfig = genai.GenerationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](temperature),
			MaxOutputTokens:  genai.Ptr[int32](maxTokens),
		}
		return model
	}
	return c, nil
}

// Name returns the provider id.
func (c *Client) Name() string { return ProviderID }

// Analyze asks Gemini for a framework payload. Provider failures degrade to
// the canned payload for the framework.
func (c *Client) Analyze(ctx context.Context, promptContext, frameworkID string) (llm.Payload, error) {
	if c.offline {
		return c.canned.Payload(frameworkID), nil
	}
	if c.newModel == nil {
		return c.fallback(frameworkID, errors.New("vertex ai client not configured")), nil
	}

	model := c.newModel(llm.SystemPrompt(frameworkID))
	resp, err := model.GenerateContent(ctx, genai.Text(promptContext))
	if err != nil {
		return c.fallback(frameworkID, fmt.Errorf("gemini generate: %w", err)), nil
	}
	content := extractText(resp)
	if strings.TrimSpace(content) == "" {
		return c.fallback(frameworkID, errors.New("gemini response empty content")), nil
	}
	return llm.ParsePayload(content), nil
}

// Close releases the underlying Vertex AI client.
func (c *Client) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
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

var _ llm.Adapter = (*Client)(nil)
