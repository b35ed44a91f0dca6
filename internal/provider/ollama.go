package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"visitor-insights/internal/config"
	"visitor-insights/internal/util"
)

// ollamaGateway talks to a local Ollama server via its chat endpoint.
type ollamaGateway struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func newOllamaGateway(cfg *config.AIConfig, logger *zap.Logger) *ollamaGateway {
	return &ollamaGateway{
		baseURL: cfg.OllamaURL,
		model:   cfg.OllamaModel,
		timeout: cfg.LocalTimeout,
		httpClient: &http.Client{
			Timeout: cfg.LocalTimeout,
		},
		logger: logger,
	}
}

func (g *ollamaGateway) Name() string    { return "ollama" }
func (g *ollamaGateway) Model() string   { return g.model }
func (g *ollamaGateway) Available() bool { return true }

// Complete sends both prompts as a two-message chat. One retry; the caller's
// context plus the client timeout bound the total wait.
func (g *ollamaGateway) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := ollamaChatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		content, err := g.send(ctx, req)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		g.logger.Warn("Ollama completion attempt failed",
			util.Int("attempt", attempt+1),
			util.ErrorField(err),
		)
	}

	return "", &ProviderError{Provider: g.Name(), Reason: "completion failed", Err: lastErr}
}

func (g *ollamaGateway) send(ctx context.Context, req ollamaChatRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return chatResp.Message.Content, nil
}
