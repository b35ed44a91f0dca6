package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visitor-insights/internal/config"
)

func ollamaConfig(url string) *config.AIConfig {
	return &config.AIConfig{
		Provider:     config.ProviderLocal,
		OllamaURL:    url,
		OllamaModel:  "llama3.1",
		LocalTimeout: 5 * time.Second,
	}
}

func openaiConfig(url string) *config.AIConfig {
	return &config.AIConfig{
		Provider:     config.ProviderCloud,
		OpenAIURL:    url,
		OpenAIKey:    "test-key",
		OpenAIModel:  "gpt-4o-mini",
		MaxTokens:    256,
		Temperature:  0.3,
		CloudTimeout: 5 * time.Second,
	}
}

func TestOllamaComplete(t *testing.T) {
	var captured ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		resp := ollamaChatResponse{Done: true}
		resp.Message.Role = "assistant"
		resp.Message.Content = "There are 150 events."
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	g := newOllamaGateway(ollamaConfig(server.URL), zap.NewNop())

	content, err := g.Complete(context.Background(), "system prompt", "How many events?")
	require.NoError(t, err)
	assert.Equal(t, "There are 150 events.", content)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "system prompt", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.False(t, captured.Stream)
	assert.Equal(t, "llama3.1", captured.Model)
}

func TestOllamaRetriesOnceThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var resp ollamaChatResponse
		resp.Message.Content = "recovered"
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	g := newOllamaGateway(ollamaConfig(server.URL), zap.NewNop())

	content, err := g.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
	assert.Equal(t, 2, attempts)
}

func TestOllamaGivesUpAfterTwoAttempts(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := newOllamaGateway(ollamaConfig(server.URL), zap.NewNop())

	_, err := g.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, 2, attempts)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "ollama", provErr.Provider)
}

func TestOllamaStopsRetryingOnCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := newOllamaGateway(ollamaConfig(server.URL), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Complete(ctx, "s", "u")
	require.Error(t, err)
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req openaiChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 256, req.MaxTokens)

		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "Cloud answer."}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	g := newOpenAIGateway(openaiConfig(server.URL), zap.NewNop())

	content, err := g.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "Cloud answer.", content)
}

func TestOpenAISurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	g := newOpenAIGateway(openaiConfig(server.URL), zap.NewNop())

	_, err := g.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestOpenAINoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	g := newOpenAIGateway(openaiConfig(server.URL), zap.NewNop())

	_, err := g.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestUnconfiguredGateway(t *testing.T) {
	g := &unconfiguredGateway{}

	assert.Equal(t, "none", g.Name())
	assert.False(t, g.Available())

	_, err := g.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestNewSelectsBackendFromConfig(t *testing.T) {
	logger := zap.NewNop()

	local := New(&config.Config{AI: *ollamaConfig("http://localhost:11434")}, logger)
	assert.Equal(t, "ollama", local.Name())
	assert.True(t, local.Available())

	cloud := New(&config.Config{AI: *openaiConfig("https://api.openai.com/v1/chat/completions")}, logger)
	assert.Equal(t, "openai", cloud.Name())

	none := New(&config.Config{AI: config.AIConfig{Provider: config.ProviderUnconfigured}}, logger)
	assert.Equal(t, "none", none.Name())
	assert.False(t, none.Available())
}
