// Package provider abstracts the answer-generation backends behind a single
// completion interface. Callers never talk to a concrete backend directly.
package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"visitor-insights/internal/config"
)

// Gateway is the one capability the analysis layer needs from an AI backend:
// given a system prompt and a user prompt, return text, fallibly.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
	Model() string
	Available() bool
}

// ErrNotConfigured is the uniform failure of the unconfigured backend. It
// funnels every "no AI available" case through the same error path the
// orchestrator already handles for network failures.
var ErrNotConfigured = errors.New("no AI provider configured")

// ProviderError wraps any backend failure: network error, non-success
// status, or timeout.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// New resolves the configured backend. Selection is a static configuration
// choice made once per process; the factory caches the returned Gateway.
func New(cfg *config.Config, logger *zap.Logger) Gateway {
	switch cfg.AI.Provider {
	case config.ProviderLocal:
		return newOllamaGateway(&cfg.AI, logger)
	case config.ProviderCloud:
		return newOpenAIGateway(&cfg.AI, logger)
	default:
		return &unconfiguredGateway{}
	}
}

// chatMessage is the role/content pair both wire formats share.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
