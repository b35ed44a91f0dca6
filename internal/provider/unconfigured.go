package provider

import "context"

// unconfiguredGateway is the backend used when no AI provider is set up.
// Complete fails immediately so the orchestrator's existing failure path
// handles "no AI" the same way it handles a dead one.
type unconfiguredGateway struct{}

func (g *unconfiguredGateway) Name() string    { return "none" }
func (g *unconfiguredGateway) Model() string   { return "" }
func (g *unconfiguredGateway) Available() bool { return false }

func (g *unconfiguredGateway) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", &ProviderError{Provider: g.Name(), Reason: "not configured", Err: ErrNotConfigured}
}
