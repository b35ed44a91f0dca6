package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"visitor-insights/internal/client"
	"visitor-insights/internal/config"
	"visitor-insights/internal/models"
	"visitor-insights/internal/provider"
	"visitor-insights/internal/util"
)

// Orchestrator answers natural-language questions about an event
// collection. Analyze never returns an error: every failure mode below the
// request boundary resolves to a computed rule-based answer.
type Orchestrator struct {
	gateway provider.Gateway
	audit   *client.AuditProducer
	logger  *zap.Logger
}

func NewOrchestrator(gateway provider.Gateway, audit *client.AuditProducer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		audit:   audit,
		logger:  logger,
	}
}

// Status reports which provider is configured and with which model.
type Status struct {
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
	Model     string `json:"model,omitempty"`
}

func (o *Orchestrator) Status() Status {
	return Status{
		Provider:  o.gateway.Name(),
		Available: o.gateway.Available(),
		Model:     o.gateway.Model(),
	}
}

// Analyze runs the full pipeline: classify, summarize, prompt, parse, and
// on any provider failure fall through to the deterministic rule-based
// answer. priorContext carries the previous answer for conversational
// follow-ups; empty means a fresh question.
func (o *Orchestrator) Analyze(ctx context.Context, events []models.IdentificationEvent, question, priorContext string) *models.AnalysisResult {
	start := time.Now()
	category := ClassifyTopic(question)

	result := o.analyze(ctx, events, question, priorContext)

	o.logger.Info("Analysis completed",
		util.String("category", category),
		util.String("provider", result.ProviderUsed),
		util.Bool("success", result.Success),
		util.Int("event_count", len(events)),
		util.Duration("duration", time.Since(start)),
	)

	o.publishAudit(question, category, result, len(events), time.Since(start))

	return result
}

func (o *Orchestrator) analyze(ctx context.Context, events []models.IdentificationEvent, question, priorContext string) *models.AnalysisResult {
	// No provider configured: skip prompt construction entirely.
	if !o.gateway.Available() {
		return o.fallbackResult(events, question, "no provider configured")
	}

	mode := ModeFull
	if IsFastModeQuestion(question) {
		mode = ModeFast
	}
	wantChart := RequiresChart(question)

	systemPrompt := buildSystemPrompt(Summarize(events, mode), priorContext, wantChart)

	response, err := o.gateway.Complete(ctx, systemPrompt, question)
	if err != nil {
		o.logger.Warn("Provider completion failed, using rule-based fallback",
			util.String("provider", o.gateway.Name()),
			util.ErrorField(err),
		)
		return o.fallbackResult(events, question, err.Error())
	}

	answer := strings.TrimSpace(response)
	var chart *models.ChartSpec

	if wantChart {
		if parsedAnswer, parsedChart, ok := ParseChartResponse(response); ok {
			answer = strings.TrimSpace(parsedAnswer)
			chart = parsedChart
		} else {
			// Parse failure is not a provider failure: the prose answer
			// stands, only the chart is dropped.
			o.logger.Debug("Chart envelope unparseable, degrading to plain text")
		}
	}

	if answer == "" {
		return o.fallbackResult(events, question, "provider returned empty answer")
	}

	return &models.AnalysisResult{
		Success:      true,
		AnswerText:   answer,
		Chart:        chart,
		ProviderUsed: providerLabel(o.gateway.Name()),
	}
}

func (o *Orchestrator) fallbackResult(events []models.IdentificationEvent, question, detail string) *models.AnalysisResult {
	return &models.AnalysisResult{
		Success:      false,
		AnswerText:   BuildFallbackAnswer(events, question),
		Chart:        BuildFallbackChart(events, question),
		ProviderUsed: models.AnswerProviderFallback,
		ErrorDetail:  detail,
	}
}

func buildSystemPrompt(digest, priorContext string, wantChart bool) string {
	var b strings.Builder

	b.WriteString("You are an analyst for a visitor-identification dashboard. ")
	b.WriteString("Answer questions using only the dataset summary below. Be concise and cite concrete numbers.\n\n")
	fmt.Fprintf(&b, "Dataset summary:\n%s\n", digest)

	if priorContext != "" {
		fmt.Fprintf(&b, "\nPrevious answer for context:\n%s\n", priorContext)
	}

	if wantChart {
		b.WriteString("\nRespond with a single JSON object and nothing else: ")
		b.WriteString(`{"analysis": "<your answer>", "chart": {"kind": "bar|line|pie", "title": "<title>", "points": [{"label": "<label>", "value": <number>}]}}. `)
		b.WriteString("Use at most 8 points.")
	} else {
		b.WriteString("\nRespond in plain text.")
	}

	return b.String()
}

func providerLabel(name string) string {
	switch name {
	case "ollama":
		return models.AnswerProviderLocal
	case "openai":
		return models.AnswerProviderCloud
	default:
		return models.AnswerProviderFallback
	}
}

// publishAudit emits the per-analysis audit record when Kafka is wired.
// Best-effort on a detached context: audit loss never affects the answer.
func (o *Orchestrator) publishAudit(question, category string, result *models.AnalysisResult, eventCount int, duration time.Duration) {
	if o.audit == nil {
		return
	}

	record := &models.AuditRecord{
		ID:         uuid.NewString(),
		Question:   question,
		Category:   category,
		Provider:   result.ProviderUsed,
		Success:    result.Success,
		EventCount: eventCount,
		Duration:   duration,
		Timestamp:  time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.audit.Publish(ctx, record); err != nil {
			o.logger.Warn("Audit publish failed", util.ErrorField(err))
		}
	}()
}

// Provider exposes gateway metadata for the config sanity log at startup.
func (o *Orchestrator) Provider() string {
	if !o.gateway.Available() {
		return config.ProviderUnconfigured
	}
	return providerLabel(o.gateway.Name())
}
