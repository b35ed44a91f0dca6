package analysis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"visitor-insights/internal/models"
	"visitor-insights/internal/provider"
	"visitor-insights/internal/util"
)

const followupCount = 2

// cannedFollowups holds the keyword-matched fallback question pairs. The
// deeper variant is more specific wording for when the user is already
// drilling into a topic.
var cannedFollowups = map[string]struct{ broader, deeper [followupCount]string }{
	CategoryVisitor: {
		broader: [followupCount]string{"Show me the most active visitors", "What are the visitor activity patterns?"},
		deeper:  [followupCount]string{"Which visitors have linked identifiers?", "Show me repeat visitors with low confidence scores"},
	},
	CategorySecurity: {
		broader: [followupCount]string{"Show me security threats", "Analyze VPN patterns"},
		deeper:  [followupCount]string{"Which visitors are using VPNs?", "Are the detected bots concentrated on specific pages?"},
	},
	CategoryGeographic: {
		broader: [followupCount]string{"Show geographic distribution", "Which countries have the most visitors?"},
		deeper:  [followupCount]string{"Are there countries with unusual VPN usage?", "Compare identification confidence across countries"},
	},
	CategoryBrowser: {
		broader: [followupCount]string{"Show me the browser breakdown", "What operating systems are most common?"},
		deeper:  [followupCount]string{"Which browsers have the most bot detections?", "Compare confidence scores across browsers"},
	},
	CategoryGeneric: {
		broader: [followupCount]string{"Give me an overview of the data", "What are the security threats?"},
		deeper:  [followupCount]string{"What stands out in this dataset?", "Show me the most unusual visitors"},
	},
}

// FollowupGenerator suggests the next questions after an answer. It never
// fails outward: absence of any signal resolves to the generic canned pair.
type FollowupGenerator struct {
	gateway provider.Gateway
	logger  *zap.Logger
}

func NewFollowupGenerator(gateway provider.Gateway, logger *zap.Logger) *FollowupGenerator {
	return &FollowupGenerator{
		gateway: gateway,
		logger:  logger,
	}
}

// Generate returns exactly two non-empty follow-up questions for the given
// answer text.
func (g *FollowupGenerator) Generate(ctx context.Context, answerText string, events []models.IdentificationEvent, deeper bool) []string {
	if g.gateway.Available() {
		if questions, ok := g.fromProvider(ctx, answerText); ok {
			return questions
		}
	}
	return cannedPair(answerText, deeper)
}

func (g *FollowupGenerator) fromProvider(ctx context.Context, answerText string) ([]string, bool) {
	systemPrompt := "You suggest follow-up questions for a visitor-identification analytics dashboard. " +
		"Given the previous answer, produce exactly 2 short follow-up questions the user might ask next. " +
		"Output one question per line and nothing else: no numbering, no commentary."

	response, err := g.gateway.Complete(ctx, systemPrompt, answerText)
	if err != nil {
		g.logger.Debug("Follow-up completion failed, using canned pair", util.ErrorField(err))
		return nil, false
	}

	questions := parseQuestionLines(response)
	if len(questions) < followupCount {
		return nil, false
	}

	return questions[:followupCount], true
}

// parseQuestionLines splits the model output into usable questions,
// stripping numbering and bullet prefixes and dropping empties.
func parseQuestionLines(response string) []string {
	var questions []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.)- ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		questions = append(questions, line)
	}
	return questions
}

func cannedPair(answerText string, deeper bool) []string {
	pair := cannedFollowups[ClassifyTopic(answerText)]
	if deeper {
		return []string{pair.deeper[0], pair.deeper[1]}
	}
	return []string{pair.broader[0], pair.broader[1]}
}
