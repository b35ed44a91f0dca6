package analysis

import "strings"

// Question topic categories, in fallback priority order.
const (
	CategoryVisitor    = "visitor"
	CategorySecurity   = "security"
	CategoryGeographic = "geographic"
	CategoryBrowser    = "browser"
	CategoryGeneric    = "general"
)

// fastModeKeywords flag simple aggregate questions that only need the short
// digest (total count, unique visitors, security counts).
var fastModeKeywords = []string{"total", "count", "how many"}

// chartKeywords is intentionally over-inclusive: asking for a chart nobody
// needed is acceptable, failing to chart an obviously visual question is not.
var chartKeywords = []string{
	"chart", "graph", "visualize", "show me", "display", "plot",
	"trend", "compare", "distribution", "percentage", "proportion",
	"breakdown", "top", "most", "highest", "lowest", "activity", "pattern",
}

// categoryKeywords drive the rule-based fallback. Matching order is fixed
// (visitor, security, geographic, browser) so fallback output stays
// deterministic when a question spans categories.
var categoryOrder = []string{CategoryVisitor, CategorySecurity, CategoryGeographic, CategoryBrowser}

var categoryKeywords = map[string][]string{
	CategoryVisitor:    {"visitor", "activity", "active", "session"},
	CategorySecurity:   {"security", "vpn", "bot", "threat", "fraud", "suspicious", "risk"},
	CategoryGeographic: {"geographic", "geography", "location", "country", "countries", "region", "where"},
	CategoryBrowser:    {"browser", "device", "operating system", "platform", "chrome", "firefox", "safari"},
}

// IsFastModeQuestion reports whether the question is a simple aggregate
// query answerable from the short digest.
func IsFastModeQuestion(question string) bool {
	return containsAny(question, fastModeKeywords)
}

// RequiresChart reports whether the question implies a visualization.
func RequiresChart(question string) bool {
	return containsAny(question, chartKeywords)
}

// ClassifyTopic returns the first matching category in priority order, or
// CategoryGeneric when nothing matches.
func ClassifyTopic(question string) string {
	for _, category := range categoryOrder {
		if containsAny(question, categoryKeywords[category]) {
			return category
		}
	}
	return CategoryGeneric
}

func containsAny(text string, keywords []string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
