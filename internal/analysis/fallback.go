package analysis

import (
	"fmt"
	"strings"

	"visitor-insights/internal/models"
)

// BuildFallbackAnswer computes a deterministic, data-backed answer from the
// live event aggregates. This path has no failure mode of its own: it always
// returns non-empty text, even for an empty collection.
func BuildFallbackAnswer(events []models.IdentificationEvent, question string) string {
	if len(events) == 0 {
		return noDataSentinel
	}

	summary := BuildSummary(events)

	switch ClassifyTopic(question) {
	case CategoryVisitor:
		return visitorAnswer(summary)
	case CategorySecurity:
		return securityAnswer(summary)
	case CategoryGeographic:
		return geographicAnswer(summary)
	case CategoryBrowser:
		return browserAnswer(summary)
	default:
		return genericAnswer(summary)
	}
}

func visitorAnswer(s models.DataSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Across %d identification events there are %d unique visitors (%.1f events per visitor on average).",
		s.TotalEvents, s.UniqueVisitors, eventsPerVisitor(s))
	if len(s.TopVisitors) > 0 {
		top := s.TopVisitors[0]
		fmt.Fprintf(&b, " The most active visitor is %s with %d events.", top.Label, top.Count)
	}
	fmt.Fprintf(&b, " %d events carry a high confidence score and %d a low one.",
		s.HighConfidenceCount, s.LowConfidenceCount)
	return b.String()
}

func securityAnswer(s models.DataSummary) string {
	return fmt.Sprintf(
		"Of %d identification events, %d show VPN usage (%s) and %d were flagged as bots (%s). %d events (%s) are clean. Average identification confidence is %.2f.",
		s.TotalEvents,
		s.VPNCount, percent(s.VPNCount, s.TotalEvents),
		s.BotCount, percent(s.BotCount, s.TotalEvents),
		s.CleanCount, percent(s.CleanCount, s.TotalEvents),
		s.AvgConfidence,
	)
}

func geographicAnswer(s models.DataSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %d events originate from %d countries.", s.TotalEvents, s.UniqueCountries)
	if len(s.TopCountries) > 0 {
		parts := make([]string, 0, len(s.TopCountries))
		for _, lc := range s.TopCountries {
			parts = append(parts, fmt.Sprintf("%s (%d)", lc.Label, lc.Count))
		}
		fmt.Fprintf(&b, " Leading countries: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

func browserAnswer(s models.DataSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Across %d events the browser breakdown is:", s.TotalEvents)
	if len(s.TopBrowsers) > 0 {
		parts := make([]string, 0, len(s.TopBrowsers))
		for _, lc := range s.TopBrowsers {
			parts = append(parts, fmt.Sprintf("%s with %d events (%s)", lc.Label, lc.Count, percent(lc.Count, s.TotalEvents)))
		}
		fmt.Fprintf(&b, " %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

func genericAnswer(s models.DataSummary) string {
	return fmt.Sprintf(
		"The dataset holds %d identification events from %d unique visitors across %d countries. Security signals: %d VPN, %d bot, %d clean. Average identification confidence is %.2f.",
		s.TotalEvents, s.UniqueVisitors, s.UniqueCountries,
		s.VPNCount, s.BotCount, s.CleanCount,
		s.AvgConfidence,
	)
}

func eventsPerVisitor(s models.DataSummary) float64 {
	if s.UniqueVisitors == 0 {
		return 0
	}
	return float64(s.TotalEvents) / float64(s.UniqueVisitors)
}
