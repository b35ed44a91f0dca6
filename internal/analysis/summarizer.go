package analysis

import (
	"fmt"
	"sort"
	"strings"

	"visitor-insights/internal/models"
)

// SummaryMode selects how much of the digest gets computed.
type SummaryMode int

const (
	ModeFast SummaryMode = iota
	ModeFull
)

const (
	// Collections at or below this size get the limited-data sentinel
	// instead of a top-5 breakdown manufactured from a handful of points.
	limitedDataThreshold = 100

	topListSize = 5

	highConfidenceFloor = 0.9
	lowConfidenceCeil   = 0.5
)

const (
	noDataSentinel      = "No identification events are available."
	limitedDataSentinel = "The dataset is too limited for detailed statistical analysis"
)

// BuildSummary computes the full statistical digest over an event
// collection. Pure function: same events in, same summary out, recomputed
// on every call.
func BuildSummary(events []models.IdentificationEvent) models.DataSummary {
	summary := models.DataSummary{TotalEvents: len(events)}

	visitors := map[string]bool{}
	ips := map[string]bool{}
	countries := map[string]bool{}

	var confidenceTotal float64

	for _, e := range events {
		visitors[e.VisitorID] = true
		ips[e.IPAddress] = true
		countries[e.Country] = true

		switch {
		case e.VPNDetected:
			summary.VPNCount++
		case e.BotDetected:
			summary.BotCount++
		default:
			summary.CleanCount++
		}

		confidenceTotal += e.ConfidenceScore
		if e.ConfidenceScore >= highConfidenceFloor {
			summary.HighConfidenceCount++
		}
		if e.ConfidenceScore < lowConfidenceCeil {
			summary.LowConfidenceCount++
		}
	}

	summary.UniqueVisitors = len(visitors)
	summary.UniqueIPs = len(ips)
	summary.UniqueCountries = len(countries)
	if len(events) > 0 {
		summary.AvgConfidence = confidenceTotal / float64(len(events))
	}

	summary.TopCountries = topCounts(events, topListSize, func(e models.IdentificationEvent) string { return e.Country })
	summary.TopBrowsers = topCounts(events, topListSize, func(e models.IdentificationEvent) string { return e.BrowserName })
	summary.TopVisitors = topCounts(events, topListSize, func(e models.IdentificationEvent) string { return e.VisitorID })

	return summary
}

// topCounts groups events by key and returns the n most frequent labels,
// descending by count, ties broken by first appearance in the collection.
func topCounts(events []models.IdentificationEvent, n int, key func(models.IdentificationEvent) string) []models.LabelCount {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	var order []string

	for i, e := range events {
		label := key(e)
		if _, seen := counts[label]; !seen {
			firstSeen[label] = i
			order = append(order, label)
		}
		counts[label]++
	}

	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})

	if len(order) > n {
		order = order[:n]
	}

	out := make([]models.LabelCount, 0, len(order))
	for _, label := range order {
		out = append(out, models.LabelCount{Label: label, Count: counts[label]})
	}
	return out
}

// Summarize renders the collection as a compact digest for prompt
// inclusion. Output size is bounded by construction: counts and top-5 lists
// only, never per-event detail.
func Summarize(events []models.IdentificationEvent, mode SummaryMode) string {
	if len(events) == 0 {
		return noDataSentinel
	}

	summary := BuildSummary(events)

	if mode == ModeFast {
		return fmt.Sprintf(
			"Dataset: %d identification events, %d unique visitors. Security: %d VPN, %d bot, %d clean.",
			summary.TotalEvents, summary.UniqueVisitors,
			summary.VPNCount, summary.BotCount, summary.CleanCount,
		)
	}

	if len(events) <= limitedDataThreshold {
		return fmt.Sprintf(
			"%s: only %d events from %d unique visitors (%d VPN, %d bot detections).",
			limitedDataSentinel,
			summary.TotalEvents, summary.UniqueVisitors,
			summary.VPNCount, summary.BotCount,
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dataset: %d identification events\n", summary.TotalEvents)
	fmt.Fprintf(&b, "Unique visitors: %d, unique IPs: %d, unique countries: %d\n",
		summary.UniqueVisitors, summary.UniqueIPs, summary.UniqueCountries)
	fmt.Fprintf(&b, "Security: %d VPN detections (%s), %d bot detections (%s), %d clean (%s)\n",
		summary.VPNCount, percent(summary.VPNCount, summary.TotalEvents),
		summary.BotCount, percent(summary.BotCount, summary.TotalEvents),
		summary.CleanCount, percent(summary.CleanCount, summary.TotalEvents))
	fmt.Fprintf(&b, "Confidence: average %.2f, %d high (>=%.1f), %d low (<%.1f)\n",
		summary.AvgConfidence, summary.HighConfidenceCount, highConfidenceFloor,
		summary.LowConfidenceCount, lowConfidenceCeil)

	writeTopList(&b, "Top countries", summary.TopCountries)
	writeTopList(&b, "Top browsers", summary.TopBrowsers)
	writeTopList(&b, "Top visitors", summary.TopVisitors)

	return strings.TrimRight(b.String(), "\n")
}

func writeTopList(b *strings.Builder, title string, list []models.LabelCount) {
	if len(list) == 0 {
		return
	}
	parts := make([]string, 0, len(list))
	for _, lc := range list {
		parts = append(parts, fmt.Sprintf("%s (%d)", lc.Label, lc.Count))
	}
	fmt.Fprintf(b, "%s: %s\n", title, strings.Join(parts, ", "))
}

func percent(part, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}
