package analysis

import (
	"encoding/json"
	"strings"

	"visitor-insights/internal/models"
)

const (
	barPointCap = 10
	piePointCap = 8

	// Model-produced charts are bounded tighter than fallback bars.
	modelPointCap = 8
)

// chartEnvelope is the strict JSON shape the model is instructed to emit
// for chart-requiring questions.
type chartEnvelope struct {
	Analysis string `json:"analysis"`
	Chart    *struct {
		Kind   string `json:"kind"`
		Title  string `json:"title"`
		Points []struct {
			Label string  `json:"label"`
			Value float64 `json:"value"`
		} `json:"points"`
	} `json:"chart"`
}

// ParseChartResponse extracts the {analysis, chart} envelope from free-form
// model output. The model may wrap the JSON in prose, so this locates the
// outermost brace pair first. Any parse failure degrades to plain text —
// the prose answer is still likely useful even when the envelope is not.
func ParseChartResponse(raw string) (answer string, chart *models.ChartSpec, ok bool) {
	blob, found := extractJSONObject(raw)
	if !found {
		return "", nil, false
	}

	var envelope chartEnvelope
	if err := json.Unmarshal([]byte(blob), &envelope); err != nil {
		return "", nil, false
	}

	// Both keys must be present; a bare {analysis} or {chart} is treated
	// as unparseable rather than guessed at.
	if envelope.Analysis == "" || envelope.Chart == nil {
		return "", nil, false
	}

	spec := &models.ChartSpec{
		Kind:  normalizeChartKind(envelope.Chart.Kind),
		Title: envelope.Chart.Title,
	}
	for _, p := range envelope.Chart.Points {
		if p.Label == "" {
			continue
		}
		spec.Points = append(spec.Points, models.ChartPoint{Label: p.Label, Value: p.Value})
		if len(spec.Points) == modelPointCap {
			break
		}
	}

	if len(spec.Points) == 0 {
		return envelope.Analysis, nil, true
	}

	return envelope.Analysis, spec, true
}

// extractJSONObject returns the text between the first '{' and the last
// '}'. Best-effort: nested braces inside prose can misfire, and a failed
// parse downstream simply degrades to plain text.
func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func normalizeChartKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case models.ChartKindPie:
		return models.ChartKindPie
	case models.ChartKindLine:
		return models.ChartKindLine
	default:
		return models.ChartKindBar
	}
}

// BuildFallbackChart produces the deterministic category-matched chart. It
// returns nil when no category matches and the question carries no
// visualization keyword, signaling that plain text is sufficient.
func BuildFallbackChart(events []models.IdentificationEvent, question string) *models.ChartSpec {
	if len(events) == 0 {
		return nil
	}

	switch ClassifyTopic(question) {
	case CategoryVisitor:
		return barChart("Most Active Visitors", events, func(e models.IdentificationEvent) string { return e.VisitorID })
	case CategorySecurity:
		return securityPie(events)
	case CategoryGeographic:
		return barChart("Events by Country", events, func(e models.IdentificationEvent) string { return e.Country })
	case CategoryBrowser:
		return barChart("Events by Browser", events, func(e models.IdentificationEvent) string { return e.BrowserName })
	default:
		if !RequiresChart(question) {
			return nil
		}
		return barChart("Most Active Visitors", events, func(e models.IdentificationEvent) string { return e.VisitorID })
	}
}

func barChart(title string, events []models.IdentificationEvent, key func(models.IdentificationEvent) string) *models.ChartSpec {
	top := topCounts(events, barPointCap, key)
	if len(top) == 0 {
		return nil
	}

	spec := &models.ChartSpec{Kind: models.ChartKindBar, Title: title}
	for _, lc := range top {
		spec.Points = append(spec.Points, models.ChartPoint{Label: lc.Label, Value: float64(lc.Count)})
	}
	return spec
}

// securityPie charts the VPN/bot/clean split, omitting zero-count slices so
// the legend never shows empty categories.
func securityPie(events []models.IdentificationEvent) *models.ChartSpec {
	summary := BuildSummary(events)

	spec := &models.ChartSpec{Kind: models.ChartKindPie, Title: "Security Signal Breakdown"}
	for _, slice := range []models.LabelCount{
		{Label: "VPN Detected", Count: summary.VPNCount},
		{Label: "Bot Detected", Count: summary.BotCount},
		{Label: "Clean", Count: summary.CleanCount},
	} {
		if slice.Count == 0 {
			continue
		}
		spec.Points = append(spec.Points, models.ChartPoint{Label: slice.Label, Value: float64(slice.Count)})
		if len(spec.Points) == piePointCap {
			break
		}
	}

	if len(spec.Points) == 0 {
		return nil
	}
	return spec
}
