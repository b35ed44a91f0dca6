package models

import "time"

// Provider names as reported in AnalysisResult.
const (
	AnswerProviderLocal    = "local"
	AnswerProviderCloud    = "cloud"
	AnswerProviderFallback = "fallback"
)

// Chart kinds the dashboard can render.
const (
	ChartKindBar  = "bar"
	ChartKindLine = "line"
	ChartKindPie  = "pie"
)

// ChartPoint is one labeled value in a chart.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartSpec is a bounded labeled-value dataset plus a declared rendering
// kind, decoupled from any charting library. An empty Points list means "no
// chart" and is never sent downstream as an object.
type ChartSpec struct {
	Kind   string       `json:"kind"`
	Title  string       `json:"title"`
	Points []ChartPoint `json:"points"`
}

// LabelCount is one entry of a top-N breakdown, ordered descending by count
// with ties broken by first-seen order.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DataSummary is the ephemeral statistical digest of an event collection.
// It is a pure function of its input and is recomputed on every call.
type DataSummary struct {
	TotalEvents     int `json:"total_events"`
	UniqueVisitors  int `json:"unique_visitors"`
	UniqueIPs       int `json:"unique_ips"`
	UniqueCountries int `json:"unique_countries"`

	VPNCount   int `json:"vpn_count"`
	BotCount   int `json:"bot_count"`
	CleanCount int `json:"clean_count"`

	AvgConfidence       float64 `json:"avg_confidence"`
	HighConfidenceCount int     `json:"high_confidence_count"`
	LowConfidenceCount  int     `json:"low_confidence_count"`

	TopCountries []LabelCount `json:"top_countries"`
	TopBrowsers  []LabelCount `json:"top_browsers"`
	TopVisitors  []LabelCount `json:"top_visitors"`
}

// AnalysisResult is the output contract of the analysis orchestrator.
// AnswerText is non-empty even when Success is false: the rule-based
// fallback always produces text.
type AnalysisResult struct {
	Success      bool       `json:"success"`
	AnswerText   string     `json:"answer"`
	Chart        *ChartSpec `json:"chart,omitempty"`
	ProviderUsed string     `json:"provider"`
	ErrorDetail  string     `json:"error,omitempty"`
}

// ChatMessage is the UI-facing conversation record.
type ChatMessage struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"` // user | assistant
	Content   string     `json:"content"`
	Chart     *ChartSpec `json:"chart,omitempty"`
	Followups []string   `json:"followups,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// AuditRecord is the per-analysis event published to the audit topic when
// Kafka is configured.
type AuditRecord struct {
	ID         string        `json:"id"`
	Question   string        `json:"question"`
	Category   string        `json:"category"`
	Provider   string        `json:"provider"`
	Success    bool          `json:"success"`
	EventCount int           `json:"event_count"`
	Duration   time.Duration `json:"duration_ms"`
	Timestamp  time.Time     `json:"timestamp"`
}
