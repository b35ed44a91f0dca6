package models

import "time"

// UnknownValue is the sentinel for categorical fields the upstream source
// did not report. Grouping on a stable sentinel keeps top-N breakdowns from
// splitting across "" and missing variants.
const UnknownValue = "Unknown"

// IdentificationEvent is one visitor-fingerprinting signal as the analysis
// layer consumes it: the nested upstream payload is flattened to this shape
// before it reaches any other package.
type IdentificationEvent struct {
	VisitorID       string    `json:"visitor_id"`
	IPAddress       string    `json:"ip_address"`
	RequestID       string    `json:"request_id"`
	Timestamp       time.Time `json:"timestamp"`
	BrowserName     string    `json:"browser_name"`
	OperatingSystem string    `json:"operating_system"`
	Country         string    `json:"country"`
	City            string    `json:"city"`
	ConfidenceScore float64   `json:"confidence_score"`
	VPNDetected     bool      `json:"vpn_detected"`
	BotDetected     bool      `json:"bot_detected"`
	LinkedID        string    `json:"linked_id,omitempty"`
	URL             string    `json:"url,omitempty"`
	UserAgent       string    `json:"user_agent"`
}

// Normalize applies the field invariants: categorical unknowns collapse to
// the sentinel and a missing confidence score reads as 0.
func (e *IdentificationEvent) Normalize() {
	if e.BrowserName == "" {
		e.BrowserName = UnknownValue
	}
	if e.OperatingSystem == "" {
		e.OperatingSystem = UnknownValue
	}
	if e.Country == "" {
		e.Country = UnknownValue
	}
	if e.City == "" {
		e.City = UnknownValue
	}
	if e.ConfidenceScore < 0 {
		e.ConfidenceScore = 0
	}
}
