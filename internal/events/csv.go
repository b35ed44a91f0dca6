package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"visitor-insights/internal/models"
)

var csvHeader = []string{
	"visitor_id", "ip_address", "request_id", "timestamp",
	"browser_name", "operating_system", "country", "city",
	"confidence_score", "vpn_detected", "bot_detected", "linked_id", "url",
}

// WriteCSV streams the event set as CSV for the dashboard's export button.
func WriteCSV(w io.Writer, events []models.IdentificationEvent) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range events {
		record := []string{
			e.VisitorID,
			e.IPAddress,
			e.RequestID,
			e.Timestamp.Format(time.RFC3339),
			e.BrowserName,
			e.OperatingSystem,
			e.Country,
			e.City,
			strconv.FormatFloat(e.ConfidenceScore, 'f', 2, 64),
			strconv.FormatBool(e.VPNDetected),
			strconv.FormatBool(e.BotDetected),
			e.LinkedID,
			e.URL,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
