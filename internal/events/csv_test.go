package events

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitor-insights/internal/models"
)

func TestWriteCSV(t *testing.T) {
	events := []models.IdentificationEvent{
		{
			VisitorID:       "v-1",
			IPAddress:       "203.0.113.7",
			RequestID:       "req-1",
			Timestamp:       time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
			BrowserName:     "Chrome",
			OperatingSystem: "Windows",
			Country:         "Germany",
			City:            "Berlin",
			ConfidenceScore: 0.97,
			VPNDetected:     true,
			LinkedID:        "account-1",
			URL:             "https://shop.example.com/checkout",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, events))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, csvHeader, records[0])

	row := records[1]
	assert.Equal(t, "v-1", row[0])
	assert.Equal(t, "2026-01-15T10:30:00Z", row[3])
	assert.Equal(t, "0.97", row[8])
	assert.Equal(t, "true", row[9])
	assert.Equal(t, "false", row[10])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, csvHeader, records[0])
}
