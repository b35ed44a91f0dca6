package events

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visitor-insights/internal/config"
	"visitor-insights/internal/models"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Fingerprint: config.FingerprintConfig{
			BaseURL:   baseURL,
			APIKey:    "secret-key",
			PageLimit: 100,
			MaxPages:  10,
			CacheTTL:  time.Minute,
		},
	}
}

func upstreamEvent(visitorID, requestID string) string {
	return fmt.Sprintf(`{
		"products": {
			"identification": {
				"data": {
					"visitorId": %q,
					"requestId": %q,
					"ip": "203.0.113.7",
					"time": "2026-01-15T10:30:00Z",
					"linkedId": "account-1",
					"url": "https://shop.example.com/checkout",
					"confidence": {"score": 0.97},
					"browserDetails": {"browserName": "Chrome", "os": "Windows", "userAgent": "Mozilla/5.0"}
				}
			},
			"botd": {"data": {"bot": {"result": "notDetected"}}},
			"vpn": {"data": {"result": true}},
			"ipInfo": {"data": {"v4": {"geolocation": {"country": {"name": "Germany"}, "city": {"name": "Berlin"}}}}}
		}
	}`, visitorID, requestID)
}

func TestFetchSinglePage(t *testing.T) {
	var gotAuth, gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events/search", r.URL.Path)
		gotAuth = r.Header.Get("Auth-API-Key")
		gotLimit = r.URL.Query().Get("limit")

		fmt.Fprintf(w, `{"events": [%s], "paginationKey": ""}`, upstreamEvent("v-1", "req-1"))
	}))
	defer server.Close()

	source := NewSource(testConfig(server.URL), nil, nil, zap.NewNop())

	events, err := source.Fetch(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "secret-key", gotAuth)
	assert.Equal(t, "50", gotLimit)

	e := events[0]
	assert.Equal(t, "v-1", e.VisitorID)
	assert.Equal(t, "203.0.113.7", e.IPAddress)
	assert.Equal(t, "Germany", e.Country)
	assert.Equal(t, "Berlin", e.City)
	assert.Equal(t, "Chrome", e.BrowserName)
	assert.True(t, e.VPNDetected)
	assert.False(t, e.BotDetected)
	assert.InDelta(t, 0.97, e.ConfidenceScore, 0.0001)
}

func TestFetchWalksPagination(t *testing.T) {
	page := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		switch r.URL.Query().Get("pagination_key") {
		case "":
			fmt.Fprintf(w, `{"events": [%s], "paginationKey": "next-1"}`, upstreamEvent("v-1", "req-1"))
		case "next-1":
			fmt.Fprintf(w, `{"events": [%s], "paginationKey": ""}`, upstreamEvent("v-2", "req-2"))
		default:
			t.Errorf("unexpected pagination key %q", r.URL.Query().Get("pagination_key"))
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Fingerprint.PageLimit = 1

	source := NewSource(cfg, nil, nil, zap.NewNop())

	events, err := source.Fetch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 2, page)
	assert.Equal(t, "v-1", events[0].VisitorID)
	assert.Equal(t, "v-2", events[1].VisitorID)
}

func TestFetchRespectsPageCap(t *testing.T) {
	pages := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Upstream always reports another page.
		fmt.Fprintf(w, `{"events": [%s], "paginationKey": "again"}`, upstreamEvent("v", fmt.Sprintf("req-%d", pages)))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Fingerprint.PageLimit = 1
	cfg.Fingerprint.MaxPages = 3

	source := NewSource(cfg, nil, nil, zap.NewNop())

	events, err := source.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, 3, pages)
}

func TestFetchAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	source := NewSource(testConfig(server.URL), nil, nil, zap.NewNop())

	_, err := source.Fetch(context.Background(), 10)
	assert.ErrorIs(t, err, ErrUpstreamAuth)
}

func TestFetchUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewSource(testConfig(server.URL), nil, nil, zap.NewNop())

	_, err := source.Fetch(context.Background(), 10)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestFetchNormalizesOutOfRangeLimit(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{"events": [], "paginationKey": ""}`)
	}))
	defer server.Close()

	source := NewSource(testConfig(server.URL), nil, nil, zap.NewNop())

	_, err := source.Fetch(context.Background(), -5)
	require.NoError(t, err)
	assert.Equal(t, "100", gotLimit)
}

func TestFlattenFillsUnknowns(t *testing.T) {
	event := flatten(eventEnvelope{})
	assert.Equal(t, models.UnknownValue, event.BrowserName)
	assert.Equal(t, models.UnknownValue, event.Country)
	assert.Equal(t, models.UnknownValue, event.OperatingSystem)
}

func TestIsBot(t *testing.T) {
	assert.True(t, isBot("bad"))
	assert.True(t, isBot("good"))
	assert.False(t, isBot("notDetected"))
	assert.False(t, isBot(""))
}
