package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visitor-insights/internal/config"
	"visitor-insights/internal/events"
	"visitor-insights/internal/models"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *events.Source) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Fingerprint: config.FingerprintConfig{
			BaseURL:   server.URL,
			APIKey:    "secret-key",
			PageLimit: 100,
			MaxPages:  10,
		},
	}
	return server, events.NewSource(cfg, nil, nil, zap.NewNop())
}

func upstreamPayload(count int) string {
	out := `{"events": [`
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{
			"products": {
				"identification": {
					"data": {
						"visitorId": "v-%d",
						"requestId": "req-%d",
						"ip": "203.0.113.7",
						"time": "2026-01-15T10:30:00Z",
						"confidence": {"score": 0.95},
						"browserDetails": {"browserName": "Chrome", "os": "Windows", "userAgent": "UA"}
					}
				},
				"botd": {"data": {"bot": {"result": "notDetected"}}},
				"vpn": {"data": {"result": false}},
				"ipInfo": {"data": {"v4": {"geolocation": {"country": {"name": "Germany"}, "city": {"name": "Berlin"}}}}}
			}
		}`, i, i)
	}
	return out + `], "paginationKey": ""}`
}

func TestEventListEndpoint(t *testing.T) {
	_, source := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, upstreamPayload(3))
	})
	h := NewEventHandler(source, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/events?limit=50", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var fetched []models.IdentificationEvent
	require.NoError(t, json.Unmarshal(data, &fetched))
	require.Len(t, fetched, 3)
	assert.Equal(t, "v-0", fetched[0].VisitorID)
	assert.Equal(t, "Germany", fetched[0].Country)
}

func TestEventListUpstreamDown(t *testing.T) {
	_, source := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := NewEventHandler(source, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestEventListBadCredentials(t *testing.T) {
	_, source := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := NewEventHandler(source, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEventSummaryEndpoint(t *testing.T) {
	_, source := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, upstreamPayload(4))
	})
	h := NewEventHandler(source, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/events/summary", nil)
	rec := httptest.NewRecorder()
	h.Summary(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var summary models.DataSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 4, summary.TotalEvents)
	assert.Equal(t, 4, summary.UniqueVisitors)
	assert.Equal(t, 1, summary.UniqueCountries)
}

func TestEventExportEndpoint(t *testing.T) {
	_, source := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, upstreamPayload(2))
	})
	h := NewEventHandler(source, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/events/export", nil)
	rec := httptest.NewRecorder()
	h.Export(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "identification-events.csv")
	assert.Contains(t, rec.Body.String(), "visitor_id,ip_address")
	assert.Contains(t, rec.Body.String(), "v-0")
	assert.Contains(t, rec.Body.String(), "v-1")
}

func TestEventVolumeWithoutArchive(t *testing.T) {
	_, source := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, upstreamPayload(0))
	})
	h := NewEventHandler(source, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/events/volume", nil)
	rec := httptest.NewRecorder()
	h.Volume(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)
	assert.Equal(t, 25, queryInt(req, "limit", 0))

	req = httptest.NewRequest(http.MethodGet, "/?limit=junk", nil)
	assert.Equal(t, 7, queryInt(req, "limit", 7))

	req = httptest.NewRequest(http.MethodGet, "/?limit=-3", nil)
	assert.Equal(t, 7, queryInt(req, "limit", 7))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, 7, queryInt(req, "limit", 7))
}
