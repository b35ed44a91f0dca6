package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"visitor-insights/internal/analysis"
	"visitor-insights/internal/client"
	"visitor-insights/internal/events"
	"visitor-insights/internal/util"
)

// EventHandler proxies the upstream identification-event API for the
// dashboard and serves the derived event endpoints.
type EventHandler struct {
	source  *events.Source
	archive *client.EventArchive
	logger  *zap.Logger
}

func NewEventHandler(source *events.Source, archive *client.EventArchive, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		source:  source,
		archive: archive,
		logger:  logger,
	}
}

// List handles GET /events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	limit := queryInt(r, "limit", 0)
	fetched, err := h.source.Fetch(ctx, limit)
	if err != nil {
		respondWithError(w, upstreamStatusCode(err), err, "Failed to fetch identification events")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(fetched, "Events fetched"))
	h.logger.Debug("Events served",
		util.Int("count", len(fetched)),
		util.Duration("duration", time.Since(startTime)),
	)
}

// Summary handles GET /events/summary: the statistical digest backing the
// dashboard's stat cards. Computed, never AI-generated.
func (h *EventHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := queryInt(r, "limit", 0)
	fetched, err := h.source.Fetch(ctx, limit)
	if err != nil {
		respondWithError(w, upstreamStatusCode(err), err, "Failed to fetch identification events")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(analysis.BuildSummary(fetched), "Summary computed"))
}

// Export handles GET /events/export, streaming the event set as CSV.
func (h *EventHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := queryInt(r, "limit", 0)
	fetched, err := h.source.Fetch(ctx, limit)
	if err != nil {
		respondWithError(w, upstreamStatusCode(err), err, "Failed to fetch identification events")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="identification-events.csv"`)
	if err := events.WriteCSV(w, fetched); err != nil {
		h.logger.Error("CSV export failed mid-stream", util.ErrorField(err))
	}
}

// Volume handles GET /events/volume: daily counts from the archive. With no
// archive configured the series is empty, not an error.
func (h *EventHandler) Volume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.archive == nil {
		respondWithJSON(w, http.StatusOK, successResponse([]client.DailyVolume{}, "Event archive not configured"))
		return
	}

	days := queryInt(r, "days", 30)
	volumes, err := h.archive.DailyVolumes(ctx, days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to query event volumes")
		return
	}
	if volumes == nil {
		volumes = []client.DailyVolume{}
	}

	respondWithJSON(w, http.StatusOK, successResponse(volumes, "Volumes queried"))
}

func upstreamStatusCode(err error) int {
	switch {
	case errors.Is(err, events.ErrUpstreamAuth):
		return http.StatusBadGateway
	case errors.Is(err, events.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
