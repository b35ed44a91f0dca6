package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"visitor-insights/internal/client"
	"visitor-insights/internal/config"
	"visitor-insights/internal/models"
	"visitor-insights/internal/util"
)

var (
	ErrUpstreamUnavailable = errors.New("identification API unavailable")
	ErrUpstreamAuth        = errors.New("identification API rejected credentials")
)

// Source fetches identification events from the upstream fraud-detection API
// and flattens them to the shape the analysis layer consumes. Pages are
// cached in Redis when a cache is wired, and concurrent identical fetches
// are collapsed through singleflight.
type Source struct {
	cfg        *config.FingerprintConfig
	httpClient *http.Client
	cache      *client.RedisClient
	archive    *client.EventArchive
	group      singleflight.Group
	logger     *zap.Logger
}

func NewSource(cfg *config.Config, cache *client.RedisClient, archive *client.EventArchive, logger *zap.Logger) *Source {
	return &Source{
		cfg: &cfg.Fingerprint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache:   cache,
		archive: archive,
		logger:  logger,
	}
}

// searchResponse mirrors the upstream events-search payload. Only the fields
// the analysis layer reads are decoded; the rest of the (deeply nested)
// product envelope is ignored.
type searchResponse struct {
	Events        []eventEnvelope `json:"events"`
	PaginationKey string          `json:"paginationKey"`
}

type eventEnvelope struct {
	Products struct {
		Identification struct {
			Data struct {
				VisitorID  string    `json:"visitorId"`
				RequestID  string    `json:"requestId"`
				IP         string    `json:"ip"`
				Time       time.Time `json:"time"`
				LinkedID   string    `json:"linkedId"`
				URL        string    `json:"url"`
				Confidence struct {
					Score float64 `json:"score"`
				} `json:"confidence"`
				BrowserDetails struct {
					BrowserName string `json:"browserName"`
					OS          string `json:"os"`
					UserAgent   string `json:"userAgent"`
				} `json:"browserDetails"`
			} `json:"data"`
		} `json:"identification"`
		Botd struct {
			Data struct {
				Bot struct {
					Result string `json:"result"`
				} `json:"bot"`
			} `json:"data"`
		} `json:"botd"`
		VPN struct {
			Data struct {
				Result bool `json:"result"`
			} `json:"data"`
		} `json:"vpn"`
		IPInfo struct {
			Data struct {
				V4 struct {
					Geolocation struct {
						Country struct {
							Name string `json:"name"`
						} `json:"country"`
						City struct {
							Name string `json:"name"`
						} `json:"city"`
					} `json:"geolocation"`
				} `json:"v4"`
			} `json:"data"`
		} `json:"ipInfo"`
	} `json:"products"`
}

// Fetch returns up to limit identification events, newest first, walking
// upstream pagination up to the configured page cap. Results come from the
// cache when a fresh page set exists.
func (s *Source) Fetch(ctx context.Context, limit int) ([]models.IdentificationEvent, error) {
	if limit <= 0 || limit > s.cfg.PageLimit*s.cfg.MaxPages {
		limit = s.cfg.PageLimit
	}

	key := fmt.Sprintf("events:limit=%d", limit)

	if cached, ok := s.cacheGet(ctx, key); ok {
		return cached, nil
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have filled the
		// cache while this one queued.
		if cached, ok := s.cacheGet(ctx, key); ok {
			return cached, nil
		}

		fetched, err := s.fetchPages(ctx, limit)
		if err != nil {
			return nil, err
		}

		s.cachePut(ctx, key, fetched)
		s.archiveEvents(fetched)
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]models.IdentificationEvent), nil
}

func (s *Source) fetchPages(ctx context.Context, limit int) ([]models.IdentificationEvent, error) {
	var (
		events        []models.IdentificationEvent
		paginationKey string
	)

	for page := 0; page < s.cfg.MaxPages && len(events) < limit; page++ {
		resp, err := s.fetchPage(ctx, limit-len(events), paginationKey)
		if err != nil {
			return nil, err
		}

		for _, envelope := range resp.Events {
			events = append(events, flatten(envelope))
		}

		if resp.PaginationKey == "" || len(resp.Events) == 0 {
			break
		}
		paginationKey = resp.PaginationKey
	}

	if len(events) > limit {
		events = events[:limit]
	}

	s.logger.Info("Fetched identification events",
		util.Int("count", len(events)),
		util.Int("limit", limit),
	)

	return events, nil
}

func (s *Source) fetchPage(ctx context.Context, limit int, paginationKey string) (*searchResponse, error) {
	if limit > s.cfg.PageLimit {
		limit = s.cfg.PageLimit
	}

	endpoint, err := url.Parse(s.cfg.BaseURL + "/events/search")
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	if paginationKey != "" {
		q.Set("pagination_key", paginationKey)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Auth-API-Key", s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUpstreamAuth
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var page searchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}

	return &page, nil
}

// flatten reduces the nested product envelope to the flat event shape.
func flatten(envelope eventEnvelope) models.IdentificationEvent {
	ident := envelope.Products.Identification.Data
	geo := envelope.Products.IPInfo.Data.V4.Geolocation

	event := models.IdentificationEvent{
		VisitorID:       ident.VisitorID,
		IPAddress:       ident.IP,
		RequestID:       ident.RequestID,
		Timestamp:       ident.Time,
		BrowserName:     ident.BrowserDetails.BrowserName,
		OperatingSystem: ident.BrowserDetails.OS,
		Country:         geo.Country.Name,
		City:            geo.City.Name,
		ConfidenceScore: ident.Confidence.Score,
		VPNDetected:     envelope.Products.VPN.Data.Result,
		BotDetected:     isBot(envelope.Products.Botd.Data.Bot.Result),
		LinkedID:        ident.LinkedID,
		URL:             ident.URL,
		UserAgent:       ident.BrowserDetails.UserAgent,
	}
	event.Normalize()
	return event
}

func isBot(result string) bool {
	return result == "bad" || result == "good"
}

func (s *Source) cacheGet(ctx context.Context, key string) ([]models.IdentificationEvent, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, client.ErrCacheMiss) {
			s.logger.Warn("Event cache read failed", util.ErrorField(err))
		}
		return nil, false
	}

	var events []models.IdentificationEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		s.logger.Warn("Event cache entry corrupt, dropping", util.String("key", key))
		_ = s.cache.Del(ctx, key)
		return nil, false
	}

	return events, true
}

func (s *Source) cachePut(ctx context.Context, key string, events []models.IdentificationEvent) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("Event cache write failed", util.ErrorField(err))
	}
}

// archiveEvents appends the batch to ClickHouse on a detached context so a
// slow archive never delays the dashboard response.
func (s *Source) archiveEvents(events []models.IdentificationEvent) {
	if s.archive == nil || len(events) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archive.Archive(ctx, events); err != nil {
			s.logger.Warn("Event archive write failed", util.ErrorField(err))
		}
	}()
}
