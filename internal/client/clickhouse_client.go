package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"visitor-insights/internal/config"
	"visitor-insights/internal/models"
	"visitor-insights/internal/util"
)

// EventArchive appends fetched identification events to ClickHouse and
// serves the daily-volume aggregate. Optional: the dashboard works without
// it, the volume endpoint just returns an empty series.
type EventArchive struct {
	conn   driver.Conn
	config *config.ClickhouseConfig
}

// DailyVolume is one row of the event-volume aggregate.
type DailyVolume struct {
	Day   time.Time `json:"day"`
	Count uint64    `json:"count"`
}

// NewEventArchive creates a ClickHouse-backed event archive with TLS support.
func NewEventArchive(cfg *config.Config, logger *zap.Logger) (*EventArchive, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{extractHostPort(chConfig.URL)},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}

	if cfg.IsProduction() || strings.HasPrefix(chConfig.URL, "https://") {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: extractHostname(chConfig.URL),
		}
		if caCertPath := util.GetEnv("CLICKHOUSE_CA_FILE", ""); caCertPath != "" {
			caCert, err := os.ReadFile(caCertPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read ClickHouse CA file: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to append CA cert")
			}
			tlsConfig.RootCAs = caCertPool
		}
		opts.TLS = tlsConfig
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	archive := &EventArchive{
		conn:   conn,
		config: &chConfig,
	}

	if err := archive.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure archive schema: %w", err)
	}

	util.Info("ClickHouse event archive initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database))

	return archive, nil
}

func (a *EventArchive) ensureSchema(ctx context.Context) error {
	return a.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS identification_events (
			request_id       String,
			visitor_id       String,
			ip_address       String,
			event_time       DateTime,
			browser_name     LowCardinality(String),
			operating_system LowCardinality(String),
			country          LowCardinality(String),
			city             String,
			confidence_score Float64,
			vpn_detected     UInt8,
			bot_detected     UInt8,
			linked_id        String
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(event_time)
		ORDER BY (event_time, request_id)
	`)
}

// Archive appends a batch of events. Duplicate request IDs collapse via the
// ReplacingMergeTree, so re-archiving a cached page is harmless.
func (a *EventArchive) Archive(ctx context.Context, events []models.IdentificationEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, "INSERT INTO identification_events")
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.VisitorID,
			e.IPAddress,
			e.Timestamp,
			e.BrowserName,
			e.OperatingSystem,
			e.Country,
			e.City,
			e.ConfidenceScore,
			boolToUInt8(e.VPNDetected),
			boolToUInt8(e.BotDetected),
			e.LinkedID,
		); err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.RequestID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}

	util.Debug("Archived event batch", zap.Int("count", len(events)))
	return nil
}

// DailyVolumes returns event counts per day over the trailing window.
func (a *EventArchive) DailyVolumes(ctx context.Context, days int) ([]DailyVolume, error) {
	if days <= 0 {
		days = 30
	}

	rows, err := a.conn.Query(ctx, `
		SELECT toStartOfDay(event_time) AS day, count() AS events
		FROM identification_events
		WHERE event_time >= now() - INTERVAL ? DAY
		GROUP BY day
		ORDER BY day
	`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily volumes: %w", err)
	}
	defer rows.Close()

	var volumes []DailyVolume
	for rows.Next() {
		var v DailyVolume
		if err := rows.Scan(&v.Day, &v.Count); err != nil {
			return nil, fmt.Errorf("failed to scan volume row: %w", err)
		}
		volumes = append(volumes, v)
	}

	return volumes, rows.Err()
}

func (a *EventArchive) HealthCheck(ctx context.Context) error {
	if err := a.conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse ping failed: %w", err)
	}
	return nil
}

func (a *EventArchive) Close() error {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			util.Error("failed to close ClickHouse connection", zap.Error(err))
			return err
		}
		util.Info("ClickHouse event archive closed")
	}
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func extractHostPort(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if u.Port() == "" {
		return u.Hostname() + ":9000"
	}
	return u.Host
}

func extractHostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
