package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"visitor-insights/internal/analysis"
	"visitor-insights/internal/client"
	"visitor-insights/internal/config"
	"visitor-insights/internal/events"
	"visitor-insights/internal/provider"
	"visitor-insights/internal/tls"
	"visitor-insights/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients (all optional; the service degrades without them)
	redisClient   *client.RedisClient
	auditProducer *client.AuditProducer
	eventArchive  *client.EventArchive

	eventSource *events.Source

	// The gateway is resolved once per process on first use.
	gateway     provider.Gateway
	gatewayOnce sync.Once

	orchestrator *analysis.Orchestrator
	followups    *analysis.FollowupGenerator

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	factory.initializeClients()
	factory.eventSource = events.NewSource(cfg, factory.redisClient, factory.eventArchive, util.Get())

	util.Info("Factory initialized",
		util.String("environment", cfg.Environment),
		util.String("ai_provider", cfg.AI.Provider),
		util.Bool("cache_enabled", factory.redisClient != nil),
		util.Bool("audit_enabled", factory.auditProducer != nil),
		util.Bool("archive_enabled", factory.eventArchive != nil),
	)

	return factory, nil
}

// initializeClients brings up the optional infrastructure clients. All of
// them are best-effort: a missing cache, audit topic, or archive changes
// operating mode, not correctness.
func (f *Factory) initializeClients() {
	if f.config.Redis.Enabled {
		if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			util.Warn("Redis initialization failed - proceeding without event cache", util.ErrorField(err))
		} else {
			f.redisClient = redisClient
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewAuditProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka initialization failed - proceeding without audit trail", util.ErrorField(err))
		} else {
			f.auditProducer = producer
		}
	}

	if f.config.Clickhouse.Enabled {
		if archive, err := client.NewEventArchive(f.config, util.Get()); err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without event archive", util.ErrorField(err))
		} else {
			f.eventArchive = archive
		}
	}
}

// Gateway returns the configured AI backend, resolving it exactly once.
func (f *Factory) Gateway() provider.Gateway {
	f.gatewayOnce.Do(func() {
		f.gateway = provider.New(f.config, util.Get())
		util.Info("AI gateway resolved",
			util.String("provider", f.gateway.Name()),
			util.String("model", f.gateway.Model()),
			util.Bool("available", f.gateway.Available()),
		)
	})
	return f.gateway
}

func (f *Factory) Orchestrator() *analysis.Orchestrator {
	if f.orchestrator == nil {
		f.orchestrator = analysis.NewOrchestrator(f.Gateway(), f.auditProducer, util.Get())
	}
	return f.orchestrator
}

func (f *Factory) FollowupGenerator() *analysis.FollowupGenerator {
	if f.followups == nil {
		f.followups = analysis.NewFollowupGenerator(f.Gateway(), util.Get())
	}
	return f.followups
}

func (f *Factory) EventSource() *events.Source {
	return f.eventSource
}

func (f *Factory) EventArchive() *client.EventArchive {
	return f.eventArchive
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

// HealthCheck reports per-dependency health. Only wired dependencies are
// checked; absent optional ones are not failures.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	healthErrors := map[string]error{}

	if f.redisClient != nil {
		healthErrors["redis"] = f.redisClient.HealthCheck(ctx)
	}
	if f.auditProducer != nil {
		healthErrors["kafka"] = f.auditProducer.HealthCheck(ctx)
	}
	if f.eventArchive != nil {
		healthErrors["clickhouse"] = f.eventArchive.HealthCheck(ctx)
	}

	// Fallback-only mode is a normal operating state, not a health failure,
	// so the gateway is deliberately absent here.

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.eventArchive != nil {
			if err := f.eventArchive.Close(); err != nil {
				util.Error("Failed to close ClickHouse archive", util.ErrorField(err))
			}
		}

		if f.auditProducer != nil {
			if err := f.auditProducer.Close(); err != nil {
				util.Error("Failed to close Kafka audit producer", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}
