package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Provider identifies which AI backend the service talks to.
const (
	ProviderLocal        = "local"
	ProviderCloud        = "cloud"
	ProviderUnconfigured = "unconfigured"
)

type Config struct {
	Environment string

	Server      ServerConfig
	Logging     LoggingConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Clickhouse  ClickhouseConfig
	Fingerprint FingerprintConfig
	AI          AIConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	CORSOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	// Enabled is derived: empty URL disables the event-page cache.
	Enabled bool
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	Enabled    bool
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
	Enabled  bool
}

// FingerprintConfig points at the upstream identification-event API.
type FingerprintConfig struct {
	BaseURL   string
	APIKey    string
	PageLimit int
	MaxPages  int
	CacheTTL  time.Duration
}

// AIConfig selects and configures the answer-generation backend.
type AIConfig struct {
	Provider string // local | cloud | unconfigured

	OllamaURL   string
	OllamaModel string

	OpenAIURL    string
	OpenAIKey    string
	OpenAIModel  string
	MaxTokens    int
	Temperature  float64
	LocalTimeout time.Duration
	CloudTimeout time.Duration
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig reads configuration from the environment (.env is best-effort)
// exactly once per process.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "./certs"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", ""),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
			},
			Kafka: KafkaConfig{
				Brokers:    getEnvList("KAFKA_BROKERS", nil),
				AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "analysis-audit"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", ""),
				Username: getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "visitor_insights"),
			},
			Fingerprint: FingerprintConfig{
				BaseURL:   getEnv("FINGERPRINT_API_URL", "https://api.fpjs.io"),
				APIKey:    getEnv("FINGERPRINT_API_KEY", ""),
				PageLimit: getEnvInt("FINGERPRINT_PAGE_LIMIT", 100),
				MaxPages:  getEnvInt("FINGERPRINT_MAX_PAGES", 10),
				CacheTTL:  getEnvDuration("FINGERPRINT_CACHE_TTL", 60*time.Second),
			},
			AI: AIConfig{
				Provider:     getEnv("AI_PROVIDER", ""),
				OllamaURL:    getEnv("OLLAMA_URL", "http://localhost:11434"),
				OllamaModel:  getEnv("OLLAMA_MODEL", "llama3.1"),
				OpenAIURL:    getEnv("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"),
				OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
				OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				MaxTokens:    getEnvInt("AI_MAX_TOKENS", 1024),
				Temperature:  getEnvFloat("AI_TEMPERATURE", 0.3),
				LocalTimeout: getEnvDuration("AI_LOCAL_TIMEOUT", 30*time.Second),
				CloudTimeout: getEnvDuration("AI_CLOUD_TIMEOUT", 20*time.Second),
			},
		}

		globalConfig.Redis.Enabled = globalConfig.Redis.URL != ""
		globalConfig.Kafka.Enabled = len(globalConfig.Kafka.Brokers) > 0
		globalConfig.Clickhouse.Enabled = globalConfig.Clickhouse.URL != ""
		globalConfig.AI.Provider = resolveProvider(globalConfig.AI)
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

// resolveProvider normalizes the AI_PROVIDER selection. An explicit selection
// wins; otherwise cloud credentials imply cloud, an explicit Ollama URL
// implies local, and nothing configured means fallback-only mode.
func resolveProvider(ai AIConfig) string {
	switch strings.ToLower(ai.Provider) {
	case ProviderLocal, "ollama":
		return ProviderLocal
	case ProviderCloud, "openai":
		return ProviderCloud
	}
	if ai.OpenAIKey != "" {
		return ProviderCloud
	}
	if os.Getenv("OLLAMA_URL") != "" {
		return ProviderLocal
	}
	return ProviderUnconfigured
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Fingerprint.APIKey == "" {
		return fmt.Errorf("FINGERPRINT_API_KEY is required")
	}
	if c.AI.Provider == ProviderCloud && c.AI.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=cloud")
	}
	if c.Server.Port == 0 {
		return fmt.Errorf("SERVER_PORT must be non-zero")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
