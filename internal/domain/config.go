package domain

import "time"

// Config holds the complete Deal Brain service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing services
	Tier Tier `json:"tier"`

	// Engine settings for the valuation evaluator
	Engine EngineConfig `json:"engine"`

	// RulesetPath is a JSON file of rulesets loaded read-only at startup.
	// Rule authoring and versioning live in an external layer.
	RulesetPath string `json:"rulesetPath"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// EngineConfig holds valuation engine defaults. Rulesets may override the
// multiplier policy and price floor per strategy.
type EngineConfig struct {
	// PriceFloor is the non-negative minimum an adjusted price is clamped to.
	PriceFloor float64 `json:"priceFloor"`

	// MultiplierPolicy is the default condition-multiplier policy.
	MultiplierPolicy MultiplierPolicy `json:"multiplierPolicy"`

	// MaxWorkers bounds concurrent listing evaluations in batch runs.
	MaxWorkers int `json:"maxWorkers"`

	// RepriceThresholdPct: when the adjusted price moves from the listing
	// price by more than this percentage, the worker publishes a reprice
	// event.
	RepriceThresholdPct float64 `json:"repriceThresholdPct"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			PriceFloor:          0,
			MultiplierPolicy:    MultiplierFirstMatch,
			MaxWorkers:          16,
			RepriceThresholdPct: 10,
		},
		RulesetPath: "./rulesets.json",
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./dealbrain.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "dealbrain",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "dealbrain",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
