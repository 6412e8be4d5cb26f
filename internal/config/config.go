// Package config loads the process configuration from BLOCKSCOPE_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/validator"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. BLOCKSCOPE_NETWORK.
const Prefix = "BLOCKSCOPE"

// infuraNetworks are served by the managed endpoint when a project id is set.
var infuraNetworks = []string{"mainnet", "sepolia", "holesky"}

const infuraEndpointFormat = "https://%s.infura.io/v3/%s"

// Config holds every setting of the process.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Initial network selection
	Network string `envconfig:"NETWORK" default:"mainnet" validate:"required"`
	RPCURL  string `envconfig:"RPC_URL" validate:"omitempty,rpcurl"`
	ChainID int64  `envconfig:"CHAIN_ID" validate:"gte=0"`

	// Managed endpoints for well-known networks
	InfuraProjectID string            `envconfig:"INFURA_PROJECT_ID"`
	Endpoints       map[string]string `envconfig:"ENDPOINTS" validate:"dive,keys,required,endkeys,rpcurl"`

	// Window and ingestion
	BlockCapacity       int           `envconfig:"BLOCK_CAPACITY" default:"100" validate:"gte=1"`
	TransactionCapacity int           `envconfig:"TRANSACTION_CAPACITY" default:"1000" validate:"gte=1"`
	DisplayLimit        int           `envconfig:"DISPLAY_LIMIT" default:"10" validate:"gte=1"`
	FetchConcurrency    int           `envconfig:"FETCH_CONCURRENCY" default:"16" validate:"gte=1"`
	StatsInterval       time.Duration `envconfig:"STATS_INTERVAL" default:"4s" validate:"gt=0"`
	BlockPollInterval   time.Duration `envconfig:"BLOCK_POLL_INTERVAL" default:"4s" validate:"gt=0"`
	ProbeAttempts       uint          `envconfig:"PROBE_ATTEMPTS" default:"3" validate:"gte=1"`

	// Provider transport
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	HTTPRetryMax int           `envconfig:"HTTP_RETRY_MAX" default:"3" validate:"gte=0"`

	// Snapshot sinks; an empty address disables the sink
	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	RedisUsername     string        `envconfig:"REDIS_USERNAME"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	SnapshotTTL       time.Duration `envconfig:"SNAPSHOT_TTL" default:"1m" validate:"gte=0"`
	NATSURL           string        `envconfig:"NATS_URL"`
	NATSSubjectPrefix string        `envconfig:"NATS_SUBJECT_PREFIX" default:"blockscope.snapshots"`
	MetricsAddr       string        `envconfig:"METRICS_ADDR"`

	// OpenTelemetry
	ServiceName      string `envconfig:"SERVICE_NAME" default:"blockscope" validate:"required"`
	TelemetryMetrics bool   `envconfig:"OTEL_METRICS" default:"false"`
	TelemetryTracing bool   `envconfig:"OTEL_TRACING" default:"false"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// InitialNetwork returns the network selected at startup.
func (c Config) InitialNetwork() chain.Network {
	network := chain.Network{Name: c.Network, RPCURL: c.RPCURL}
	if c.ChainID > 0 {
		chainID := c.ChainID
		network.ChainID = &chainID
	}

	return network
}

// ManagedEndpoints maps well-known network names to endpoints: Infura when a
// project id is configured, overridden by explicit ENDPOINTS entries.
func (c Config) ManagedEndpoints() map[string]string {
	endpoints := make(map[string]string)

	if c.InfuraProjectID != "" {
		for _, name := range infuraNetworks {
			endpoints[name] = fmt.Sprintf(infuraEndpointFormat, name, c.InfuraProjectID)
		}
	}

	for name, endpoint := range c.Endpoints {
		endpoints[strings.ToLower(name)] = endpoint
	}

	return endpoints
}
