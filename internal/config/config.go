package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Chain     ChainConfig     `yaml:"chain"`
	Engine    EngineConfig    `yaml:"engine"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type AlertingConfig struct {
	AppName string `yaml:"app_name"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type JWTConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Alg           string        `yaml:"alg"` // RS256
	PublicKeyPath string        `yaml:"public_key_path"`
	Audience      string        `yaml:"audience"`
	Issuer        string        `yaml:"issuer"`
	Leeway        time.Duration `yaml:"leeway"`

	// dev-only token minting, never set in prod
	PrivateKeyPath string `yaml:"private_key_path"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// One token bucket: RefillPerSec tokens are added every second up to Burst,
// the key lives TTL past its last use.
type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	ByJWT              RateBucket `yaml:"by_jwt"`
	ByIP               RateBucket `yaml:"by_ip"`
	TrustedProxiesList []string   `yaml:"trusted_proxies"`
}

// RetryConfig shapes the chain client backoff: delay starts at BaseDelay and
// doubles up to MaxDelay, MaxAttempts bounds the whole loop.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type ChainConfig struct {
	NodeURL        string        `yaml:"node_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

type EngineConfig struct {
	BlockWindow uint64        `yaml:"block_window"` // swap lookup spans [n-w/2, n+w/2]
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // 0 = keep metadata forever
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ServerAddr string `yaml:"server_addr"`
	AuthToken  string `yaml:"auth_token"`
}

type MetricsConfig struct {
	Prometheus string          `yaml:"prometheus"` // listen addr of the metrics endpoint, "" disables
	Pyroscope  PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional, already-set env wins

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// ${VAR} placeholders let secrets stay out of the yaml
	var cfg Config
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Chain.Retry.MaxAttempts <= 0 {
		c.Chain.Retry.MaxAttempts = 8
	}
	if c.Chain.Retry.BaseDelay <= 0 {
		c.Chain.Retry.BaseDelay = time.Second
	}
	if c.Chain.Retry.MaxDelay <= 0 {
		c.Chain.Retry.MaxDelay = 8 * time.Second
	}
	if c.Chain.RequestTimeout <= 0 {
		c.Chain.RequestTimeout = 30 * time.Second
	}
	if c.Engine.BlockWindow == 0 {
		c.Engine.BlockWindow = 200
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}
	if c.API.HTTP.Addr == "" {
		c.API.HTTP.Addr = ":8080"
	}
	if c.PubSub.NATS.BroadcastPrefix == "" {
		c.PubSub.NATS.BroadcastPrefix = "rates"
	}
}
