package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gcfg.v1"
)

// API configures the consumer credentials and where the annotation store is
// mounted. Endpoint may be a path (store embedded in this process) or an
// absolute URL (store reached over the network).
type API struct {
	Key      string
	Secret   string
	TTL      int `gcfg:"ttl"`
	Endpoint string
	URL      string `gcfg:"url"`
}

// Store configures the annotation storage backend. Host is a Postgres DSN;
// when empty annotations are kept in memory. Index names the table.
type Store struct {
	Host          string
	Index         string
	Compatibility string
}

// Auth holds the token and authorization route paths.
type Auth struct {
	Authorize   string
	Token       string
	LegacyToken string `gcfg:"legacy-token"`
	// DefaultOpen grants actions to everyone when an annotation lists no
	// principals for them.
	DefaultOpen bool `gcfg:"default-open"`
	// TokenRate is the per-client token endpoint allowance per second.
	TokenRate  int `gcfg:"token-rate"`
	TokenBurst int `gcfg:"token-burst"`
}

// BaseModel holds the boot-time schema flags.
type BaseModel struct {
	ShouldDropAll   bool `gcfg:"should-drop-all"`
	ShouldCreateAll bool `gcfg:"should-create-all"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string
	LogLevel string `gcfg:"log-level"`
}

// RedisConfig configures the session store. An empty URL keeps sessions in
// process memory.
type RedisConfig struct {
	URL          string `gcfg:"url"`
	PoolSize     int    `gcfg:"pool-size"`
	MinIdleConns int    `gcfg:"min-idle-conns"`
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Database configures the account store. An empty URL keeps accounts in
// process memory.
type Database struct {
	URL string `gcfg:"url"`
}

// Kafka configures the lifecycle event sink. No brokers disables it.
type Kafka struct {
	Brokers []string `gcfg:"broker"`
	Topic   string
}

// Config is the complete process configuration, read once at startup and
// read-only afterwards.
type Config struct {
	Server    Server
	API       API
	Store     Store
	Auth      Auth
	BaseModel BaseModel
	Redis     RedisConfig
	Database  Database
	Kafka     Kafka
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: Server{Addr: ":8080", LogLevel: "info"},
		API: API{
			Key:      "00000000-0000-0000-0000-000000000000",
			Secret:   "dev-secret-key-change-in-production",
			TTL:      86400,
			Endpoint: "/api",
		},
		Store: Store{Index: "annotations"},
		Auth: Auth{
			Authorize:   "/oauth/authorize",
			Token:       "/oauth/token",
			LegacyToken: "/api/token",
			TokenRate:   5,
			TokenBurst:  10,
		},
		BaseModel: BaseModel{ShouldCreateAll: true},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{Topic: "annotation-events"},
	}
}

// Load reads the optional INI file at path over the defaults, applies
// environment overrides and normalizes derived values.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := gcfg.ReadFileInto(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

// TokenTTL returns the configured token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.API.TTL) * time.Second
}

// EmbeddedStore reports whether the annotation store runs in this process.
func (c Config) EmbeddedStore() bool {
	return !strings.Contains(c.API.Endpoint, "://")
}

func (c *Config) normalize() {
	c.API.Endpoint = strings.TrimRight(c.API.Endpoint, "/")
	if c.API.URL == "" {
		c.API.URL = c.API.Endpoint
	}
	c.API.URL = strings.TrimRight(c.API.URL, "/")
	if c.API.TTL <= 0 {
		c.API.TTL = 86400
	}
	if c.Store.Index == "" {
		c.Store.Index = "annotations"
	}
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	var errs []string
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = n
		}
	}

	str("ANNOGATE_ADDR", &c.Server.Addr)
	str("ANNOGATE_LOG_LEVEL", &c.Server.LogLevel)
	str("ANNOGATE_API_KEY", &c.API.Key)
	str("ANNOGATE_API_SECRET", &c.API.Secret)
	integer("ANNOGATE_API_TTL", &c.API.TTL)
	str("ANNOGATE_API_ENDPOINT", &c.API.Endpoint)
	str("ANNOGATE_API_URL", &c.API.URL)
	str("ANNOGATE_STORE_HOST", &c.Store.Host)
	str("ANNOGATE_STORE_INDEX", &c.Store.Index)
	str("ANNOGATE_STORE_COMPATIBILITY", &c.Store.Compatibility)
	str("ANNOGATE_AUTH_AUTHORIZE", &c.Auth.Authorize)
	str("ANNOGATE_AUTH_TOKEN", &c.Auth.Token)
	str("ANNOGATE_AUTH_LEGACY_TOKEN", &c.Auth.LegacyToken)
	boolean("ANNOGATE_AUTHZ_DEFAULT_OPEN", &c.Auth.DefaultOpen)
	boolean("ANNOGATE_DROP_ALL", &c.BaseModel.ShouldDropAll)
	boolean("ANNOGATE_CREATE_ALL", &c.BaseModel.ShouldCreateAll)
	str("ANNOGATE_REDIS_URL", &c.Redis.URL)
	str("ANNOGATE_DATABASE_URL", &c.Database.URL)
	str("ANNOGATE_KAFKA_TOPIC", &c.Kafka.Topic)
	if v, ok := lookup("ANNOGATE_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
