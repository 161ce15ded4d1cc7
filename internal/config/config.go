package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Readiness strategies accepted by bootstrap.readiness.strategy.
const (
	ReadinessFixed = "fixed"
	ReadinessPoll  = "poll"
)

// Probe kinds accepted in the probes list.
const (
	ProbeHTTP     = "http"
	ProbeRedis    = "redis"
	ProbeNATS     = "nats"
	ProbePostgres = "postgres"
)

// Config is the root configuration for pipestack.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Compose   ComposeConfig   `mapstructure:"compose"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Seed      SeedConfig      `mapstructure:"seed"`
	Source    PostgresConfig  `mapstructure:"source"`
	Warehouse PostgresConfig  `mapstructure:"warehouse"`
	Probes    []ProbeConfig   `mapstructure:"probes"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// PathsConfig holds the fixed file conventions, relative to Workdir.
type PathsConfig struct {
	Workdir     string `mapstructure:"workdir"`
	EnvFile     string `mapstructure:"env_file"`
	EnvTemplate string `mapstructure:"env_template"`
	ComposeFile string `mapstructure:"compose_file"`
}

type ComposeConfig struct {
	// Command is the compose entry point, e.g. ["docker", "compose"].
	Command []string `mapstructure:"command"`
	// Project overrides the compose project name. Empty derives it from Workdir.
	Project string `mapstructure:"project"`
}

type BootstrapConfig struct {
	SettleDelay time.Duration   `mapstructure:"settle_delay"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	Readiness   ReadinessConfig `mapstructure:"readiness"`
}

type ReadinessConfig struct {
	Strategy        string        `mapstructure:"strategy"`
	Timeout         time.Duration `mapstructure:"timeout"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type SeedConfig struct {
	// Command runs the seed task. Empty means "<this binary> seed".
	Command    []string `mapstructure:"command"`
	Users      int      `mapstructure:"users"`
	Products   int      `mapstructure:"products"`
	Orders     int      `mapstructure:"orders"`
	RandomSeed int64    `mapstructure:"random_seed"`
	Warehouse  bool     `mapstructure:"warehouse"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN returns the libpq URL for the database. User, password and database
// name are escaped, so any value read from .env is safe.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DB,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ProbeConfig declares an extra backing service to health-check.
type ProbeConfig struct {
	Name     string `mapstructure:"name"`
	Kind     string `mapstructure:"kind"`
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	LogFile      string `mapstructure:"log_file"`
}

// dbEnvNames maps a database config key to the variable names the pipeline
// itself reads from .env. The PIPESTACK_ prefixed form still wins.
var dbEnvNames = map[string]string{
	"host":     "HOST",
	"port":     "PORT",
	"db":       "NAME",
	"user":     "USER",
	"password": "PASSWORD",
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the PIPESTACK_ prefix (e.g. PIPESTACK_SOURCE_PORT).
// Database settings also honour SOURCE_DB_* and DWH_DB_*.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PIPESTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindDBEnv(v, "source", "SOURCE_DB"); err != nil {
		return nil, err
	}
	if err := bindDBEnv(v, "warehouse", "DWH_DB"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the bootstrap cannot act on.
func (c *Config) Validate() error {
	switch c.Bootstrap.Readiness.Strategy {
	case ReadinessFixed, ReadinessPoll:
	default:
		return fmt.Errorf("bootstrap.readiness.strategy: unknown strategy %q", c.Bootstrap.Readiness.Strategy)
	}
	if c.Bootstrap.SettleDelay < 0 {
		return fmt.Errorf("bootstrap.settle_delay must not be negative")
	}
	if len(c.Compose.Command) == 0 {
		return fmt.Errorf("compose.command must not be empty")
	}
	for i, p := range c.Probes {
		if p.Name == "" {
			return fmt.Errorf("probes[%d]: name is required", i)
		}
		switch p.Kind {
		case ProbeHTTP, ProbeNATS:
			if p.URL == "" {
				return fmt.Errorf("probe %s: url is required for kind %s", p.Name, p.Kind)
			}
		case ProbeRedis:
			if p.Addr == "" {
				return fmt.Errorf("probe %s: addr is required for kind %s", p.Name, p.Kind)
			}
		case ProbePostgres:
			if p.URL == "" {
				return fmt.Errorf("probe %s: url is required for kind %s", p.Name, p.Kind)
			}
		default:
			return fmt.Errorf("probe %s: unknown kind %q", p.Name, p.Kind)
		}
	}
	return nil
}

// WithEnv returns a copy of c overridden by the <prefix>_HOST, _PORT, _NAME,
// _USER and _PASSWORD entries found through lookup. Used to point probes at
// the values an operator put in .env.
func (c PostgresConfig) WithEnv(prefix string, lookup func(string) (string, bool)) PostgresConfig {
	out := c
	if v, ok := lookup(prefix + "_HOST"); ok && v != "" {
		out.Host = v
	}
	if v, ok := lookup(prefix + "_PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			out.Port = port
		}
	}
	if v, ok := lookup(prefix + "_NAME"); ok && v != "" {
		out.DB = v
	}
	if v, ok := lookup(prefix + "_USER"); ok && v != "" {
		out.User = v
	}
	if v, ok := lookup(prefix + "_PASSWORD"); ok {
		out.Password = v
	}
	return out
}

func bindDBEnv(v *viper.Viper, key, prefix string) error {
	for field, suffix := range dbEnvNames {
		full := key + "." + field
		pipestackName := "PIPESTACK_" + strings.ToUpper(key+"_"+field)
		if err := v.BindEnv(full, pipestackName, prefix+"_"+suffix); err != nil {
			return fmt.Errorf("binding %s: %w", full, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.workdir", ".")
	v.SetDefault("paths.env_file", ".env")
	v.SetDefault("paths.env_template", ".env.example")
	v.SetDefault("paths.compose_file", "docker-compose.yml")

	v.SetDefault("compose.command", []string{"docker", "compose"})
	v.SetDefault("compose.project", "")

	v.SetDefault("bootstrap.settle_delay", 10*time.Second)
	v.SetDefault("bootstrap.timeout", 15*time.Minute)
	v.SetDefault("bootstrap.readiness.strategy", ReadinessFixed)
	v.SetDefault("bootstrap.readiness.timeout", 2*time.Minute)
	v.SetDefault("bootstrap.readiness.initial_interval", 500*time.Millisecond)
	v.SetDefault("bootstrap.readiness.max_interval", 5*time.Second)

	v.SetDefault("seed.command", []string{})
	v.SetDefault("seed.users", 100)
	v.SetDefault("seed.products", 50)
	v.SetDefault("seed.orders", 500)
	v.SetDefault("seed.random_seed", 42)
	v.SetDefault("seed.warehouse", true)

	v.SetDefault("source.host", "localhost")
	v.SetDefault("source.port", 5433)
	v.SetDefault("source.user", "user")
	v.SetDefault("source.password", "password")
	v.SetDefault("source.db", "source_db")
	v.SetDefault("source.ssl_mode", "disable")
	v.SetDefault("source.max_conns", 4)

	v.SetDefault("warehouse.host", "localhost")
	v.SetDefault("warehouse.port", 5434)
	v.SetDefault("warehouse.user", "user")
	v.SetDefault("warehouse.password", "password")
	v.SetDefault("warehouse.db", "warehouse_db")
	v.SetDefault("warehouse.ssl_mode", "disable")
	v.SetDefault("warehouse.max_conns", 4)

	v.SetDefault("probes", []map[string]any{
		{"name": "mage", "kind": ProbeHTTP, "url": "http://localhost:6789"},
	})

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "pipestack")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "text")
	v.SetDefault("telemetry.log_file", "")
}
