package clients

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"arc-framework/pipestack/internal/config"
	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/orchestrator"
)

// Probe names for the two pipeline databases.
const (
	SourceProbeName    = "postgres-source"
	WarehouseProbeName = "postgres-warehouse"
)

// dbPinger abstracts the pgxpool.Pool methods used in Probe so that tests
// can inject a fake without standing up a real database.
type dbPinger interface {
	Ping(ctx context.Context) error
	Close()
}

// PostgresClient probes a Postgres server with a circuit breaker around
// each attempt.
type PostgresClient struct {
	name string
	cfg  config.PostgresConfig
	// url overrides cfg when set.
	url string
	// envPrefix selects the .env entries ProbeSource overlays on cfg.
	envPrefix string
	cb        *gobreaker.CircuitBreaker
	connect   func(ctx context.Context, dsn string, maxConns int32) (dbPinger, error)
}

// NewPostgresClient creates a PostgresClient for cfg. envPrefix names the
// .env variables (e.g. SOURCE_DB) that ProbeSource applies on top of cfg.
// No connection is made at construction time.
func NewPostgresClient(name string, cfg config.PostgresConfig, envPrefix string, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		name:      name,
		cfg:       cfg,
		envPrefix: envPrefix,
		cb:        cb,
		connect:   realConnect,
	}
}

// NewPostgresURLClient creates a PostgresClient for a libpq URL.
func NewPostgresURLClient(name, url string, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		name:    name,
		url:     url,
		cb:      cb,
		connect: realConnect,
	}
}

// Probe opens a short-lived pool and pings the server.
func (c *PostgresClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	return guarded(c.name, c.cb, func() error {
		return c.ping(ctx, c.dsn(c.cfg), c.cfg.MaxConns)
	})
}

// ProbeSource pings the database addressed by cfg overlaid with the
// <envPrefix>_* entries of env. It bypasses the circuit breaker: the
// bootstrap asks exactly once and must see the real error.
func (c *PostgresClient) ProbeSource(ctx context.Context, env envfile.Env) orchestrator.ProbeResult {
	cfg := c.cfg
	if c.envPrefix != "" {
		cfg = cfg.WithEnv(c.envPrefix, env.Lookup)
	}
	return guarded(c.name, nil, func() error {
		return c.ping(ctx, c.dsn(cfg), cfg.MaxConns)
	})
}

func (c *PostgresClient) dsn(cfg config.PostgresConfig) string {
	if c.url != "" {
		return c.url
	}
	return cfg.DSN()
}

func (c *PostgresClient) ping(ctx context.Context, dsn string, maxConns int32) error {
	pool, err := c.connect(ctx, dsn, maxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// realConnect opens a pgxpool.Pool for dsn.
func realConnect(ctx context.Context, dsn string, maxConns int32) (dbPinger, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return pool, nil
}
