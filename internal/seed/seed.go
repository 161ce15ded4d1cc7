// Package seed fills the source database with a reproducible shop history
// and prepares the warehouse's raw schemas.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arc-framework/pipestack/internal/config"
)

// ExitUnreachable is the exit status of the seed command when a database
// cannot be reached.
const ExitUnreachable = 3

// ErrUnreachable wraps connection failures.
var ErrUnreachable = errors.New("database unreachable")

// querier is the part of pgx.Conn and pgx.Tx used for seeding.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn is the part of *pgx.Conn used by Seeder.
type conn interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Summary describes what ended up in the source database.
type Summary struct {
	Rows       map[string]int64
	OrdersFrom time.Time
	OrdersTo   time.Time
}

// Seeder writes the generated data set and the warehouse schemas.
type Seeder struct {
	source    config.PostgresConfig
	warehouse config.PostgresConfig
	cfg       config.SeedConfig
	out       io.Writer
	now       func() time.Time
	connect   func(ctx context.Context, dsn string) (conn, error)
}

// NewSeeder creates a Seeder. Progress is written to out.
func NewSeeder(cfg *config.Config, out io.Writer) *Seeder {
	if out == nil {
		out = io.Discard
	}
	return &Seeder{
		source:    cfg.Source,
		warehouse: cfg.Warehouse,
		cfg:       cfg.Seed,
		out:       out,
		now:       time.Now,
		connect:   realConnect,
	}
}

func realConnect(ctx context.Context, dsn string) (conn, error) {
	c, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Run seeds the source database and, when enabled, sets up the warehouse.
// Connection failures wrap ErrUnreachable.
func (s *Seeder) Run(ctx context.Context) error {
	s.printf("\nStarting database seeding process...\n")

	if _, err := s.SeedSource(ctx); err != nil {
		return err
	}
	if !s.cfg.Warehouse {
		return nil
	}
	return s.SetupWarehouse(ctx)
}

// SeedSource recreates the source tables and inserts a fresh data set in one
// transaction.
func (s *Seeder) SeedSource(ctx context.Context) (*Summary, error) {
	s.printf("\nConnecting to source database %s:%d/%s...\n", s.source.Host, s.source.Port, s.source.DB)
	c, err := s.open(ctx, s.source)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = c.Close(context.WithoutCancel(ctx))
		s.printf("Source database connection closed.\n")
	}()
	s.printf("Connected successfully\n")

	err = pgx.BeginFunc(ctx, c, func(tx pgx.Tx) error {
		return s.populate(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("seeding source database: %w", err)
	}

	summary, err := summarize(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("summarizing source database: %w", err)
	}
	s.printSummary(summary)
	s.printf("\nSource database seeding completed successfully!\n")
	return summary, nil
}

func (s *Seeder) populate(ctx context.Context, q querier) error {
	s.printf("\nCreating tables...\n")
	for _, stmt := range sourceDDL {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	s.printf("Tables created successfully\n")

	g := NewGenerator(s.cfg.RandomSeed, s.now())

	s.printf("\nGenerating users...\n")
	users := g.Users(s.cfg.Users)
	for i := range users {
		u := &users[i]
		id, err := insertReturningID(ctx, q,
			"INSERT INTO users (name, email, address, created_at, updated_at, deleted_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			u.Name, u.Email, u.Address, u.CreatedAt, u.UpdatedAt, u.DeletedAt)
		if err != nil {
			return fmt.Errorf("inserting user %d: %w", i+1, err)
		}
		u.ID = id
	}
	s.printf("Inserted %d rows into users\n", len(users))

	s.printf("Generating products...\n")
	products := g.Products(s.cfg.Products)
	for i := range products {
		p := &products[i]
		id, err := insertReturningID(ctx, q,
			"INSERT INTO products (name, category, price, created_at, updated_at, deleted_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			p.Name, p.Category, p.Price, p.CreatedAt, p.UpdatedAt, p.DeletedAt)
		if err != nil {
			return fmt.Errorf("inserting product %d: %w", i+1, err)
		}
		p.ID = id
	}
	s.printf("Inserted %d rows into products\n", len(products))

	s.printf("Generating orders (spanning 3 months)...\n")
	orders, err := g.Orders(users, s.cfg.Orders)
	if err != nil {
		return err
	}
	for i := range orders {
		o := &orders[i]
		id, err := insertReturningID(ctx, q,
			"INSERT INTO orders (user_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id",
			o.UserID, o.Status, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting order %d: %w", i+1, err)
		}
		o.ID = id
	}
	s.printf("Inserted %d rows into orders\n", len(orders))

	s.printf("Generating order items...\n")
	items, err := g.OrderItems(orders, products)
	if err != nil {
		return err
	}
	for i, it := range items {
		if _, err := q.Exec(ctx,
			"INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)",
			it.OrderID, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("inserting order item %d: %w", i+1, err)
		}
	}
	s.printf("Inserted %d rows into order_items\n", len(items))
	return nil
}

// SetupWarehouse recreates the raw_ingest and raw_current schemas.
func (s *Seeder) SetupWarehouse(ctx context.Context) error {
	s.printf("\nConnecting to warehouse database %s:%d/%s...\n", s.warehouse.Host, s.warehouse.Port, s.warehouse.DB)
	c, err := s.open(ctx, s.warehouse)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close(context.WithoutCancel(ctx))
		s.printf("Warehouse database connection closed.\n")
	}()
	s.printf("Connected successfully\n")

	s.printf("\nCreating warehouse tables (%s and %s schemas)...\n", SchemaRawIngest, SchemaRawCurrent)
	err = pgx.BeginFunc(ctx, c, func(tx pgx.Tx) error {
		for _, stmt := range warehouseDDL() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("setting up warehouse: %w", err)
	}
	s.printf("Warehouse database setup completed successfully!\n")
	return nil
}

func (s *Seeder) open(ctx context.Context, cfg config.PostgresConfig) (conn, error) {
	c, err := s.connect(ctx, cfg.DSN())
	if err != nil {
		slog.ErrorContext(ctx, "database connect failed", "host", cfg.Host, "port", cfg.Port, "db", cfg.DB, "error", err)
		return nil, fmt.Errorf("%w: %s:%d/%s: %w", ErrUnreachable, cfg.Host, cfg.Port, cfg.DB, err)
	}
	return c, nil
}

func insertReturningID(ctx context.Context, q querier, sql string, args ...any) (int, error) {
	var id int
	if err := q.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func summarize(ctx context.Context, q querier) (*Summary, error) {
	sum := &Summary{Rows: make(map[string]int64, len(Tables))}
	for _, table := range Tables {
		var n int64
		if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		sum.Rows[table] = n
	}

	var from, to *time.Time
	if err := q.QueryRow(ctx, "SELECT MIN(created_at), MAX(created_at) FROM orders").Scan(&from, &to); err != nil {
		return nil, fmt.Errorf("orders date range: %w", err)
	}
	if from != nil {
		sum.OrdersFrom = *from
	}
	if to != nil {
		sum.OrdersTo = *to
	}
	return sum, nil
}

func (s *Seeder) printSummary(sum *Summary) {
	rule := strings.Repeat("=", 50)
	s.printf("\n%s\nDATABASE SEEDING SUMMARY\n%s\n", rule, rule)
	for _, table := range Tables {
		s.printf("%-20s: %6d rows\n", strings.ToUpper(table), sum.Rows[table])
	}
	s.printf("\n%s\nOrders date range:\n", strings.Repeat("-", 50))
	s.printf("  From: %s\n", sum.OrdersFrom.Format(time.RFC3339))
	s.printf("  To:   %s\n", sum.OrdersTo.Format(time.RFC3339))
	s.printf("%s\n", rule)
}

func (s *Seeder) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
