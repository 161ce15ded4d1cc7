package seed

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/pipestack/internal/config"
)

// fakeRow implements pgx.Row.
type fakeRow func(dest ...any) error

func (f fakeRow) Scan(dest ...any) error { return f(dest...) }

// fakeDB stands in for a Postgres connection. Inserts get sequential ids per
// table and COUNT(*) reports how many rows were inserted.
type fakeDB struct {
	mu       sync.Mutex
	execs    []string
	inserted map[string]int
	failOn   string
	closed   bool

	committed  bool
	rolledBack bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{inserted: make(map[string]int)}
}

func (f *fakeDB) fail(sql string) error {
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return errors.New("injected failure: " + f.failOn)
	}
	return nil
}

func insertTable(sql string) string {
	rest := strings.TrimPrefix(sql, "INSERT INTO ")
	return strings.Fields(rest)[0]
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(sql); err != nil {
		return pgconn.CommandTag{}, err
	}
	f.execs = append(f.execs, sql)
	if strings.HasPrefix(sql, "INSERT INTO ") {
		f.inserted[insertTable(sql)]++
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag(""), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(sql); err != nil {
		return fakeRow(func(...any) error { return err })
	}

	switch {
	case strings.HasPrefix(sql, "INSERT INTO "):
		table := insertTable(sql)
		f.inserted[table]++
		id := f.inserted[table]
		return fakeRow(func(dest ...any) error {
			*dest[0].(*int) = id
			return nil
		})
	case strings.HasPrefix(sql, "SELECT COUNT(*) FROM "):
		table := strings.Trim(strings.TrimPrefix(sql, "SELECT COUNT(*) FROM "), `"`)
		n := int64(f.inserted[table])
		return fakeRow(func(dest ...any) error {
			*dest[0].(*int64) = n
			return nil
		})
	case strings.HasPrefix(sql, "SELECT MIN(created_at)"):
		from := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
		return fakeRow(func(dest ...any) error {
			*dest[0].(**time.Time) = &from
			*dest[1].(**time.Time) = &to
			return nil
		})
	}
	return fakeRow(func(...any) error { return errors.New("unexpected query: " + sql) })
}

func (f *fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Close(_ context.Context) error {
	f.closed = true
	return nil
}

// fakeTx forwards statements to its fakeDB. Methods not overridden panic
// through the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	db   *fakeDB
	done bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.done = true
	t.db.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.rolledBack = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Source:    config.PostgresConfig{Host: "localhost", Port: 5433, User: "user", Password: "password", DB: "source_db", SSLMode: "disable"},
		Warehouse: config.PostgresConfig{Host: "localhost", Port: 5434, User: "user", Password: "password", DB: "warehouse_db", SSLMode: "disable"},
		Seed:      config.SeedConfig{Users: 20, Products: 10, Orders: 40, RandomSeed: 42, Warehouse: true},
	}
}

// newTestSeeder routes connections by DSN to the given fakes. A nil fake
// makes that database unreachable.
func newTestSeeder(cfg *config.Config, source, warehouse *fakeDB, out *bytes.Buffer) *Seeder {
	s := NewSeeder(cfg, out)
	s.now = func() time.Time { return genNow }
	s.connect = func(_ context.Context, dsn string) (conn, error) {
		db := source
		if strings.Contains(dsn, cfg.Warehouse.DB) {
			db = warehouse
		}
		if db == nil {
			return nil, errors.New("dial tcp: connection refused")
		}
		return db, nil
	}
	return s
}

func TestSeeder_Run(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	source, warehouse := newFakeDB(), newFakeDB()
	var out bytes.Buffer

	require.NoError(t, newTestSeeder(cfg, source, warehouse, &out).Run(context.Background()))

	assert.True(t, source.committed)
	assert.True(t, source.closed)
	assert.Equal(t, 20, source.inserted["users"])
	assert.Equal(t, 10, source.inserted["products"])
	assert.Equal(t, 40, source.inserted["orders"])
	assert.Positive(t, source.inserted["order_items"])
	assert.True(t, strings.HasPrefix(source.execs[0], "DROP TABLE IF EXISTS order_items"))

	assert.True(t, warehouse.committed)
	assert.True(t, warehouse.closed)
	assert.Len(t, warehouse.execs, len(warehouseDDL()))

	text := out.String()
	assert.Contains(t, text, "DATABASE SEEDING SUMMARY")
	assert.Contains(t, text, "USERS               :     20 rows")
	assert.Contains(t, text, "From: 2026-07-20T00:00:00Z")
	assert.Contains(t, text, "Warehouse database setup completed successfully!")
}

func TestSeeder_WarehouseDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Seed.Warehouse = false
	source := newFakeDB()

	require.NoError(t, newTestSeeder(cfg, source, nil, &bytes.Buffer{}).Run(context.Background()))
	assert.True(t, source.committed)
}

func TestSeeder_SourceUnreachable(t *testing.T) {
	t.Parallel()

	err := newTestSeeder(testConfig(), nil, newFakeDB(), &bytes.Buffer{}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "localhost:5433/source_db")
	assert.Equal(t, ExitUnreachable, ExitCode(err))
}

func TestSeeder_WarehouseUnreachable(t *testing.T) {
	t.Parallel()

	source := newFakeDB()
	err := newTestSeeder(testConfig(), source, nil, &bytes.Buffer{}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.True(t, source.committed, "source seeding completes before the warehouse is contacted")
}

func TestSeeder_InsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	source := newFakeDB()
	source.failOn = "INSERT INTO orders"

	err := newTestSeeder(testConfig(), source, newFakeDB(), &bytes.Buffer{}).Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, 1, ExitCode(err))
	assert.True(t, source.rolledBack)
	assert.False(t, source.committed)
	assert.True(t, source.closed)
}

func TestSeeder_TooFewUsersForOrders(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Seed.Users = 0

	err := newTestSeeder(cfg, newFakeDB(), newFakeDB(), &bytes.Buffer{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user old enough")
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(ErrUnreachable))
	assert.Equal(t, 1, ExitCode(errors.New("duplicate key")))
}
