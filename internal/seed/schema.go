package seed

// Tables in the source database, in insertion order.
var Tables = []string{"users", "products", "orders", "order_items"}

// Warehouse schemas. raw_ingest rows carry the batch they arrived in.
const (
	SchemaRawIngest  = "raw_ingest"
	SchemaRawCurrent = "raw_current"
)

var sourceDDL = []string{
	"DROP TABLE IF EXISTS order_items CASCADE",
	"DROP TABLE IF EXISTS orders CASCADE",
	"DROP TABLE IF EXISTS products CASCADE",
	"DROP TABLE IF EXISTS users CASCADE",
	`CREATE TABLE users (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255) UNIQUE NOT NULL,
    address TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP WITH TIME ZONE
)`,
	`CREATE TABLE products (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    category VARCHAR(100),
    price DECIMAL(10, 2) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP WITH TIME ZONE
)`,
	`CREATE TABLE orders (
    id SERIAL PRIMARY KEY,
    user_id INTEGER NOT NULL REFERENCES users(id),
    status VARCHAR(50) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE order_items (
    id SERIAL PRIMARY KEY,
    order_id INTEGER NOT NULL REFERENCES orders(id),
    product_id INTEGER NOT NULL REFERENCES products(id),
    quantity INTEGER NOT NULL
)`,
}

// rawColumns are the constraint-free column lists shared by both warehouse
// schemas.
var rawColumns = map[string]string{
	"users": `id INTEGER,
    name VARCHAR(255),
    email VARCHAR(255),
    address TEXT,
    created_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE,
    deleted_at TIMESTAMP WITH TIME ZONE`,
	"products": `id INTEGER,
    name VARCHAR(255),
    category VARCHAR(100),
    price DECIMAL(10, 2),
    created_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE,
    deleted_at TIMESTAMP WITH TIME ZONE`,
	"orders": `id INTEGER,
    user_id INTEGER,
    status VARCHAR(50),
    created_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE`,
	"order_items": `id INTEGER,
    order_id INTEGER,
    product_id INTEGER,
    quantity INTEGER`,
}

// warehouseDDL recreates both raw schemas.
func warehouseDDL() []string {
	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + SchemaRawIngest,
		"CREATE SCHEMA IF NOT EXISTS " + SchemaRawCurrent,
	}
	for _, schema := range []string{SchemaRawIngest, SchemaRawCurrent} {
		for i := len(Tables) - 1; i >= 0; i-- {
			stmts = append(stmts, "DROP TABLE IF EXISTS "+schema+"."+Tables[i]+" CASCADE")
		}
	}
	for _, table := range Tables {
		stmts = append(stmts, "CREATE TABLE "+SchemaRawIngest+"."+table+" (\n    batch_id CHAR(8),\n    "+rawColumns[table]+"\n)")
	}
	for _, table := range Tables {
		stmts = append(stmts, "CREATE TABLE "+SchemaRawCurrent+"."+table+" (\n    "+rawColumns[table]+"\n)")
	}
	return stmts
}
