package crud

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor a Table emits
type Dialect int

const (
	// Postgres numbers placeholders ($1, $2, ...)
	Postgres Dialect = iota
	// SQLite uses positional ? placeholders
	SQLite
)

// String returns the dialect name
func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Placeholder returns the bind parameter for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// DialectFor maps a database/sql driver name to its dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return Postgres, fmt.Errorf("unsupported driver %q (expected pgx, postgres or sqlite3)", driver)
	}
}

// Open opens and pings a database through a registered database/sql driver.
// The caller is responsible for importing the driver package.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, dialect, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dialect, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	return db, dialect, nil
}

// quoteIdent quotes an identifier for both PostgreSQL and SQLite
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
