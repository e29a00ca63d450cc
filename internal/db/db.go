package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/localbox/internal/utils"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

// WAL for crash safety; writers wait on each other instead of failing.
const defaultPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA synchronous=FULL;
PRAGMA temp_store=MEMORY;
`

type options struct {
	pragmas  string
	schema   string
	maxConns int
}

type Option func(*options)

// WithPragmas replaces the default pragmas.
func WithPragmas(pragmas string) Option {
	return func(o *options) {
		o.pragmas = pragmas
	}
}

// WithSchema runs schema once the pragmas are applied.
func WithSchema(schema string) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithMaxConns caps open connections. One serializes every statement.
func WithMaxConns(n int) Option {
	return func(o *options) {
		o.maxConns = n
	}
}

// Open opens the SQLite database at path, creating it and its parent
// directory when missing. A file that is not a database fails here, when the
// pragmas first read it.
func Open(path string, opts ...Option) (*sqlx.DB, error) {
	o := options{pragmas: defaultPragmas}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := Memory
	if path != Memory {
		if err := utils.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path + "?_txlock=immediate&mode=rwc"
	}

	slog.Debug("open database", "driver", driverID, "path", path)
	sdb, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	if o.maxConns > 0 {
		sdb.SetMaxOpenConns(o.maxConns)
		sdb.SetMaxIdleConns(o.maxConns)
	}

	for _, stmt := range []struct{ what, sql string }{
		{"pragmas", o.pragmas},
		{"schema", o.schema},
	} {
		if stmt.sql == "" {
			continue
		}
		if _, err := sdb.Exec(stmt.sql); err != nil {
			sdb.Close()
			return nil, fmt.Errorf("apply %s: %w", stmt.what, err)
		}
	}

	return sdb, nil
}
