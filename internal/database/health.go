package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Checker pings a database handle for the readiness probe.
type Checker struct {
	name string
	ping func(context.Context) error
}

// NewHealthChecker checks a postgres pool. A nil pool always reports down.
func NewHealthChecker(pool *pgxpool.Pool) *Checker {
	c := &Checker{name: "postgres"}
	if pool != nil {
		c.ping = pool.Ping
	}
	return c
}

// NewSQLChecker checks a database/sql handle such as the embedded SQLite
// store.
func NewSQLChecker(name string, db *sql.DB) *Checker {
	c := &Checker{name: name}
	if db != nil {
		c.ping = db.PingContext
	}
	return c
}

func (c *Checker) Name() string { return c.name }

func (c *Checker) Check(ctx context.Context) error {
	if c.ping == nil {
		return fmt.Errorf("%s connection is nil", c.name)
	}
	if err := c.ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
	return nil
}
