package repository

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the backend for driver. dsn is ignored for the memory driver.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemStore(opts...), nil
	case DriverSQLite:
		return OpenSQL(ctx, "sqlite3", dsn, opts...)
	case DriverPostgres:
		return OpenSQL(ctx, "postgres", dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
