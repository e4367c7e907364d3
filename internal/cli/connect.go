package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/refinery-db/refinery"
	"github.com/refinery-db/refinery/internal/config"
)

// errDatabaseURLRequired is returned when no database URL is configured.
var errDatabaseURLRequired = errors.New(
	"database URL is required (set --database-url, REFINERY_DATABASE_URL, or database_url in config)",
)

// errUnknownDriver is returned when the driver cannot be determined.
var errUnknownDriver = errors.New(
	"unknown driver (set --driver to one of postgres, sqlite, mysql, mssql)",
)

// connect builds the driver connection for the configured backend. The
// returned cleanup releases the connection and the pool behind it.
func connect(ctx context.Context, cfg *config.Config) (refinery.Conn, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errDatabaseURLRequired
	}

	var opts []refinery.ConnOption
	if cfg.WideVersions {
		opts = append(opts, refinery.WideVersions())
	}

	switch cfg.ResolveDriver() {
	case "postgres":
		return refinery.ConnectPostgres(ctx, cfg.DatabaseURL, opts...)
	case "sqlite":
		return refinery.ConnectSQLite(ctx, strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"), opts...)
	case "mysql":
		return refinery.ConnectMySQL(ctx, strings.TrimPrefix(cfg.DatabaseURL, "mysql://"), opts...)
	case "mssql":
		return refinery.ConnectMSSQL(ctx, cfg.DatabaseURL, opts...)
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownDriver, cfg.Driver)
	}
}
