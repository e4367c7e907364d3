package refinery

import (
	"context"

	"github.com/refinery-db/refinery/internal/driver"
	"github.com/refinery-db/refinery/internal/driver/mssql"
	"github.com/refinery-db/refinery/internal/driver/mysql"
	"github.com/refinery-db/refinery/internal/driver/postgres"
	"github.com/refinery-db/refinery/internal/driver/sqlite"
)

// connSettings holds options shared by every Connect function.
type connSettings struct {
	wideVersions bool
}

// ConnOption configures a Connect function.
type ConnOption func(*connSettings)

// WideVersions widens the history table's version column to 64 bits, for
// sets loaded with WithWideVersions.
func WideVersions() ConnOption {
	return func(s *connSettings) { s.wideVersions = true }
}

func settings(opts []ConnOption) connSettings {
	var s connSettings
	for _, opt := range opts {
		opt(&s)
	}

	return s
}

func sqlConnOpts(s connSettings) []driver.SQLConnOption {
	if s.wideVersions {
		return []driver.SQLConnOption{driver.WithWideVersions()}
	}

	return nil
}

// ConnectPostgres connects to PostgreSQL via a pgx pool. The cleanup
// function releases the pool.
func ConnectPostgres(ctx context.Context, databaseURL string, opts ...ConnOption) (Conn, func(), error) {
	var pgOpts []postgres.Option
	if settings(opts).wideVersions {
		pgOpts = append(pgOpts, postgres.WithWideVersions())
	}

	conn, err := postgres.Connect(ctx, databaseURL, pgOpts...)
	if err != nil {
		return nil, nil, err
	}

	return conn, conn.Close, nil
}

// ConnectSQLite opens a SQLite database file. Transactions begin exclusively
// so concurrent runs against the same file serialize.
func ConnectSQLite(ctx context.Context, path string, opts ...ConnOption) (Conn, func(), error) {
	conn, db, err := sqlite.Connect(ctx, path, sqlConnOpts(settings(opts))...)
	if err != nil {
		return nil, nil, err
	}

	return conn, func() { _ = conn.Close(); _ = db.Close() }, nil
}

// ConnectMySQL connects to MySQL from a go-sql-driver DSN.
func ConnectMySQL(ctx context.Context, dsn string, opts ...ConnOption) (Conn, func(), error) {
	conn, db, err := mysql.Connect(ctx, dsn, sqlConnOpts(settings(opts))...)
	if err != nil {
		return nil, nil, err
	}

	return conn, func() { _ = conn.Close(); _ = db.Close() }, nil
}

// ConnectMSSQL connects to SQL Server from a sqlserver:// URL.
func ConnectMSSQL(ctx context.Context, url string, opts ...ConnOption) (Conn, func(), error) {
	conn, db, err := mssql.Connect(ctx, url, sqlConnOpts(settings(opts))...)
	if err != nil {
		return nil, nil, err
	}

	return conn, func() { _ = conn.Close(); _ = db.Close() }, nil
}
