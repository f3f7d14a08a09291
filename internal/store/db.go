package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx. It is constructed once in main and
// passed to the repositories; each query borrows a pooled connection.
type DB struct {
	Client *sql.DB
}

// PoolOptions bounds the connection pool.
type PoolOptions struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// NewDB opens a Postgres pool and verifies connectivity within ctx.
func NewDB(ctx context.Context, connString string, opts PoolOptions) (*DB, error) {
	if connString == "" {
		return nil, errors.New("database url required")
	}
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpen <= 0 {
		opts.MaxOpen = 10
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 5
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = time.Hour
	}
	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.MaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{Client: db}, nil
}

// Healthy verifies the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
