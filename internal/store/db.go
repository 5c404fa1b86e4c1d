package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolOptions sizes the connection pool. Zero fields keep the defaults.
type PoolOptions struct {
	MaxOpen     int
	MaxIdle     int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

var defaultPool = PoolOptions{
	MaxOpen:     20,
	MaxIdle:     10,
	MaxIdleTime: 5 * time.Minute,
	MaxLifetime: 30 * time.Minute,
}

// Open connects through the pgx stdlib driver and pings the server.
func Open(ctx context.Context, databaseURL string, opts ...PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pool := defaultPool
	if len(opts) > 0 {
		if opts[0].MaxOpen > 0 {
			pool.MaxOpen = opts[0].MaxOpen
		}
		if opts[0].MaxIdle > 0 {
			pool.MaxIdle = opts[0].MaxIdle
		}
		if opts[0].MaxIdleTime > 0 {
			pool.MaxIdleTime = opts[0].MaxIdleTime
		}
		if opts[0].MaxLifetime > 0 {
			pool.MaxLifetime = opts[0].MaxLifetime
		}
	}
	db.SetConnMaxIdleTime(pool.MaxIdleTime)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetMaxOpenConns(pool.MaxOpen)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
