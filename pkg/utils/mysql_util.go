package utils

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

type MySQLOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// InitializeMysql opens and pings a pooled MySQL handle. The DSN must carry
// parseTime=true so DATETIME columns scan into time.Time.
func InitializeMysql(ctx context.Context, opts MySQLOptions) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "mysql", opts.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}
