// Package persistence opens the SQL database and Redis connections shared by
// the key store, audit sink, revocation store and rate limiter.
package persistence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// OpenDatabase opens the configured SQL database, applies the pool settings
// and checks that it answers.
func OpenDatabase(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		d, err := postgresDialector(cfg)
		if err != nil {
			return nil, err
		}
		dialector = d
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.NewInvalidArgumentError("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(log, cfg.SlowThreshold)})
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to access connection pool")
	}
	// Configure connection pool parameters
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "database ping failed")
	}

	log.Info(ctx, "Database connection pool initialized",
		logger.String("driver", cfg.Driver),
		logger.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return db, nil
}

// postgresDialector parses the DSN with pgx so that database.password, which
// may arrive ENC()-wrapped and decrypted at load time, overrides any password
// embedded in the DSN.
func postgresDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInvalidArgument, "invalid database.dsn")
	}
	if cfg.Password != "" {
		connCfg.Password = cfg.Password
	}
	return postgres.New(postgres.Config{Conn: stdlib.OpenDB(*connCfg)}), nil
}

// PingDatabase is a readiness probe for db.
func PingDatabase(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
