package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds configuration for the report database connection.
type Config struct {
	// Driver is "postgres" (default) or "sqlite".
	Driver string `hcl:"driver,optional"`

	// DSN is passed to the driver as-is. For postgres it may be left empty
	// and built from the fields below.
	DSN string `hcl:"dsn,optional"`

	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`

	// Connection pool settings
	MaxIdleConns    int           // Maximum idle connections in pool (default: 10)
	MaxOpenConns    int           // Maximum open connections (default: 25)
	ConnMaxLifetime time.Duration // Maximum connection lifetime (default: 5 minutes)
	ConnMaxIdleTime time.Duration // Maximum connection idle time (default: 10 minutes)
}

// dialector selects the GORM driver for the configuration.
func (cfg Config) dialector() (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			if cfg.Host == "" {
				return nil, fmt.Errorf("postgres requires dsn or host")
			}
			port := cfg.Port
			if port == 0 {
				port = 5432
			}
			sslMode := cfg.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host,
				port,
				cfg.User,
				cfg.Password,
				cfg.DBName,
				sslMode,
			)
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite requires dsn")
		}
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q (must be one of: postgres, sqlite)", cfg.Driver)
}

// poolDefaults fills unset pool settings. SQLite gets a single connection:
// it has one writer, and each connection to ":memory:" is its own database.
func (cfg *Config) poolDefaults() {
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
		if cfg.Driver == "sqlite" {
			cfg.MaxOpenConns = 1
		}
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = 10 * time.Minute
	}
}

// Connect opens the report database and configures its pool.
func Connect(cfg Config, log hclog.Logger) (*gorm.DB, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	cfg.poolDefaults()

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(log.Named("gorm")).LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Info("connected to report database",
		"driver", dialector.Name(),
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
	)
	return db, nil
}

// Stats returns the connection pool statistics of db.
func Stats(db *gorm.DB) (sql.DBStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return sql.DBStats{}, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.Stats(), nil
}

// SlowQueryThreshold is the duration above which queries are logged at warn.
const SlowQueryThreshold = 200 * time.Millisecond

// gormLogger sends GORM output to an hclog.Logger.
type gormLogger struct {
	log   hclog.Logger
	level logger.LogLevel
}

// NewGormLogger creates a GORM logger backed by log, at GORM's Info level.
func NewGormLogger(log hclog.Logger) logger.Interface {
	return &gormLogger{log: log, level: logger.Info}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	out := *g
	out.level = level
	return &out
}

func (g *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Info {
		g.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Warn {
		g.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Error {
		g.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs failed queries at error, slow ones at warn and the rest at
// debug. A missing record is not a failure.
func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		query, rows := fc()
		g.log.Error("query failed", "error", err, "elapsed", elapsed, "rows", rows, "sql", query)
	case elapsed > SlowQueryThreshold && g.level >= logger.Warn:
		query, rows := fc()
		g.log.Warn("slow query", "elapsed", elapsed, "rows", rows, "sql", query)
	case g.level >= logger.Info && g.log.IsDebug():
		query, rows := fc()
		g.log.Debug("query", "elapsed", elapsed, "rows", rows, "sql", query)
	}
}
