package database

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConnectSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "reports.db")

	db, err := Connect(Config{Driver: "sqlite", DSN: dsn}, hclog.NewNullLogger())
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)

	stats, err := Stats(db)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestConnectCustomPool(t *testing.T) {
	db, err := Connect(Config{
		Driver:          "sqlite",
		DSN:             ":memory:",
		MaxOpenConns:    3,
		ConnMaxLifetime: time.Minute,
	}, nil)
	require.NoError(t, err)

	stats, err := Stats(db)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MaxOpenConnections)
}

func TestConnectConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "unknown driver", cfg: Config{Driver: "oracle"}, want: "unsupported database driver"},
		{name: "sqlite without dsn", cfg: Config{Driver: "sqlite"}, want: "sqlite requires dsn"},
		{name: "postgres without dsn or host", cfg: Config{}, want: "postgres requires dsn or host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(tt.cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	d, err := Config{Host: "db", User: "kb", Password: "pw", DBName: "reports"}.dialector()
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestGormLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug})
	l := NewGormLogger(log).LogMode(logger.Warn)

	l.Info(context.Background(), "hidden %d", 1)
	l.Warn(context.Background(), "shown %d", 2)
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, gorm.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 2", 0 }, errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.NotContains(t, out, "SELECT 1")
	assert.Contains(t, out, "SELECT 2")
}
