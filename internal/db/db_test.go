package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"trolley-pm/config"
	"trolley-pm/internal/model"
)

func TestInit_SQLiteFile(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "pm.db"),
		LogLevel: "silent",
	}

	gormDB, err := Init(cfg)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, table := range []interface{}{
		&model.Trolley{},
		&model.TrolleyAlias{},
		&model.TrolleyRemap{},
		&model.MaintenanceRecord{},
		&model.FailureRecord{},
		&model.ScrapRecord{},
		&model.PushSubscription{},
	} {
		assert.True(t, gormDB.Migrator().HasTable(table))
	}
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "pm.db?_foreign_keys=on&_busy_timeout=5000", sqliteDSN("pm.db"))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN("file::memory:?cache=shared"))
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("SILENT"))
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel(""))
}
