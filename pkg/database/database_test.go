package database

import (
	"bookshelf/pkg/config"
	"bookshelf/pkg/models"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) config.DatabaseConfig {
	cfg := config.Default().Database
	cfg.Driver = "sqlite"
	cfg.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.ConnectRetries = 1
	return cfg
}

func TestOpenMigratePing(t *testing.T) {
	db, err := Open(sqliteConfig(t), log.New(io.Discard))
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db))
	assert.NoError(t, Ping(context.Background(), db))

	for _, table := range []string{"users", "sessions", "entries", "items"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	for _, column := range []string{"page_number", "start_date", "end_date", "fav_character",
		"hated_character", "rating_details", "fav_phrases", "formato"} {
		assert.True(t, db.Migrator().HasColumn(&models.Entry{}, column), column)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Driver = "oracle"

	_, err := Open(cfg, log.New(io.Discard))
	assert.Error(t, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	db, err := Open(sqliteConfig(t), log.New(io.Discard))
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db))
	assert.NoError(t, Migrate(db))
}
