package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/robjohncolson/statrelay/internal/database"
)

// MustOpenTestDB opens an isolated in-memory SQLite database for tests with the
// schema migrated. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Per-test named memory DB so parallel tests never share state.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
