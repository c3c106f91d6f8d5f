package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/anoixa/image-gallery/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "state.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ClientState{}))
	return db
}

func TestRepository_PutGetDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Put(ctx, "session", "v1"))
	require.NoError(t, repo.Put(ctx, "session", "v2"))

	value, ok, err := repo.Get(ctx, "session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", value)

	require.NoError(t, repo.Delete(ctx, "session"))
	require.NoError(t, repo.Delete(ctx, "session"))

	_, ok, err = repo.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)
}
