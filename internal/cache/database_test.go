package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robjohncolson/statrelay/internal/cache"
	"github.com/robjohncolson/statrelay/internal/database/testutil"
	"github.com/robjohncolson/statrelay/internal/models"
)

func TestDatabaseStoreCountsWithinWindow(t *testing.T) {
	store := cache.NewDatabaseStore(testutil.MustOpenTestDB(t))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, ttl, err := store.IncrementWithTTL(ctx, "write:user:stats_kid", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
		require.Positive(t, ttl)
		require.LessOrEqual(t, ttl, time.Minute)
	}
}

func TestDatabaseStoreKeepsWindowEndAcrossIncrements(t *testing.T) {
	store := cache.NewDatabaseStore(testutil.MustOpenTestDB(t))
	ctx := context.Background()

	_, first, err := store.IncrementWithTTL(ctx, "write:user:stats_kid", time.Minute)
	require.NoError(t, err)
	_, second, err := store.IncrementWithTTL(ctx, "write:user:stats_kid", time.Minute)
	require.NoError(t, err)

	// Fixed window: the second increment does not push the window end out.
	require.LessOrEqual(t, second, first)
}

func TestDatabaseStoreResetsAfterExpiry(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	count, _, err := store.IncrementWithTTL(ctx, "read:ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// Force the stored window into the past; the next increment starts over.
	require.NoError(t, db.Model(&models.CacheEntry{}).
		Where("key = ?", "read:ip:10.0.0.1").
		Update("expires_at", time.Now().Add(-time.Second)).Error)

	count, ttl, err := store.IncrementWithTTL(ctx, "read:ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Positive(t, ttl)
}

func TestDatabaseStoreDelete(t *testing.T) {
	store := cache.NewDatabaseStore(testutil.MustOpenTestDB(t))
	ctx := context.Background()

	_, _, err := store.IncrementWithTTL(ctx, "auth:user:stats_kid", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "auth:user:stats_kid"))

	count, _, err := store.IncrementWithTTL(ctx, "auth:user:stats_kid", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "deleted bucket restarts at one")
}

func TestNilDatabaseStore(t *testing.T) {
	store := cache.NewDatabaseStore(nil)
	require.Nil(t, store)
}
