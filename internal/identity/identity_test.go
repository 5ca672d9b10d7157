package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasehunt/internal/logger"
	"phrasehunt/internal/models"
)

type countingDirectory struct {
	calls int
	info  *models.DisplayInfo
	err   error
}

func (d *countingDirectory) DisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.info, nil
}

func setupCache(t *testing.T, next Directory) (*CachedDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCachedDirectory(next, rdb, 5*time.Minute, logger.Discard()), mr
}

func TestCachedDirectory_HitsUpstreamOnce(t *testing.T) {
	avatar := "https://cdn/alice.png"
	upstream := &countingDirectory{info: &models.DisplayInfo{DisplayName: "Alice", ProfileImageURL: &avatar}}
	dir, mr := setupCache(t, upstream)
	ctx := context.Background()

	first, err := dir.DisplayInfo(ctx, "alice")
	require.NoError(t, err)
	second, err := dir.DisplayInfo(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("display_info:alice"))
	assert.Equal(t, 5*time.Minute, mr.TTL("display_info:alice"))
}

func TestCachedDirectory_Invalidate(t *testing.T) {
	upstream := &countingDirectory{info: &models.DisplayInfo{DisplayName: "Alice"}}
	dir, _ := setupCache(t, upstream)
	ctx := context.Background()

	_, err := dir.DisplayInfo(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, dir.Invalidate(ctx, "alice"))
	_, err = dir.DisplayInfo(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.calls)
}

func TestCachedDirectory_UpstreamError(t *testing.T) {
	upstream := &countingDirectory{err: errors.New("postgrest down")}
	dir, mr := setupCache(t, upstream)

	_, err := dir.DisplayInfo(context.Background(), "bob")
	assert.Error(t, err)
	assert.False(t, mr.Exists("display_info:bob"))
}

func TestCachedDirectory_RedisDown(t *testing.T) {
	upstream := &countingDirectory{info: &models.DisplayInfo{DisplayName: "Bob"}}
	dir, mr := setupCache(t, upstream)
	mr.SetError("ERR cache unavailable")

	info, err := dir.DisplayInfo(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", info.DisplayName)
}

func TestFallback(t *testing.T) {
	info, err := Fallback{}.DisplayInfo(context.Background(), "user-7")
	require.NoError(t, err)
	assert.Equal(t, "user-7", info.DisplayName)
	assert.Nil(t, info.ProfileImageURL)
}
