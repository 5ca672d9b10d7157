package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"phrasehunt/internal/models"
)

const cachePrefix = "display_info:"

// CachedDirectory fronts a Directory with a Redis cache. Cache errors are
// logged and never fail a lookup.
type CachedDirectory struct {
	next  Directory
	redis *redis.Client
	ttl   time.Duration
	log   *logrus.Entry
}

func NewCachedDirectory(next Directory, rdb *redis.Client, ttl time.Duration, log *logrus.Entry) *CachedDirectory {
	return &CachedDirectory{next: next, redis: rdb, ttl: ttl, log: log}
}

func (d *CachedDirectory) DisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error) {
	key := cachePrefix + userID

	if cached, err := d.redis.Get(ctx, key).Bytes(); err == nil {
		var info models.DisplayInfo
		if err := json.Unmarshal(cached, &info); err == nil {
			return &info, nil
		}
	} else if err != redis.Nil {
		d.log.WithError(err).WithField("user_id", userID).Warn("display info cache read failed")
	}

	info, err := d.next.DisplayInfo(ctx, userID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(info); err == nil {
		if err := d.redis.Set(ctx, key, raw, d.ttl).Err(); err != nil {
			d.log.WithError(err).WithField("user_id", userID).Warn("display info cache write failed")
		}
	}
	return info, nil
}

// Invalidate drops the cached entry for userID.
func (d *CachedDirectory) Invalidate(ctx context.Context, userID string) error {
	return d.redis.Del(ctx, cachePrefix+userID).Err()
}
