package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/models"
)

type challengeStore interface {
	List(ctx context.Context) ([]*models.Challenge, error)
	Get(ctx context.Context, id string) (*models.Challenge, error)
	Put(ctx context.Context, c *models.Challenge) error
	Update(ctx context.Context, id string, fn MutateFunc) (*models.Challenge, error)
}

func newRedisStore(t *testing.T) *RedisStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func implementations(t *testing.T) map[string]challengeStore {
	return map[string]challengeStore{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}
}

func newChallenge(id string, createdAt time.Time) *models.Challenge {
	return &models.Challenge{
		ID:          id,
		Sentence:    "a red fox",
		PrizeAmount: 9,
		Words: []models.Word{
			{Text: "a", Position: 0, State: models.WordLocked, GuessedBy: map[string]bool{}},
			{Text: "red", Position: 1, State: models.WordLocked, GuessedBy: map[string]bool{}},
			{Text: "fox", Position: 2, State: models.WordLocked, GuessedBy: map[string]bool{}},
		},
		WordImages: map[int]string{},
		CreatedBy:  "carol",
		IsActive:   true,
		CreatedAt:  createdAt,
	}
}

func TestStore_PutGetList(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, newChallenge("older", base)))
			require.NoError(t, s.Put(ctx, newChallenge("newer", base.Add(time.Minute))))

			got, err := s.Get(ctx, "older")
			require.NoError(t, err)
			assert.Equal(t, "a red fox", got.Sentence)
			assert.Len(t, got.Words, 3)
			assert.NotNil(t, got.Words[0].GuessedBy)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "newer", list[0].ID)
			assert.Equal(t, "older", list[1].ID)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			assert.True(t, errors.Is(err, gameerr.ErrNotFound))

			_, err = s.Update(context.Background(), "nope", func(c *models.Challenge) error { return nil })
			assert.True(t, errors.Is(err, gameerr.ErrNotFound))
		})
	}
}

func TestStore_UpdateWritesAndBumpsVersion(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, newChallenge("c1", time.Now())))

			updated, err := s.Update(ctx, "c1", func(c *models.Challenge) error {
				c.WordImages[1] = "https://img/1.png"
				c.Words[1].State = models.WordReady
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), updated.Version)

			got, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, models.WordReady, got.Words[1].State)
			assert.Equal(t, "https://img/1.png", got.WordImages[1])
		})
	}
}

func TestStore_UpdateErrorLeavesRecord(t *testing.T) {
	abort := errors.New("abort")

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, newChallenge("c1", time.Now())))

			_, err := s.Update(ctx, "c1", func(c *models.Challenge) error {
				c.IsActive = false
				return abort
			})
			assert.ErrorIs(t, err, abort)

			got, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			assert.True(t, got.IsActive)
			assert.Equal(t, int64(0), got.Version)
		})
	}
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, newChallenge("c1", time.Now())))

			const writers = 8
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Update(ctx, "c1", func(c *models.Challenge) error {
						c.PrizeAmount++
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, 9+writers, got.PrizeAmount)
			assert.Equal(t, int64(writers), got.Version)
		})
	}
}
