package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Cat!", "the cat"},
		{"the   cat", "the cat"},
		{"  Fox.  ", "fox"},
		{"don't", "dont"},
		{"over-the-top", "overthetop"},
		{"a\tb\nc", "a b c"},
		{"!!!", ""},
		{"snake_case", "snake_case"},
		{"Привет, Мир!", "привет мир"},
		{"Café", "café"},
		{"東京 42", "東京 42"},
		{"a\u00a0b", "a b"},
		{"&", ""},
		{"--", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "normalize must be idempotent")
		})
	}

	assert.Equal(t, Normalize("The Cat!"), Normalize("the   cat"))
}

func TestWordPrice(t *testing.T) {
	tests := []struct {
		name  string
		prize int
		words int
		want  int
	}{
		{"even split", 10, 5, 2},
		{"floors", 11, 5, 2},
		{"zero prize", 0, 5, 1},
		{"prize below word count", 3, 5, 1},
		{"single word", 7, 1, 7},
		{"no words guard", 10, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WordPrice(tt.prize, tt.words))
		})
	}
}

func TestSceneWithout(t *testing.T) {
	words := []string{"a", "red", "fox", "jumps", "over"}
	assert.Equal(t, "a red jumps over", SceneWithout(words, 2))
	assert.Equal(t, "red fox jumps over", SceneWithout(words, 0))
	assert.Equal(t, "a red fox jumps over", SceneWithout(words, 9))
}

func TestRefillPolicy_Evaluate(t *testing.T) {
	policy := RefillPolicy{Threshold: 20, Amount: 5, Interval: 6 * time.Hour}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time { ts := now.Add(-d); return &ts }

	t.Run("at threshold is not eligible", func(t *testing.T) {
		d := policy.Evaluate(20, nil, now)
		assert.False(t, d.Eligible)
		assert.False(t, d.Changed)
		assert.Zero(t, d.Grant)
	})

	t.Run("above threshold clears armed timer", func(t *testing.T) {
		d := policy.Evaluate(25, ago(time.Hour), now)
		assert.False(t, d.Eligible)
		assert.True(t, d.Changed)
		assert.Nil(t, d.LastRefillAt)
	})

	t.Run("first observation below threshold arms", func(t *testing.T) {
		d := policy.Evaluate(3, nil, now)
		assert.True(t, d.Eligible)
		assert.True(t, d.Changed)
		assert.Zero(t, d.Grant)
		require.NotNil(t, d.LastRefillAt)
		assert.Equal(t, now, *d.LastRefillAt)
		assert.Equal(t, now.Add(6*time.Hour), *d.NextRefillAt)
	})

	t.Run("waiting for interval", func(t *testing.T) {
		d := policy.Evaluate(3, ago(2*time.Hour), now)
		assert.True(t, d.Eligible)
		assert.False(t, d.Changed)
		assert.Zero(t, d.Grant)
		assert.Equal(t, now.Add(4*time.Hour), *d.NextRefillAt)
	})

	t.Run("fires with full amount", func(t *testing.T) {
		d := policy.Evaluate(3, ago(6*time.Hour), now)
		assert.Equal(t, 5, d.Grant)
		assert.True(t, d.Changed)
		assert.Equal(t, now, *d.LastRefillAt)
	})

	t.Run("fires only up to threshold", func(t *testing.T) {
		d := policy.Evaluate(18, ago(7*time.Hour), now)
		assert.Equal(t, 2, d.Grant)
	})
}
