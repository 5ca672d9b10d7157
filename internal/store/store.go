// Package store persists challenge records keyed by id.
//
// Update is compare-and-set: the mutation closure may run more than once
// and must not have side effects outside the challenge it is given. If the
// closure returns an error nothing is written and the error is returned
// unchanged.
package store

import (
	"encoding/json"
	"fmt"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/models"
)

// MutateFunc changes a challenge in place.
type MutateFunc func(c *models.Challenge) error

func notFound(id string) error {
	return gameerr.NotFound(fmt.Sprintf("challenge %q not found", id))
}

func encode(c *models.Challenge) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode challenge %s: %w", c.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*models.Challenge, error) {
	var c models.Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	if c.WordImages == nil {
		c.WordImages = map[int]string{}
	}
	for i := range c.Words {
		if c.Words[i].GuessedBy == nil {
			c.Words[i].GuessedBy = map[string]bool{}
		}
	}
	return &c, nil
}
