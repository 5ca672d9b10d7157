package models

import (
	"time"
)

// WordState is the purchase-side lifecycle of a word.
type WordState string

const (
	WordLocked     WordState = "locked"
	WordGenerating WordState = "generating"
	WordReady      WordState = "ready"
	WordFailed     WordState = "failed"
)

type Word struct {
	Text         string          `json:"text"`
	Position     int             `json:"position"`
	State        WordState       `json:"state"`
	PurchasedBy  *string         `json:"purchasedBy"`
	PurchaseTime *time.Time      `json:"purchaseTime"`
	GuessedBy    map[string]bool `json:"guessedBy"`
}

// IsPurchased reports whether anyone has bought the hint for this word.
func (w *Word) IsPurchased() bool {
	return w.State != WordLocked && w.State != ""
}

// HasGuessed reports whether userID already guessed this word correctly.
func (w *Word) HasGuessed(userID string) bool {
	return w.GuessedBy[userID]
}

type Challenge struct {
	ID          string         `json:"id"`
	Sentence    string         `json:"sentence"`
	ImageURL    *string        `json:"imageUrl"`
	PrizeAmount int            `json:"prizeAmount"`
	Words       []Word         `json:"words"`
	WordImages  map[int]string `json:"wordImages"`
	CreatedBy   string         `json:"createdBy"`
	SolvedBy    *string        `json:"solvedBy"`
	PrizePaid   bool           `json:"prizePaid"`
	IsActive    bool           `json:"isActive"`
	CreatedAt   time.Time      `json:"createdAt"`
	Version     int64          `json:"version"`
}

// IsSolved reports whether the prize has been claimed.
func (c *Challenge) IsSolved() bool {
	return c.SolvedBy != nil
}

// PrizePending reports whether userID won the challenge but has not been paid.
func (c *Challenge) PrizePending(userID string) bool {
	return c.SolvedBy != nil && *c.SolvedBy == userID && !c.PrizePaid
}

// GuessedAll reports whether userID has guessed every word.
func (c *Challenge) GuessedAll(userID string) bool {
	for i := range c.Words {
		if !c.Words[i].HasGuessed(userID) {
			return false
		}
	}
	return true
}

type UserPurchase struct {
	UserID       string    `json:"userId" db:"user_id"`
	ChallengeID  string    `json:"challengeId" db:"challenge_id"`
	WordIndex    int       `json:"wordIndex" db:"word_index"`
	PurchaseTime time.Time `json:"purchaseTime" db:"purchased_at"`
}

type Account struct {
	UserID       string     `json:"user_id" db:"user_id"`
	Balance      int        `json:"balance" db:"balance"`
	LastRefillAt *time.Time `json:"last_refill_at" db:"last_refill_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

type DisplayInfo struct {
	DisplayName     string  `json:"displayName"`
	ProfileImageURL *string `json:"profileImageUrl"`
}

type RefillStatus struct {
	IsEligible      bool       `json:"isEligible"`
	CurrentCredits  int        `json:"currentCredits"`
	NextRefillAt    *time.Time `json:"nextRefillAt"`
	TimeUntilRefill int64      `json:"timeUntilRefill"` // milliseconds
}

type RefillResult struct {
	Success      bool       `json:"success"`
	CreditsAdded int        `json:"creditsAdded"`
	NewBalance   int        `json:"newBalance"`
	NextRefillAt *time.Time `json:"nextRefillAt"`
}

type PurchaseResult struct {
	ChallengeID string `json:"challengeId"`
	WordIndex   int    `json:"wordIndex"`
	WordLength  int    `json:"wordLength"`
	Cost        int    `json:"cost"`
	Balance     int    `json:"balance"`
}

type GuessResult struct {
	Correct         bool   `json:"correct"`
	Message         string `json:"message"`
	Reward          int    `json:"reward"`
	WordText        string `json:"wordText,omitempty"`
	ChallengeSolved bool   `json:"challengeSolved"`
	Solution        string `json:"solution,omitempty"`
	Hint            string `json:"hint,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
	Redis     string `json:"redis"`
}
