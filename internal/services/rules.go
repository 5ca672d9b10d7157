package services

import (
	"regexp"
	"strings"
	"time"
)

var (
	nonWord    = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s\p{Z}]`)
	whitespace = regexp.MustCompile(`[\s\p{Z}]+`)
)

// Normalize lowercases, strips punctuation and collapses whitespace so that
// guesses compare equal regardless of case, punctuation or spacing. Letters
// and digits of any script are kept.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = nonWord.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// WordPrice is the per-word hint price: prize split evenly, never below 1.
func WordPrice(prizeAmount, wordCount int) int {
	if wordCount <= 0 {
		return 1
	}
	price := prizeAmount / wordCount
	if price < 1 {
		return 1
	}
	return price
}

// SceneWithout returns the sentence with the word at index removed.
func SceneWithout(words []string, index int) string {
	kept := make([]string, 0, len(words))
	for i, w := range words {
		if i != index {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// RefillPolicy tops up low balances on a timer.
type RefillPolicy struct {
	Threshold int
	Amount    int
	Interval  time.Duration
}

// RefillDecision is what the ledger should do after observing a balance.
type RefillDecision struct {
	Eligible bool
	Grant    int
	// LastRefillAt is the timestamp to persist; nil clears it.
	LastRefillAt *time.Time
	Changed      bool
	NextRefillAt *time.Time
}

// Evaluate applies the policy. Below the threshold the timer is armed on first
// sight and fires once Interval has elapsed, granting up to Threshold but
// never over it. At or above the threshold the timer is cleared so dropping
// below again re-arms it.
func (p RefillPolicy) Evaluate(balance int, lastRefillAt *time.Time, now time.Time) RefillDecision {
	if balance >= p.Threshold {
		return RefillDecision{Changed: lastRefillAt != nil}
	}

	if lastRefillAt == nil {
		next := now.Add(p.Interval)
		return RefillDecision{Eligible: true, LastRefillAt: &now, Changed: true, NextRefillAt: &next}
	}

	if now.Sub(*lastRefillAt) < p.Interval {
		next := lastRefillAt.Add(p.Interval)
		return RefillDecision{Eligible: true, LastRefillAt: lastRefillAt, NextRefillAt: &next}
	}

	grant := p.Threshold - balance
	if p.Amount < grant {
		grant = p.Amount
	}
	next := now.Add(p.Interval)
	return RefillDecision{
		Eligible:     true,
		Grant:        grant,
		LastRefillAt: &now,
		Changed:      true,
		NextRefillAt: &next,
	}
}
