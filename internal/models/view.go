package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// WordView is the client-visible shape of a word. Legacy flags are derived
// from the word state.
type WordView struct {
	Text             string     `json:"text"`
	Length           int        `json:"length"`
	Position         int        `json:"position"`
	IsPurchased      bool       `json:"isPurchased"`
	IsGenerating     bool       `json:"isGenerating"`
	ImageReady       bool       `json:"imageReady"`
	GenerationFailed bool       `json:"generationFailed"`
	PurchaseTime     *time.Time `json:"purchaseTime"`
	PurchasedByMe    bool       `json:"purchasedByMe"`
	GuessedByMe      bool       `json:"guessedByMe"`
}

type ChallengeView struct {
	ID                    string         `json:"id"`
	Sentence              string         `json:"sentence,omitempty"`
	ImageURL              *string        `json:"imageUrl"`
	PrizeAmount           int            `json:"prizeAmount"`
	WordPrice             int            `json:"wordPrice"`
	Words                 []WordView     `json:"words"`
	WordImages            map[int]string `json:"wordImages"`
	CreatedBy             string         `json:"createdBy"`
	CreatedByDisplayName  string         `json:"createdByDisplayName,omitempty"`
	CreatedByProfileImage *string        `json:"createdByProfileImage,omitempty"`
	SolvedBy              *string        `json:"solvedBy"`
	IsActive              bool           `json:"isActive"`
	CreatedAt             time.Time      `json:"createdAt"`
}

// MaskWord returns a placeholder with the same number of characters as text.
func MaskWord(text string) string {
	return strings.Repeat("*", utf8.RuneCountInString(text))
}

// NewChallengeView redacts c for viewerID. Word text is visible when the
// viewer purchased or guessed that word, or once the challenge is solved.
// Other purchasers and guessers are never exposed. Hint images are visible
// to their purchaser only.
func NewChallengeView(c *Challenge, viewerID string, wordPrice int, creator *DisplayInfo) *ChallengeView {
	solved := c.IsSolved()
	view := &ChallengeView{
		ID:          c.ID,
		ImageURL:    c.ImageURL,
		PrizeAmount: c.PrizeAmount,
		WordPrice:   wordPrice,
		Words:       make([]WordView, len(c.Words)),
		WordImages:  map[int]string{},
		CreatedBy:   c.CreatedBy,
		SolvedBy:    c.SolvedBy,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
	if solved {
		view.Sentence = c.Sentence
	}
	if creator != nil {
		view.CreatedByDisplayName = creator.DisplayName
		view.CreatedByProfileImage = creator.ProfileImageURL
	}

	for i := range c.Words {
		w := &c.Words[i]
		mine := viewerID != "" && w.PurchasedBy != nil && *w.PurchasedBy == viewerID
		guessed := viewerID != "" && w.HasGuessed(viewerID)

		text := MaskWord(w.Text)
		if mine || guessed || solved {
			text = w.Text
		}
		view.Words[i] = WordView{
			Text:             text,
			Length:           utf8.RuneCountInString(w.Text),
			Position:         w.Position,
			IsPurchased:      w.IsPurchased(),
			IsGenerating:     w.State == WordGenerating,
			ImageReady:       w.State == WordReady,
			GenerationFailed: w.State == WordFailed,
			PurchaseTime:     w.PurchaseTime,
			PurchasedByMe:    mine,
			GuessedByMe:      guessed,
		}
		if url, ok := c.WordImages[i]; ok && (mine || solved) {
			view.WordImages[i] = url
		}
	}
	return view
}
