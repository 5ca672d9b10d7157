package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/identity"
	"phrasehunt/internal/imagegen"
	appmetrics "phrasehunt/internal/metrics"
	"phrasehunt/internal/middleware/ratelimit"
	"phrasehunt/internal/models"
	"phrasehunt/internal/store"
)

type ChallengeStore interface {
	List(ctx context.Context) ([]*models.Challenge, error)
	Get(ctx context.Context, id string) (*models.Challenge, error)
	Put(ctx context.Context, c *models.Challenge) error
	Update(ctx context.Context, id string, fn store.MutateFunc) (*models.Challenge, error)
}

type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string, amount int) error
	Credit(ctx context.Context, userID string, amount int) error
	// Payout credits a challenge prize at most once per challenge.
	Payout(ctx context.Context, challengeID, userID string, amount int) error
}

type PurchaseRecorder interface {
	Record(ctx context.Context, p models.UserPurchase) error
	Release(ctx context.Context, p models.UserPurchase) error
	Find(ctx context.Context, challengeID string, wordIndex int) (*models.UserPurchase, error)
}

type CreationLimiter interface {
	Allow(ctx context.Context, userID string) ratelimit.CreationQuota
}

// GameDeps are the collaborators of the rules engine. Directory may be nil.
type GameDeps struct {
	Store     ChallengeStore
	Ledger    Ledger
	Purchases PurchaseRecorder
	Limiter   CreationLimiter
	Images    imagegen.Generator
	Directory identity.Directory
}

type GameConfig struct {
	MaxSentenceWords int
	ImageTimeout     time.Duration
}

// Sentinels returned from store mutations to abort the write.
var (
	errUnchanged = errors.New("nothing to write")
	errMismatch  = errors.New("guess does not match")
	errSettle    = errors.New("prize payout pending")
)

// GameService is the challenge rules engine. Mutations of one challenge are
// serialized in process; the store's compare-and-set covers other processes.
// Ledger calls happen only after the challenge write that justifies them. A
// prize whose payout fails stays pending on the challenge and is settled on
// the winner's next guess.
type GameService struct {
	store     ChallengeStore
	ledger    Ledger
	purchases PurchaseRecorder
	limiter   CreationLimiter
	images    imagegen.Generator
	directory identity.Directory
	cfg       GameConfig
	log       *logrus.Entry

	locks *keyedMutex
	jobs  sync.WaitGroup
	now   func() time.Time
}

func NewGameService(deps GameDeps, cfg GameConfig, log *logrus.Entry) *GameService {
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 90 * time.Second
	}
	return &GameService{
		store:     deps.Store,
		ledger:    deps.Ledger,
		purchases: deps.Purchases,
		limiter:   deps.Limiter,
		images:    deps.Images,
		directory: deps.Directory,
		cfg:       cfg,
		log:       log,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

func (s *GameService) CreateChallenge(ctx context.Context, creatorID, sentence string, prizeAmount int) (*models.Challenge, error) {
	if creatorID == "" {
		return nil, gameerr.Validation("User ID required")
	}
	tokens := strings.Fields(sentence)
	if len(tokens) == 0 {
		return nil, gameerr.Validation("Sentence is required")
	}
	if len(tokens) > s.cfg.MaxSentenceWords {
		return nil, gameerr.Validation(fmt.Sprintf("Sentence must have at most %d words", s.cfg.MaxSentenceWords))
	}
	for _, tok := range tokens {
		if Normalize(tok) == "" {
			return nil, gameerr.WithMetadata(gameerr.CodeValidation,
				fmt.Sprintf("Word %q has no letters or digits and cannot be guessed", tok),
				map[string]any{"field": "sentence"})
		}
	}
	if prizeAmount < 0 {
		return nil, gameerr.Validation("Prize amount must not be negative")
	}

	quota := s.limiter.Allow(ctx, creatorID)
	if !quota.Allowed {
		return nil, gameerr.WithMetadata(gameerr.CodeRateLimited, quota.Reason, map[string]any{
			"minuteRemaining": quota.MinuteRemaining,
			"dayRemaining":    quota.DayRemaining,
			"resetTime":       quota.ResetTime.UTC(),
		})
	}

	if err := s.ledger.Debit(ctx, creatorID, prizeAmount); err != nil {
		return nil, err
	}

	words := make([]models.Word, len(tokens))
	for i, tok := range tokens {
		words[i] = models.Word{
			Text:      tok,
			Position:  i,
			State:     models.WordLocked,
			GuessedBy: map[string]bool{},
		}
	}
	c := &models.Challenge{
		ID:          uuid.NewString(),
		Sentence:    strings.Join(tokens, " "),
		PrizeAmount: prizeAmount,
		Words:       words,
		WordImages:  map[int]string{},
		CreatedBy:   creatorID,
		IsActive:    true,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.store.Put(ctx, c); err != nil {
		s.refund(ctx, creatorID, prizeAmount, "challenge write failed")
		return nil, err
	}

	appmetrics.ChallengesCreatedTotal.Inc()
	s.log.WithFields(logrus.Fields{
		"challenge_id": c.ID,
		"created_by":   creatorID,
		"prize":        prizeAmount,
		"words":        len(words),
	}).Info("challenge created")

	s.spawn(func(ctx context.Context) { s.generateMainImage(ctx, c.ID, c.Sentence) })
	return c, nil
}

// GenerateChallengeImage returns the challenge image, rendering it now if the
// background job has not produced one yet.
func (s *GameService) GenerateChallengeImage(ctx context.Context, challengeID string) (string, error) {
	c, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if c.ImageURL != nil {
		return *c.ImageURL, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.ImageTimeout)
	defer cancel()
	url, err := s.render(genCtx, c.Sentence)
	if err != nil {
		kind := imagegen.KindOf(err)
		return "", &gameerr.Error{
			Code:     gameerr.CodeExternalService,
			Message:  "Failed to generate image",
			Metadata: map[string]any{"kind": string(kind)},
			Cause:    err,
		}
	}

	unlock := s.locks.Lock(challengeID)
	defer unlock()
	updated, err := s.store.Update(ctx, challengeID, func(c *models.Challenge) error {
		if c.ImageURL != nil {
			return errUnchanged
		}
		c.ImageURL = &url
		return nil
	})
	if errors.Is(err, errUnchanged) {
		current, err := s.store.Get(ctx, challengeID)
		if err != nil {
			return "", err
		}
		return *current.ImageURL, nil
	}
	if err != nil {
		return "", err
	}
	return *updated.ImageURL, nil
}

func (s *GameService) PurchaseWord(ctx context.Context, challengeID, userID string, wordIndex int) (result *models.PurchaseResult, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = strings.ToLower(string(gameerr.CodeOf(err)))
		}
		appmetrics.WordPurchasesTotal.WithLabelValues(outcome).Inc()
	}()

	if userID == "" {
		return nil, gameerr.Validation("User ID required")
	}

	unlock := s.locks.Lock(challengeID)
	defer unlock()

	c, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if err := checkPurchasable(c, wordIndex); err != nil {
		return nil, err
	}

	price := WordPrice(c.PrizeAmount, len(c.Words))
	if err := s.ledger.Debit(ctx, userID, price); err != nil {
		return nil, err
	}

	purchase := models.UserPurchase{
		UserID:       userID,
		ChallengeID:  challengeID,
		WordIndex:    wordIndex,
		PurchaseTime: s.now().UTC(),
	}
	if err := s.purchases.Record(ctx, purchase); err != nil {
		s.refund(ctx, userID, price, "purchase record failed")
		if errors.Is(err, gameerr.ErrAlreadyPurchased) {
			owner, findErr := s.purchases.Find(ctx, challengeID, wordIndex)
			if findErr == nil && owner != nil {
				return nil, alreadyPurchased(&owner.UserID)
			}
			return nil, alreadyPurchased(nil)
		}
		return nil, err
	}

	updated, err := s.store.Update(ctx, challengeID, func(c *models.Challenge) error {
		if err := checkPurchasable(c, wordIndex); err != nil {
			return err
		}
		w := &c.Words[wordIndex]
		w.State = models.WordGenerating
		w.PurchasedBy = &userID
		w.PurchaseTime = &purchase.PurchaseTime
		return nil
	})
	if err != nil {
		s.refund(ctx, userID, price, "challenge update failed")
		if relErr := s.purchases.Release(ctx, purchase); relErr != nil {
			s.log.WithError(relErr).WithField("challenge_id", challengeID).Error("failed to release purchase")
		}
		return nil, err
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("balance lookup after purchase failed")
	}

	s.log.WithFields(logrus.Fields{
		"challenge_id": challengeID,
		"word_index":   wordIndex,
		"user_id":      userID,
		"price":        price,
	}).Info("word purchased")

	scene := SceneWithout(wordTexts(updated), wordIndex)
	s.spawn(func(ctx context.Context) { s.generateHint(ctx, challengeID, wordIndex, scene) })

	return &models.PurchaseResult{
		ChallengeID: challengeID,
		WordIndex:   wordIndex,
		WordLength:  utf8.RuneCountInString(updated.Words[wordIndex].Text),
		Cost:        price,
		Balance:     balance,
	}, nil
}

func (s *GameService) GuessWord(ctx context.Context, challengeID, userID string, wordIndex int, guess string) (*models.GuessResult, error) {
	if userID == "" {
		return nil, gameerr.Validation("User ID required")
	}
	normalized := Normalize(guess)
	if normalized == "" {
		return nil, gameerr.Validation("Guess is required")
	}

	unlock := s.locks.Lock(challengeID)
	defer unlock()

	var won, completed bool
	updated, err := s.store.Update(ctx, challengeID, func(c *models.Challenge) error {
		won, completed = false, false
		if wordIndex < 0 || wordIndex >= len(c.Words) {
			return gameerr.Validation("Invalid word index")
		}
		w := &c.Words[wordIndex]
		if w.HasGuessed(userID) {
			if c.PrizePending(userID) {
				return errSettle
			}
			return gameerr.New(gameerr.CodeAlreadyGuessed, "You already guessed this word")
		}
		if Normalize(w.Text) != normalized {
			return errMismatch
		}
		w.GuessedBy[userID] = true

		completed = c.GuessedAll(userID)
		if completed && !c.IsSolved() {
			c.SolvedBy = &userID
			c.IsActive = false
			won = true
		}
		return nil
	})
	if errors.Is(err, errMismatch) {
		appmetrics.GuessesTotal.WithLabelValues("word", "incorrect").Inc()
		return &models.GuessResult{
			Correct: false,
			Message: "Incorrect guess for this word. Try again!",
			Hint:    "Your guess: " + strings.TrimSpace(guess),
		}, nil
	}
	if errors.Is(err, errSettle) {
		if updated, err = s.store.Get(ctx, challengeID); err != nil {
			return nil, err
		}
		won, completed = true, true
	}
	if err != nil {
		return nil, err
	}

	word := updated.Words[wordIndex].Text
	result := &models.GuessResult{
		Correct:         true,
		Message:         fmt.Sprintf("Correct! You guessed %q.", word),
		WordText:        word,
		ChallengeSolved: completed,
	}
	switch {
	case won:
		if err := s.payPrize(ctx, updated, userID); err != nil {
			return nil, err
		}
		result.Reward = updated.PrizeAmount
		result.Solution = updated.Sentence
		result.Message = fmt.Sprintf("Congratulations! You solved the challenge and won %d GC!", updated.PrizeAmount)
	case completed:
		result.Solution = updated.Sentence
		result.Message = "Congratulations! You guessed every word, but this challenge was already solved."
	}

	appmetrics.GuessesTotal.WithLabelValues("word", "correct").Inc()
	return result, nil
}

// GuessSentence accepts a full-sentence guess as guessing every word at once.
// It settles through the same first-solver path as GuessWord.
func (s *GameService) GuessSentence(ctx context.Context, challengeID, userID, guess string) (*models.GuessResult, error) {
	if userID == "" {
		return nil, gameerr.Validation("User ID required")
	}
	normalized := Normalize(guess)
	if normalized == "" {
		return nil, gameerr.Validation("Guess is required")
	}

	unlock := s.locks.Lock(challengeID)
	defer unlock()

	var solution string
	updated, err := s.store.Update(ctx, challengeID, func(c *models.Challenge) error {
		solution = c.Sentence
		if Normalize(c.Sentence) != normalized {
			return errMismatch
		}
		if c.IsSolved() {
			if c.PrizePending(userID) {
				return errSettle
			}
			return errUnchanged
		}
		for i := range c.Words {
			c.Words[i].GuessedBy[userID] = true
		}
		c.SolvedBy = &userID
		c.IsActive = false
		return nil
	})
	if errors.Is(err, errMismatch) {
		appmetrics.GuessesTotal.WithLabelValues("sentence", "incorrect").Inc()
		return &models.GuessResult{
			Correct: false,
			Message: "Incorrect guess. Try again!",
			Hint:    "Your guess: " + strings.TrimSpace(guess),
		}, nil
	}
	result := &models.GuessResult{
		Correct:         true,
		ChallengeSolved: true,
		Solution:        solution,
		Message:         "Correct! But this challenge has already been solved.",
	}
	if errors.Is(err, errSettle) {
		updated, err = s.store.Get(ctx, challengeID)
	}
	switch {
	case errors.Is(err, errUnchanged):
	case err != nil:
		return nil, err
	default:
		if err := s.payPrize(ctx, updated, userID); err != nil {
			return nil, err
		}
		result.Reward = updated.PrizeAmount
		result.Message = fmt.Sprintf("Congratulations! You solved the challenge and won %d GC!", updated.PrizeAmount)
	}

	appmetrics.GuessesTotal.WithLabelValues("sentence", "correct").Inc()
	return result, nil
}

func (s *GameService) GetChallenge(ctx context.Context, challengeID, viewerID string) (*models.ChallengeView, error) {
	c, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	return models.NewChallengeView(c, viewerID, WordPrice(c.PrizeAmount, len(c.Words)), s.displayInfo(ctx, c.CreatedBy)), nil
}

// ListChallenges returns every challenge redacted for viewerID, newest first.
func (s *GameService) ListChallenges(ctx context.Context, viewerID string) ([]*models.ChallengeView, error) {
	challenges, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	creators := map[string]*models.DisplayInfo{}
	views := make([]*models.ChallengeView, 0, len(challenges))
	for _, c := range challenges {
		info, ok := creators[c.CreatedBy]
		if !ok {
			info = s.displayInfo(ctx, c.CreatedBy)
			creators[c.CreatedBy] = info
		}
		views = append(views, models.NewChallengeView(c, viewerID, WordPrice(c.PrizeAmount, len(c.Words)), info))
	}
	return views, nil
}

// Wait blocks until background image jobs finish or ctx is done.
func (s *GameService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GameService) spawn(job func(ctx context.Context)) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ImageTimeout)
		defer cancel()
		job(ctx)
	}()
}

func (s *GameService) render(ctx context.Context, scene string) (string, error) {
	start := time.Now()
	url, err := s.images.Generate(ctx, scene)
	outcome := "success"
	if err != nil {
		outcome = string(imagegen.KindOf(err))
	}
	appmetrics.ImageGenerationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return url, err
}

func (s *GameService) generateMainImage(ctx context.Context, challengeID, sentence string) {
	log := s.log.WithField("challenge_id", challengeID)

	url, err := s.render(ctx, sentence)
	if err != nil {
		log.WithError(err).WithField("kind", imagegen.KindOf(err)).Warn("challenge image generation failed")
		return
	}

	unlock := s.locks.Lock(challengeID)
	defer unlock()
	_, err = s.store.Update(context.Background(), challengeID, func(c *models.Challenge) error {
		if c.ImageURL != nil {
			return errUnchanged
		}
		c.ImageURL = &url
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		log.WithError(err).Error("failed to store challenge image")
	}
}

func (s *GameService) generateHint(ctx context.Context, challengeID string, wordIndex int, scene string) {
	log := s.log.WithFields(logrus.Fields{"challenge_id": challengeID, "word_index": wordIndex})

	url, genErr := s.render(ctx, scene)
	if genErr != nil {
		log.WithError(genErr).WithField("kind", imagegen.KindOf(genErr)).Warn("hint image generation failed")
	}

	unlock := s.locks.Lock(challengeID)
	defer unlock()
	_, err := s.store.Update(context.Background(), challengeID, func(c *models.Challenge) error {
		w := &c.Words[wordIndex]
		if w.State != models.WordGenerating {
			return errUnchanged
		}
		if genErr != nil {
			w.State = models.WordFailed
			return nil
		}
		w.State = models.WordReady
		c.WordImages[wordIndex] = url
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		log.WithError(err).Error("failed to store hint image result")
	}
}

// payPrize pays the winner of c and marks the prize paid. The caller holds
// the challenge lock.
func (s *GameService) payPrize(ctx context.Context, c *models.Challenge, winnerID string) error {
	log := s.log.WithFields(logrus.Fields{
		"challenge_id": c.ID,
		"winner":       winnerID,
		"prize":        c.PrizeAmount,
	})
	if err := s.ledger.Payout(ctx, c.ID, winnerID, c.PrizeAmount); err != nil {
		log.WithError(err).Error("challenge solved but prize payout failed")
		return gameerr.Wrap(gameerr.CodeInternal,
			"Challenge solved but the prize payout failed. Guess again to collect it.", err)
	}

	_, err := s.store.Update(ctx, c.ID, func(cur *models.Challenge) error {
		if cur.PrizePaid {
			return errUnchanged
		}
		cur.PrizePaid = true
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		log.WithError(err).Warn("failed to mark prize paid")
	}

	appmetrics.PrizesPaidTotal.Add(float64(c.PrizeAmount))
	log.Info("challenge solved")
	return nil
}

func (s *GameService) refund(ctx context.Context, userID string, amount int, reason string) {
	if amount <= 0 {
		return
	}
	if err := s.ledger.Credit(ctx, userID, amount); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount,
			"reason":  reason,
		}).Error("refund failed")
	}
}

func (s *GameService) displayInfo(ctx context.Context, userID string) *models.DisplayInfo {
	if s.directory == nil {
		return nil
	}
	info, err := s.directory.DisplayInfo(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Debug("display info lookup failed")
		return nil
	}
	return info
}

func checkPurchasable(c *models.Challenge, wordIndex int) error {
	if wordIndex < 0 || wordIndex >= len(c.Words) {
		return gameerr.Validation("Invalid word index")
	}
	if !c.IsActive {
		return gameerr.New(gameerr.CodeChallengeClosed, "Challenge is no longer active")
	}
	if w := &c.Words[wordIndex]; w.IsPurchased() {
		return alreadyPurchased(w.PurchasedBy)
	}
	return nil
}

func alreadyPurchased(owner *string) error {
	meta := map[string]any{}
	if owner != nil {
		meta["purchasedBy"] = *owner
	}
	return gameerr.WithMetadata(gameerr.CodeAlreadyPurchased, "Word already purchased by another player", meta)
}

func wordTexts(c *models.Challenge) []string {
	texts := make([]string, len(c.Words))
	for i, w := range c.Words {
		texts[i] = w.Text
	}
	return texts
}
