package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/models"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// PurchaseService records word hint purchases. The unique key on
// (challenge_id, word_index) decides the winner when several processes race
// for the same word.
type PurchaseService struct {
	db *sql.DB
}

func NewPurchaseService(db *sql.DB) *PurchaseService {
	return &PurchaseService{db: db}
}

func (s *PurchaseService) Record(ctx context.Context, p models.UserPurchase) error {
	query := `INSERT INTO word_purchases (challenge_id, word_index, user_id, purchased_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, p.ChallengeID, p.WordIndex, p.UserID, p.PurchaseTime.UTC())

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return gameerr.Wrap(gameerr.CodeAlreadyPurchased, "Word already purchased", err)
	}
	if err != nil {
		return fmt.Errorf("failed to save purchase: %w", err)
	}
	return nil
}

// Release deletes a purchase whose challenge update could not be applied.
func (s *PurchaseService) Release(ctx context.Context, p models.UserPurchase) error {
	query := `DELETE FROM word_purchases WHERE challenge_id = ? AND word_index = ? AND user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, p.ChallengeID, p.WordIndex, p.UserID); err != nil {
		return fmt.Errorf("failed to release purchase: %w", err)
	}
	return nil
}

// Find returns the purchase for a word, or nil when nobody bought it.
func (s *PurchaseService) Find(ctx context.Context, challengeID string, wordIndex int) (*models.UserPurchase, error) {
	p := models.UserPurchase{ChallengeID: challengeID, WordIndex: wordIndex}
	query := `SELECT user_id, purchased_at FROM word_purchases WHERE challenge_id = ? AND word_index = ?`
	err := s.db.QueryRowContext(ctx, query, challengeID, wordIndex).Scan(&p.UserID, &p.PurchaseTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find purchase: %w", err)
	}
	return &p, nil
}

// ListByUser returns every purchase a user made, newest first.
func (s *PurchaseService) ListByUser(ctx context.Context, userID string) ([]models.UserPurchase, error) {
	query := `SELECT challenge_id, word_index, user_id, purchased_at FROM word_purchases WHERE user_id = ? ORDER BY purchased_at DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	purchases := []models.UserPurchase{}
	for rows.Next() {
		var p models.UserPurchase
		if err := rows.Scan(&p.ChallengeID, &p.WordIndex, &p.UserID, &p.PurchaseTime); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}
