package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"phrasehunt/internal/gameerr"
	appmetrics "phrasehunt/internal/metrics"
	"phrasehunt/internal/models"
)

// CreditService is the MySQL-backed credit ledger. Balance changes are single
// conditional statements so concurrent debits can never take a balance
// below zero.
type CreditService struct {
	db             *sql.DB
	log            *logrus.Entry
	defaultCredits int
	policy         RefillPolicy
	now            func() time.Time
}

func NewCreditService(db *sql.DB, log *logrus.Entry, defaultCredits int, policy RefillPolicy) *CreditService {
	return &CreditService{
		db:             db,
		log:            log,
		defaultCredits: defaultCredits,
		policy:         policy,
		now:            time.Now,
	}
}

// ensureAccount creates the account with the starting balance on first use.
func (s *CreditService) ensureAccount(ctx context.Context, userID string) error {
	query := `INSERT IGNORE INTO accounts (user_id, balance) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, userID, s.defaultCredits); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *CreditService) Balance(ctx context.Context, userID string) (int, error) {
	if err := s.ensureAccount(ctx, userID); err != nil {
		return 0, err
	}

	var balance int
	query := `SELECT balance FROM accounts WHERE user_id = ?`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (s *CreditService) CanAfford(ctx context.Context, userID string, amount int) (bool, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Debit subtracts amount if and only if the balance covers it.
func (s *CreditService) Debit(ctx context.Context, userID string, amount int) error {
	if amount < 0 {
		return gameerr.Validation("debit amount must not be negative")
	}
	if amount == 0 {
		return nil
	}
	if err := s.ensureAccount(ctx, userID); err != nil {
		return err
	}

	query := `UPDATE accounts SET balance = balance - ? WHERE user_id = ? AND balance >= ?`
	res, err := s.db.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}
	if n == 0 {
		return gameerr.WithMetadata(gameerr.CodeInsufficientFunds, "Insufficient funds", map[string]any{
			"required": amount,
		})
	}
	return nil
}

func (s *CreditService) Credit(ctx context.Context, userID string, amount int) error {
	if amount < 0 {
		return gameerr.Validation("credit amount must not be negative")
	}
	if amount == 0 {
		return nil
	}
	if err := s.ensureAccount(ctx, userID); err != nil {
		return err
	}

	query := `UPDATE accounts SET balance = balance + ? WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("failed to credit credits: %w", err)
	}
	return nil
}

// Payout credits a challenge prize at most once. The payout row and the
// balance change commit together, so a failed payout can be retried and a
// repeated one is a no-op.
func (s *CreditService) Payout(ctx context.Context, challengeID, userID string, amount int) error {
	if amount < 0 {
		return gameerr.Validation("payout amount must not be negative")
	}
	if err := s.ensureAccount(ctx, userID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin payout: %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT IGNORE INTO prize_payouts (challenge_id, user_id, amount) VALUES (?, ?, ?)`
	res, err := tx.ExecContext(ctx, insert, challengeID, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to record payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record payout: %w", err)
	}
	if n == 0 {
		return nil
	}

	if amount > 0 {
		update := `UPDATE accounts SET balance = balance + ? WHERE user_id = ?`
		if _, err := tx.ExecContext(ctx, update, amount, userID); err != nil {
			return fmt.Errorf("failed to credit payout: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payout: %w", err)
	}
	return nil
}

func (s *CreditService) RefillMetadata(ctx context.Context, userID string) (*time.Time, error) {
	var last sql.NullTime
	query := `SELECT last_refill_at FROM accounts WHERE user_id = ?`
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refill metadata: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *CreditService) SetRefillMetadata(ctx context.Context, userID string, lastRefillAt *time.Time) error {
	var value any
	if lastRefillAt != nil {
		value = lastRefillAt.UTC()
	}
	query := `UPDATE accounts SET last_refill_at = ? WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, value, userID); err != nil {
		return fmt.Errorf("failed to set refill metadata: %w", err)
	}
	return nil
}

// RefillStatus reports eligibility without granting. Observing a low balance
// arms the timer; observing a healthy one clears it.
func (s *CreditService) RefillStatus(ctx context.Context, userID string) (*models.RefillStatus, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	last, err := s.RefillMetadata(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := s.policy.Evaluate(balance, last, now)
	status := &models.RefillStatus{
		IsEligible:     d.Eligible,
		CurrentCredits: balance,
	}
	if !d.Eligible {
		if d.Changed {
			if err := s.SetRefillMetadata(ctx, userID, nil); err != nil {
				return nil, err
			}
		}
		return status, nil
	}

	if d.Grant > 0 {
		// Due now; ProcessRefill consumes it.
		next := last.Add(s.policy.Interval)
		status.NextRefillAt = &next
		return status, nil
	}
	if d.Changed {
		if err := s.SetRefillMetadata(ctx, userID, d.LastRefillAt); err != nil {
			return nil, err
		}
	}
	status.NextRefillAt = d.NextRefillAt
	if wait := d.NextRefillAt.Sub(now); wait > 0 {
		status.TimeUntilRefill = wait.Milliseconds()
	}
	return status, nil
}

// ProcessRefill grants a due refill inside a row-locked transaction.
func (s *CreditService) ProcessRefill(ctx context.Context, userID string) (*models.RefillResult, error) {
	if err := s.ensureAccount(ctx, userID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin refill: %w", err)
	}
	defer tx.Rollback()

	var (
		balance int
		last    sql.NullTime
	)
	query := `SELECT balance, last_refill_at FROM accounts WHERE user_id = ? FOR UPDATE`
	if err := tx.QueryRowContext(ctx, query, userID).Scan(&balance, &last); err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	var lastPtr *time.Time
	if last.Valid {
		lastPtr = &last.Time
	}
	d := s.policy.Evaluate(balance, lastPtr, s.now())

	switch {
	case d.Grant > 0:
		update := `UPDATE accounts SET balance = balance + ?, last_refill_at = ? WHERE user_id = ?`
		if _, err := tx.ExecContext(ctx, update, d.Grant, d.LastRefillAt.UTC(), userID); err != nil {
			return nil, fmt.Errorf("failed to apply refill: %w", err)
		}
	case d.Changed:
		var value any
		if d.LastRefillAt != nil {
			value = d.LastRefillAt.UTC()
		}
		update := `UPDATE accounts SET last_refill_at = ? WHERE user_id = ?`
		if _, err := tx.ExecContext(ctx, update, value, userID); err != nil {
			return nil, fmt.Errorf("failed to update refill timer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refill: %w", err)
	}

	if d.Grant > 0 {
		appmetrics.RefillCreditsTotal.Add(float64(d.Grant))
		s.log.WithFields(logrus.Fields{
			"user_id": userID,
			"granted": d.Grant,
			"balance": balance + d.Grant,
		}).Info("credits refilled")
	}

	return &models.RefillResult{
		Success:      d.Grant > 0,
		CreditsAdded: d.Grant,
		NewBalance:   balance + d.Grant,
		NextRefillAt: d.NextRefillAt,
	}, nil
}
