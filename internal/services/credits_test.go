package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/logger"
)

var testPolicy = RefillPolicy{Threshold: 20, Amount: 5, Interval: 6 * time.Hour}

func newCreditService(t *testing.T, now time.Time) (*CreditService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewCreditService(db, logger.Discard(), 20, testPolicy)
	svc.now = func() time.Time { return now }
	return svc, mock
}

func expectEnsure(mock sqlmock.Sqlmock, userID string) {
	mock.ExpectExec("INSERT IGNORE INTO accounts").
		WithArgs(userID, 20).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestCreditService_Balance(t *testing.T) {
	svc, mock := newCreditService(t, time.Now())

	expectEnsure(mock, "alice")
	mock.ExpectQuery("SELECT balance FROM accounts").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(20))

	balance, err := svc.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 20, balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditService_Debit(t *testing.T) {
	debit := regexp.QuoteMeta(`UPDATE accounts SET balance = balance - ? WHERE user_id = ? AND balance >= ?`)

	t.Run("success", func(t *testing.T) {
		svc, mock := newCreditService(t, time.Now())
		expectEnsure(mock, "alice")
		mock.ExpectExec(debit).WithArgs(2, "alice", 2).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, svc.Debit(context.Background(), "alice", 2))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		svc, mock := newCreditService(t, time.Now())
		expectEnsure(mock, "alice")
		mock.ExpectExec(debit).WithArgs(10, "alice", 10).WillReturnResult(sqlmock.NewResult(0, 0))

		err := svc.Debit(context.Background(), "alice", 10)
		assert.True(t, errors.Is(err, gameerr.ErrInsufficientFunds))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero is a no-op", func(t *testing.T) {
		svc, mock := newCreditService(t, time.Now())
		require.NoError(t, svc.Debit(context.Background(), "alice", 0))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative is rejected", func(t *testing.T) {
		svc, _ := newCreditService(t, time.Now())
		err := svc.Debit(context.Background(), "alice", -1)
		assert.True(t, errors.Is(err, gameerr.ErrValidation))
	})

	t.Run("database error", func(t *testing.T) {
		svc, mock := newCreditService(t, time.Now())
		expectEnsure(mock, "alice")
		mock.ExpectExec(debit).WillReturnError(errors.New("deadlock"))

		err := svc.Debit(context.Background(), "alice", 1)
		assert.Error(t, err)
		assert.Equal(t, gameerr.CodeInternal, gameerr.CodeOf(err))
	})
}

func TestCreditService_Credit(t *testing.T) {
	svc, mock := newCreditService(t, time.Now())

	expectEnsure(mock, "bob")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET balance = balance + ? WHERE user_id = ?`)).
		WithArgs(10, "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.Credit(context.Background(), "bob", 10))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditService_Payout(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT IGNORE INTO prize_payouts (challenge_id, user_id, amount) VALUES (?, ?, ?)`)
	credit := regexp.QuoteMeta(`UPDATE accounts SET balance = balance + ? WHERE user_id = ?`)

	t.Run("first payout credits", func(t *testing.T) {
		svc, mock := newCreditService(t, time.Now())
		expectEnsure(mock, "alice")
		mock.ExpectBegin()
		mock.ExpectExec(insert).WithArgs("c1", "alice", 10).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(credit).WithArgs(10, "alice").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.Payout(context.Background(), "c1", "alice", 10))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeat is a no-op", func(t *testing.T) {
		svc, mock := newCreditService(t, time.Now())
		expectEnsure(mock, "alice")
		mock.ExpectBegin()
		mock.ExpectExec(insert).WithArgs("c1", "alice", 10).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		require.NoError(t, svc.Payout(context.Background(), "c1", "alice", 10))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit failure rolls back the payout row", func(t *testing.T) {
		svc, mock := newCreditService(t, time.Now())
		expectEnsure(mock, "alice")
		mock.ExpectBegin()
		mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(credit).WillReturnError(errors.New("lock wait timeout"))
		mock.ExpectRollback()

		err := svc.Payout(context.Background(), "c1", "alice", 10)
		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreditService_RefillStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("arms timer on first low observation", func(t *testing.T) {
		svc, mock := newCreditService(t, now)
		expectEnsure(mock, "alice")
		mock.ExpectQuery("SELECT balance FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3))
		mock.ExpectQuery("SELECT last_refill_at FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"last_refill_at"}).AddRow(nil))
		mock.ExpectExec("UPDATE accounts SET last_refill_at").
			WithArgs(now, "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))

		status, err := svc.RefillStatus(context.Background(), "alice")
		require.NoError(t, err)
		assert.True(t, status.IsEligible)
		assert.Equal(t, 3, status.CurrentCredits)
		assert.Equal(t, (6 * time.Hour).Milliseconds(), status.TimeUntilRefill)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("healthy balance clears timer", func(t *testing.T) {
		svc, mock := newCreditService(t, now)
		expectEnsure(mock, "alice")
		mock.ExpectQuery("SELECT balance FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(40))
		mock.ExpectQuery("SELECT last_refill_at FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"last_refill_at"}).AddRow(now.Add(-time.Hour)))
		mock.ExpectExec("UPDATE accounts SET last_refill_at").
			WithArgs(nil, "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))

		status, err := svc.RefillStatus(context.Background(), "alice")
		require.NoError(t, err)
		assert.False(t, status.IsEligible)
		assert.Nil(t, status.NextRefillAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("due refill is reported without granting", func(t *testing.T) {
		svc, mock := newCreditService(t, now)
		expectEnsure(mock, "alice")
		mock.ExpectQuery("SELECT balance FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3))
		mock.ExpectQuery("SELECT last_refill_at FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"last_refill_at"}).AddRow(now.Add(-7 * time.Hour)))

		status, err := svc.RefillStatus(context.Background(), "alice")
		require.NoError(t, err)
		assert.True(t, status.IsEligible)
		assert.Zero(t, status.TimeUntilRefill)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreditService_ProcessRefill(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lock := regexp.QuoteMeta(`SELECT balance, last_refill_at FROM accounts WHERE user_id = ? FOR UPDATE`)
	lockRows := func(balance int, last any) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"balance", "last_refill_at"}).AddRow(balance, last)
	}

	t.Run("grants up to threshold", func(t *testing.T) {
		svc, mock := newCreditService(t, now)
		expectEnsure(mock, "alice")
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WithArgs("alice").WillReturnRows(lockRows(17, now.Add(-6*time.Hour)))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET balance = balance + ?, last_refill_at = ?`)).
			WithArgs(3, now, "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := svc.ProcessRefill(context.Background(), "alice")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 3, res.CreditsAdded)
		assert.Equal(t, 20, res.NewBalance)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not yet due", func(t *testing.T) {
		svc, mock := newCreditService(t, now)
		expectEnsure(mock, "alice")
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WithArgs("alice").WillReturnRows(lockRows(3, now.Add(-time.Hour)))
		mock.ExpectCommit()

		res, err := svc.ProcessRefill(context.Background(), "alice")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Zero(t, res.CreditsAdded)
		assert.Equal(t, 3, res.NewBalance)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("arms on first observation", func(t *testing.T) {
		svc, mock := newCreditService(t, now)
		expectEnsure(mock, "alice")
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WithArgs("alice").WillReturnRows(lockRows(3, nil))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET last_refill_at = ? WHERE user_id = ?`)).
			WithArgs(now, "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := svc.ProcessRefill(context.Background(), "alice")
		require.NoError(t, err)
		assert.False(t, res.Success)
		require.NotNil(t, res.NextRefillAt)
		assert.Equal(t, now.Add(6*time.Hour), *res.NextRefillAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock failure rolls back", func(t *testing.T) {
		svc, mock := newCreditService(t, now)
		expectEnsure(mock, "alice")
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WillReturnError(errors.New("lock wait timeout"))
		mock.ExpectRollback()

		_, err := svc.ProcessRefill(context.Background(), "alice")
		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
