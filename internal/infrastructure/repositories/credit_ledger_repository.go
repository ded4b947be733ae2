package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/db"
)

// CreditLedgerRepository implements the credit ledger on Postgres. The
// reservation path is a single conditional UPDATE guarded by the balance, so
// concurrent reservations serialize on the account row and the balance can
// never go negative.
type CreditLedgerRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

func NewCreditLedgerRepository(database *db.Database, logger *logrus.Logger) ports.CreditLedgerRepository {
	return &CreditLedgerRepository{
		db:     database,
		logger: logger,
	}
}

// GetAccount retrieves an account by ID.
func (r *CreditLedgerRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	var account credit.Account
	query := `
		SELECT id, email, tier, credits, created_at, updated_at
		FROM accounts
		WHERE id = $1`

	err := r.db.DB.GetContext(ctx, &account, query, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			if r.logger != nil {
				r.logger.WithFields(logrus.Fields{"account_id": accountID}).Debug("db: account not found")
			}
			return nil, ports.ErrAccountNotFound
		}
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"account_id": accountID}).WithError(err).Error("db: failed to get account")
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// CreateAccount creates a new credit account.
func (r *CreditLedgerRepository) CreateAccount(ctx context.Context, account *credit.Account) error {
	query := `
		INSERT INTO accounts (id, email, tier, credits)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.DB.ExecContext(ctx, query, account.ID, account.Email, account.Tier, account.Credits)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"account_id": account.ID}).WithError(err).Error("db: failed to create account")
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"account_id": account.ID, "tier": account.Tier}).Info("db: account created")
	}

	return nil
}

// Reserve decrements the balance by cost and appends a consumption
// transaction in one database transaction. The decrement only applies when
// the balance covers the cost.
func (r *CreditLedgerRepository) Reserve(ctx context.Context, accountID uuid.UUID, cost int, description string) (int, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	var balance int
	query := `
		UPDATE accounts
		SET credits = credits - $2, updated_at = NOW()
		WHERE id = $1 AND credits >= $2
		RETURNING credits`

	err = tx.GetContext(ctx, &balance, query, accountID, cost)
	if err != nil {
		if err == sql.ErrNoRows {
			// Either the account is missing or the balance is short;
			// distinguish so callers can report a shortfall.
			var exists bool
			if chkErr := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID); chkErr != nil {
				return 0, fmt.Errorf("failed to check account: %w", chkErr)
			}
			if !exists {
				return 0, ports.ErrAccountNotFound
			}
			return 0, ports.ErrInsufficientCredits
		}
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"account_id": accountID, "cost": cost}).WithError(err).Error("db: failed to reserve credits")
		}
		return 0, fmt.Errorf("failed to reserve credits: %w", err)
	}

	if err := insertTransaction(ctx, tx, accountID, credit.TransactionConsumption, -cost, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return balance, nil
}

// Refund credits amount back and appends a refund transaction.
func (r *CreditLedgerRepository) Refund(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error) {
	return r.credit(ctx, accountID, amount, credit.TransactionRefund, description)
}

// RecordPurchase credits purchased credits and appends a purchase
// transaction.
func (r *CreditLedgerRepository) RecordPurchase(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error) {
	return r.credit(ctx, accountID, amount, credit.TransactionPurchase, description)
}

func (r *CreditLedgerRepository) credit(ctx context.Context, accountID uuid.UUID, amount int, txType credit.TransactionType, description string) (int, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin credit: %w", err)
	}
	defer tx.Rollback()

	var balance int
	query := `
		UPDATE accounts
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits`

	err = tx.GetContext(ctx, &balance, query, accountID, amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ports.ErrAccountNotFound
		}
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"account_id": accountID, "amount": amount, "type": txType}).WithError(err).Error("db: failed to credit account")
		}
		return 0, fmt.Errorf("failed to credit account: %w", err)
	}

	if err := insertTransaction(ctx, tx, accountID, txType, amount, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit credit: %w", err)
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"account_id": accountID, "amount": amount, "type": txType, "balance": balance}).Info("db: account credited")
	}
	return balance, nil
}

// ListTransactions retrieves an account's transaction log, newest first.
func (r *CreditLedgerRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*credit.Transaction, error) {
	var transactions []*credit.Transaction
	query := `
		SELECT id, account_id, type, amount, description, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := r.db.DB.SelectContext(ctx, &transactions, query, accountID, limit, offset)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"account_id": accountID}).WithError(err).Error("db: failed to list transactions")
		}
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return transactions, nil
}

// GetOrCreateMonthlyEarning returns the account's earning record for the
// given month, creating it with the tier's cap when absent.
func (r *CreditLedgerRepository) GetOrCreateMonthlyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, year, month int) (*credit.MonthlyEarning, error) {
	insert := `
		INSERT INTO credit_earnings (id, account_id, year, month, monthly_cap)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, year, month) DO NOTHING`

	if _, err := r.db.DB.ExecContext(ctx, insert, uuid.New(), accountID, year, month, credit.MonthlyCapFor(tier)); err != nil {
		return nil, fmt.Errorf("failed to create monthly earning: %w", err)
	}

	var earning credit.MonthlyEarning
	query := `
		SELECT id, account_id, year, month, earned_courses, earned_bonuses,
			   earned_total, monthly_cap, cap_reached, created_at, updated_at
		FROM credit_earnings
		WHERE account_id = $1 AND year = $2 AND month = $3`

	if err := r.db.DB.GetContext(ctx, &earning, query, accountID, year, month); err != nil {
		return nil, fmt.Errorf("failed to get monthly earning: %w", err)
	}
	return &earning, nil
}

// ApplyEarning awards up to amount under the monthly cap. The earning row is
// locked for the duration so concurrent awards cannot exceed the cap, and
// whole earned credits are applied to the spendable balance as a bonus
// transaction.
func (r *CreditLedgerRepository) ApplyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())

	if _, err := r.GetOrCreateMonthlyEarning(ctx, accountID, tier, year, month); err != nil {
		return 0, err
	}

	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin earning: %w", err)
	}
	defer tx.Rollback()

	var earning credit.MonthlyEarning
	query := `
		SELECT id, account_id, year, month, earned_courses, earned_bonuses,
			   earned_total, monthly_cap, cap_reached, created_at, updated_at
		FROM credit_earnings
		WHERE account_id = $1 AND year = $2 AND month = $3
		FOR UPDATE`

	if err := tx.GetContext(ctx, &earning, query, accountID, year, month); err != nil {
		return 0, fmt.Errorf("failed to lock monthly earning: %w", err)
	}

	awarded := earning.AddCredits(amount, source)
	if awarded <= 0 {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"account_id": accountID, "requested": amount}).Debug("db: monthly earning cap reached, nothing awarded")
		}
		return 0, tx.Commit()
	}

	update := `
		UPDATE credit_earnings
		SET earned_courses = $2, earned_bonuses = $3, earned_total = $4,
			cap_reached = $5, updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, update, earning.ID, earning.EarnedCourses, earning.EarnedBonuses, earning.EarnedTotal, earning.CapReached); err != nil {
		return 0, fmt.Errorf("failed to update monthly earning: %w", err)
	}

	// Whole credits hit the spendable balance; fractions stay in the
	// earning record until they add up.
	if whole := int(awarded); whole > 0 {
		var balance int
		if err := tx.GetContext(ctx, &balance, `UPDATE accounts SET credits = credits + $2, updated_at = NOW() WHERE id = $1 RETURNING credits`, accountID, whole); err != nil {
			if err == sql.ErrNoRows {
				return 0, ports.ErrAccountNotFound
			}
			return 0, fmt.Errorf("failed to apply bonus credits: %w", err)
		}
		if err := insertTransaction(ctx, tx, accountID, credit.TransactionBonus, whole, fmt.Sprintf("bonus credits (%s)", source)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit earning: %w", err)
	}
	return awarded, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, txType credit.TransactionType, amount int, description string) error {
	query := `
		INSERT INTO credit_transactions (id, account_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.ExecContext(ctx, query, uuid.New(), accountID, txType, amount, description); err != nil {
		return fmt.Errorf("failed to record %s transaction: %w", txType, err)
	}
	return nil
}
