package ports

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
)

var (
	// ErrInsufficientCredits is returned by Reserve when the balance cannot
	// cover the cost. Normal rejection path, not an infrastructure failure.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrAccountNotFound is returned when the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// CreditLedgerRepository is the transactional store behind the credit gate.
// Reserve must be atomic per account: concurrent reservations may never
// drive the balance negative, so implementations use the datastore's native
// guarantee (conditional update, row lock, or equivalent).
type CreditLedgerRepository interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*credit.Account, error)
	CreateAccount(ctx context.Context, account *credit.Account) error
	// Reserve decrements the balance by cost and appends a consumption
	// transaction in one atomic step. Returns the balance after the
	// decrement, or ErrInsufficientCredits without mutating anything.
	Reserve(ctx context.Context, accountID uuid.UUID, cost int, description string) (int, error)
	// Refund credits cost back and appends a refund transaction.
	Refund(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error)
	// RecordPurchase credits purchased (plus bonus) credits and appends a
	// purchase transaction.
	RecordPurchase(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*credit.Transaction, error)
	// GetOrCreateMonthlyEarning returns the account's earning record for the
	// given month, creating it with the tier's cap when absent.
	GetOrCreateMonthlyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, year, month int) (*credit.MonthlyEarning, error)
	// ApplyEarning awards up to amount under the monthly cap, credits the
	// whole-credit part to the balance as a bonus transaction, and returns
	// the amount actually awarded. Runs under a row lock.
	ApplyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error)
}

// CreditGateService prices and reserves credits before costly work is
// dispatched. Unlike the rate limiter it MUST fail closed: when the ledger
// cannot be reached the action is rejected, since billing correctness cannot
// be risked.
type CreditGateService interface {
	// Quote computes the integer credit cost. Pure, no side effects.
	Quote(contentType admission.ContentType, tier admission.Tier, includeImages bool) int
	// Reserve checks the balance and atomically reserves cost. The decision
	// carries quota rejections; the error is reserved for infrastructure
	// failure, which callers must treat as a rejection (fail closed).
	Reserve(ctx context.Context, accountID uuid.UUID, cost int) (admission.CreditDecision, error)
	// Release compensates a reservation whose downstream action failed.
	Release(ctx context.Context, accountID uuid.UUID, cost int, reason string) error
	// AwardBonus grants earned credits clamped to the monthly cap and
	// returns the amount actually awarded.
	AwardBonus(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error)
	// Balance returns the current balance and recent transactions.
	Balance(ctx context.Context, accountID uuid.UUID, limit, offset int) (*credit.Account, []*credit.Transaction, error)
}
