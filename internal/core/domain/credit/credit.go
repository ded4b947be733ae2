package credit

import (
	"time"

	"github.com/google/uuid"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
)

// Account holds one actor's spendable credit balance.
type Account struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	Email     string         `json:"email" db:"email"`
	Tier      admission.Tier `json:"tier" db:"tier"`
	Credits   int            `json:"credits" db:"credits"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// TransactionType classifies a ledger entry. The sign of the amount is
// constrained per type (see migrations).
type TransactionType string

const (
	TransactionPurchase    TransactionType = "purchase"
	TransactionConsumption TransactionType = "consumption"
	TransactionRefund      TransactionType = "refund"
	TransactionBonus       TransactionType = "bonus"
	TransactionExpiry      TransactionType = "expiry"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionPurchase, TransactionConsumption, TransactionRefund, TransactionBonus, TransactionExpiry:
		return true
	default:
		return false
	}
}

// Transaction is one signed entry in an account's credit log.
type Transaction struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	AccountID   uuid.UUID       `json:"account_id" db:"account_id"`
	Type        TransactionType `json:"type" db:"type"`
	Amount      int             `json:"amount" db:"amount"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// MonthlyEarning tracks bonus credits earned within one calendar month,
// clamped to a tier-dependent cap.
type MonthlyEarning struct {
	ID            uuid.UUID `json:"id" db:"id"`
	AccountID     uuid.UUID `json:"account_id" db:"account_id"`
	Year          int       `json:"year" db:"year"`
	Month         int       `json:"month" db:"month"`
	EarnedCourses float64   `json:"earned_courses" db:"earned_courses"`
	EarnedBonuses float64   `json:"earned_bonuses" db:"earned_bonuses"`
	EarnedTotal   float64   `json:"earned_total" db:"earned_total"`
	MonthlyCap    float64   `json:"monthly_cap" db:"monthly_cap"`
	CapReached    bool      `json:"cap_reached" db:"cap_reached"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// EarningSource distinguishes where awarded credits came from.
type EarningSource string

const (
	SourceCourse EarningSource = "course"
	SourceBonus  EarningSource = "bonus"
)

// CanEarn reports whether amount fits entirely under the monthly cap.
func (e *MonthlyEarning) CanEarn(amount float64) bool {
	return e.EarnedTotal+amount <= e.MonthlyCap
}

// AddCredits awards up to amount, clamped so the total never exceeds the
// cap. It returns the amount actually awarded: the full amount when it fits,
// the remainder up to the cap otherwise, zero at or past the cap.
func (e *MonthlyEarning) AddCredits(amount float64, source EarningSource) float64 {
	if !e.CanEarn(amount) {
		remaining := e.MonthlyCap - e.EarnedTotal
		if remaining < 0 {
			remaining = 0
		}
		if amount > remaining {
			amount = remaining
		}
	}

	if amount > 0 {
		if source == SourceCourse {
			e.EarnedCourses += amount
		} else {
			e.EarnedBonuses += amount
		}
		e.EarnedTotal += amount
		if e.EarnedTotal >= e.MonthlyCap {
			e.CapReached = true
		}
	}

	return amount
}

// Remaining returns how much can still be earned this month.
func (e *MonthlyEarning) Remaining() float64 {
	if r := e.MonthlyCap - e.EarnedTotal; r > 0 {
		return r
	}
	return 0
}

// MonthlyCapFor returns the monthly earning cap for a tier. Free accounts do
// not earn credits.
func MonthlyCapFor(tier admission.Tier) float64 {
	switch tier {
	case admission.TierBasic:
		return 2.0
	case admission.TierFamily:
		return 3.0
	default:
		return 0
	}
}
