package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// baseCosts prices one generation of each content type, before surcharges
// and tier discounts.
var baseCosts = map[admission.ContentType]int{
	admission.ContentStory:     1,
	admission.ContentWorksheet: 2,
	admission.ContentQuiz:      2,
	admission.ContentExercise:  1,
}

// tierMultipliers discount paid tiers.
var tierMultipliers = map[admission.Tier]float64{
	admission.TierFree:   1.0,
	admission.TierBasic:  0.8,
	admission.TierFamily: 0.5,
}

// CreditGateService prices content generation and reserves credits against
// the ledger before work is dispatched. Unlike the rate limiter it fails
// closed: if the ledger cannot be reached the action is rejected, because no
// safe default exists for billing.
type CreditGateService struct {
	ledger ports.CreditLedgerRepository
	email  ports.EmailService
	cfg    CreditGateConfig
	logger *logrus.Logger
}

// CreditGateConfig groups pricing and notification knobs.
type CreditGateConfig struct {
	ImageSurcharge int
	MinimumCost    int
	// LowBalanceThreshold triggers a notification email when a reservation
	// drops the balance below it. Zero disables the alert.
	LowBalanceThreshold int
}

func NewCreditGateService(ledger ports.CreditLedgerRepository, email ports.EmailService, cfg *CreditGateConfig, logger *logrus.Logger) *CreditGateService {
	surcharge := 2
	minimum := 1
	threshold := 0
	if cfg != nil {
		if cfg.ImageSurcharge > 0 {
			surcharge = cfg.ImageSurcharge
		}
		if cfg.MinimumCost > 0 {
			minimum = cfg.MinimumCost
		}
		threshold = cfg.LowBalanceThreshold
	}
	return &CreditGateService{
		ledger: ledger,
		email:  email,
		cfg:    CreditGateConfig{ImageSurcharge: surcharge, MinimumCost: minimum, LowBalanceThreshold: threshold},
		logger: logger,
	}
}

// Quote computes the integer credit cost for a generation request:
// base cost plus image surcharge, times the tier discount, floored, never
// below the minimum. Pure function.
func (s *CreditGateService) Quote(contentType admission.ContentType, tier admission.Tier, includeImages bool) int {
	base, ok := baseCosts[contentType]
	if !ok {
		base = 1
	}
	multiplier, ok := tierMultipliers[tier]
	if !ok {
		multiplier = 1.0
	}

	surcharge := 0
	if includeImages {
		surcharge = s.cfg.ImageSurcharge
	}

	cost := int(float64(base+surcharge) * multiplier)
	if cost < s.cfg.MinimumCost {
		cost = s.cfg.MinimumCost
	}
	return cost
}

// Reserve atomically debits cost from the account and records a consumption
// transaction. An insufficient balance rejects without mutation; a ledger
// failure rejects with the error (fail closed).
func (s *CreditGateService) Reserve(ctx context.Context, accountID uuid.UUID, cost int) (admission.CreditDecision, error) {
	if cost <= 0 {
		return admission.CreditDecision{}, fmt.Errorf("reservation cost must be positive, got %d", cost)
	}

	balanceAfter, err := s.ledger.Reserve(ctx, accountID, cost, fmt.Sprintf("content generation (%d credits)", cost))
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientCredits) {
			decision := admission.CreditDecision{Allowed: false, Cost: cost, Shortfall: cost}
			if account, gErr := s.ledger.GetAccount(ctx, accountID); gErr == nil {
				decision.BalanceAfter = account.Credits
				decision.Shortfall = cost - account.Credits
			}
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"account_id": accountID, "cost": cost}).Info("credit gate: reservation declined, insufficient credits")
			}
			return decision, nil
		}
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"account_id": accountID, "cost": cost}).WithError(err).Error("credit gate: ledger unavailable, failing closed")
		}
		return admission.CreditDecision{Cost: cost}, fmt.Errorf("failed to reserve credits: %w", err)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"account_id": accountID, "cost": cost, "balance_after": balanceAfter}).Info("credit gate: credits reserved")
	}
	s.maybeAlertLowBalance(ctx, accountID, balanceAfter)

	return admission.CreditDecision{Allowed: true, Cost: cost, BalanceAfter: balanceAfter}, nil
}

// Release compensates a reservation whose downstream action failed, e.g. the
// generated content was rejected by safety review. Call once per failed
// reservation.
func (s *CreditGateService) Release(ctx context.Context, accountID uuid.UUID, cost int, reason string) error {
	if cost <= 0 {
		return fmt.Errorf("release amount must be positive, got %d", cost)
	}
	balance, err := s.ledger.Refund(ctx, accountID, cost, fmt.Sprintf("refund: %s", reason))
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"account_id": accountID, "cost": cost, "reason": reason}).WithError(err).Error("credit gate: failed to release reservation")
		}
		return fmt.Errorf("failed to release %d credits: %w", cost, err)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"account_id": accountID, "cost": cost, "reason": reason, "balance": balance}).Info("credit gate: reservation released")
	}
	return nil
}

// AwardBonus grants earned credits clamped to the account's monthly cap and
// returns the amount actually awarded, which may be zero at the cap.
func (s *CreditGateService) AwardBonus(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("bonus amount must be positive, got %f", amount)
	}
	awarded, err := s.ledger.ApplyEarning(ctx, accountID, tier, amount, source)
	if err != nil {
		return 0, fmt.Errorf("failed to award bonus credits: %w", err)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"account_id": accountID, "requested": amount, "awarded": awarded, "source": source}).Info("credit gate: bonus credits awarded")
	}
	if awarded < amount {
		s.maybeNoticeCapReached(ctx, accountID, tier)
	}
	return awarded, nil
}

// Balance returns the current balance and recent transactions.
func (s *CreditGateService) Balance(ctx context.Context, accountID uuid.UUID, limit, offset int) (*credit.Account, []*credit.Transaction, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get account: %w", err)
	}
	if limit <= 0 {
		limit = 20
	}
	transactions, err := s.ledger.ListTransactions(ctx, accountID, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return account, transactions, nil
}

// maybeAlertLowBalance sends a best-effort notification when the balance
// drops below the configured threshold. Failures never affect the decision.
func (s *CreditGateService) maybeAlertLowBalance(ctx context.Context, accountID uuid.UUID, balance int) {
	if s.email == nil || s.cfg.LowBalanceThreshold <= 0 || balance >= s.cfg.LowBalanceThreshold {
		return
	}
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil || account.Email == "" {
		return
	}
	if err := s.email.SendLowBalanceAlert(ctx, account.Email, accountID, balance); err != nil && s.logger != nil {
		s.logger.WithField("account_id", accountID).WithError(err).Warn("credit gate: failed to send low balance alert")
	}
}

func (s *CreditGateService) maybeNoticeCapReached(ctx context.Context, accountID uuid.UUID, tier admission.Tier) {
	if s.email == nil {
		return
	}
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil || account.Email == "" {
		return
	}
	if err := s.email.SendCapReachedNotice(ctx, account.Email, accountID, credit.MonthlyCapFor(tier)); err != nil && s.logger != nil {
		s.logger.WithField("account_id", accountID).WithError(err).Warn("credit gate: failed to send cap reached notice")
	}
}
