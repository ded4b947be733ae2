package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// AdmissionService runs the content admission pipeline: hourly sliding
// window, daily sliding window, then credit quote and reservation. The
// first rejection short-circuits. Rate checks fail open, the credit
// reservation fails closed.
type AdmissionService struct {
	limiter  ports.RateLimiterService
	gate     ports.CreditGateService
	adaptive ports.AdaptivePolicyProvider
	logger   *logrus.Logger
}

// NewAdmissionService wires the pipeline. adaptive may be nil, in which case
// the static policy table applies unchanged.
func NewAdmissionService(limiter ports.RateLimiterService, gate ports.CreditGateService, adaptive ports.AdaptivePolicyProvider, logger *logrus.Logger) *AdmissionService {
	return &AdmissionService{limiter: limiter, gate: gate, adaptive: adaptive, logger: logger}
}

// AdmitContent decides whether one content generation request proceeds.
// A caller abandoning the request after admission still consumed its window
// slots and its credit reservation; compensation only happens through
// ReleaseOnFailure.
func (s *AdmissionService) AdmitContent(ctx context.Context, accountID uuid.UUID, tier admission.Tier, contentType admission.ContentType, includeImages bool) admission.ContentAdmission {
	identifier := accountID.String()

	lastRate := admission.Unlimited()
	for _, action := range []admission.ActionType{admission.ActionContent, admission.ActionContentDaily} {
		decision := s.checkRate(ctx, identifier, action, tier)
		if !decision.Allowed {
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"account_id": accountID, "action": action, "retry_after": decision.RetryAfterSeconds}).Info("admission: rate limited")
			}
			return admission.ContentAdmission{Reason: admission.RejectRateLimited, LimitedBy: action, Rate: decision}
		}
		lastRate = decision
	}

	cost := s.gate.Quote(contentType, tier, includeImages)
	credits, err := s.gate.Reserve(ctx, accountID, cost)
	if err != nil {
		return admission.ContentAdmission{Reason: admission.RejectLedgerFailure, Credits: credits}
	}
	if !credits.Allowed {
		return admission.ContentAdmission{Reason: admission.RejectNoCredits, Credits: credits}
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"account_id": accountID, "content_type": contentType, "cost": cost, "balance_after": credits.BalanceAfter}).Info("admission: content request admitted")
	}
	return admission.ContentAdmission{Allowed: true, Rate: lastRate, Credits: credits}
}

// ReleaseOnFailure compensates an admitted request whose downstream
// generation failed after reservation.
func (s *AdmissionService) ReleaseOnFailure(ctx context.Context, accountID uuid.UUID, cost int, reason string) error {
	return s.gate.Release(ctx, accountID, cost, reason)
}

func (s *AdmissionService) checkRate(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) admission.Decision {
	if s.adaptive != nil {
		policy, ok := s.adaptive.AdjustedPolicy(ctx, tier, action)
		if !ok {
			return admission.Unlimited()
		}
		return s.limiter.CheckWithPolicy(ctx, identifier, action, tier, policy)
	}
	return s.limiter.Check(ctx, identifier, action, tier)
}
