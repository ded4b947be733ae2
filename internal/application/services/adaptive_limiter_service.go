package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// AdaptiveLimiterService scales quota policies by time of day and store
// load. It only produces adjusted policies; the sliding-window algorithm
// itself stays in RateLimiterService and is reached via CheckWithPolicy.
type AdaptiveLimiterService struct {
	repo     ports.RateWindowRepository
	policies admission.PolicyTable
	cfg      AdaptiveConfig
	location *time.Location
	logger   *logrus.Logger
	now      func() time.Time
}

// AdaptiveConfig holds the scaling rules.
type AdaptiveConfig struct {
	PeakStartHour int
	PeakEndHour   int
	Timezone      string
	// Latency thresholds for load shedding.
	HighLatency     time.Duration
	ElevatedLatency time.Duration
	// Multipliers. Peak boosts raise limits during family hours; load
	// factors lower them when the store is slow.
	PaidPeakBoost    float64
	FreePeakBoost    float64
	HighLoadFactor   float64
	MediumLoadFactor float64
	// Clock overrides the time source, for tests. Nil means time.Now.
	Clock func() time.Time
}

func NewAdaptiveLimiterService(repo ports.RateWindowRepository, policies admission.PolicyTable, cfg AdaptiveConfig, logger *logrus.Logger) *AdaptiveLimiterService {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		if logger != nil {
			logger.WithField("timezone", cfg.Timezone).WithError(err).Warn("adaptive limiter: unknown timezone, using UTC")
		}
		loc = time.UTC
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	return &AdaptiveLimiterService{repo: repo, policies: policies, cfg: cfg, location: loc, logger: logger, now: now}
}

// AdjustedPolicy returns the (tier, action) policy scaled for peak hours and
// current store load. ok=false when no policy is configured, in which case
// the caller treats the action as unlimited.
func (s *AdaptiveLimiterService) AdjustedPolicy(ctx context.Context, tier admission.Tier, action admission.ActionType) (admission.QuotaPolicy, bool) {
	policy, ok := s.policies.Lookup(tier, action)
	if !ok {
		return admission.QuotaPolicy{}, false
	}

	max := float64(policy.MaxRequests)
	if s.inPeakHours() {
		if tier.IsPaid() {
			max *= s.cfg.PaidPeakBoost
		} else {
			max *= s.cfg.FreePeakBoost
		}
	}
	max *= s.loadFactor(ctx)

	adjusted := admission.QuotaPolicy{MaxRequests: int(max), Window: policy.Window}
	if adjusted.MaxRequests < 1 {
		adjusted.MaxRequests = 1
	}
	return adjusted, true
}

func (s *AdaptiveLimiterService) inPeakHours() bool {
	hour := s.now().In(s.location).Hour()
	return hour >= s.cfg.PeakStartHour && hour < s.cfg.PeakEndHour
}

// loadFactor derives a limit multiplier from the store's ping round trip:
// halve limits when latency is high, trim 20% when elevated. A failed ping
// is treated as high load.
func (s *AdaptiveLimiterService) loadFactor(ctx context.Context) float64 {
	latency, err := s.repo.Latency(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("adaptive limiter: latency probe failed, assuming high load")
		}
		return s.cfg.HighLoadFactor
	}
	switch {
	case latency > s.cfg.HighLatency:
		return s.cfg.HighLoadFactor
	case latency > s.cfg.ElevatedLatency:
		return s.cfg.MediumLoadFactor
	default:
		return 1.0
	}
}
