package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// RateLimiterService implements a continuous sliding-window limiter over a
// keyed time-series store. One window key per (tier, action, identifier);
// expired entries are pruned lazily on the next check for that key.
//
// The limiter fails open on every store error: a Redis outage must not turn
// into an API outage. Concurrent checks on the same key may over-admit by a
// small margin since prune-count-insert is not serialized; that race is
// accepted in favor of availability.
type RateLimiterService struct {
	repo      ports.RateWindowRepository
	policies  admission.PolicyTable
	keyPrefix string
	logger    *logrus.Logger
	now       func() time.Time
}

// RateLimiterConfig groups configuration parameters for the rate limiter.
type RateLimiterConfig struct {
	KeyPrefix string
	Policies  admission.PolicyTable
	// Clock overrides the time source, for tests. Nil means time.Now.
	Clock func() time.Time
}

func NewRateLimiterService(repo ports.RateWindowRepository, cfg *RateLimiterConfig, logger *logrus.Logger) *RateLimiterService {
	// Apply defaults
	kp := "rate_limit"
	policies := admission.DefaultPolicyTable()
	now := time.Now
	if cfg != nil {
		if cfg.KeyPrefix != "" {
			kp = cfg.KeyPrefix
		}
		if cfg.Policies != nil {
			policies = cfg.Policies
		}
		if cfg.Clock != nil {
			now = cfg.Clock
		}
	}
	return &RateLimiterService{repo: repo, policies: policies, keyPrefix: kp, logger: logger, now: now}
}

func (s *RateLimiterService) key(tier admission.Tier, action admission.ActionType, identifier string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.keyPrefix, tier, action, identifier)
}

// Check consumes one window slot for the identifier if admitted. A missing
// policy means the action is unlimited: misconfiguration must not block
// legitimate traffic.
func (s *RateLimiterService) Check(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) admission.Decision {
	if identifier == "" {
		return admission.Unlimited()
	}
	policy, ok := s.policies.Lookup(tier, action)
	if !ok {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"tier": tier, "action": action}).Debug("rate limiter: no policy configured, treating as unlimited")
		}
		return admission.Unlimited()
	}
	return s.checkWindow(ctx, s.key(tier, action, identifier), policy)
}

// CheckWithPolicy runs the window algorithm under an explicit policy, for
// endpoints with ad-hoc limits or adaptively scaled quotas.
func (s *RateLimiterService) CheckWithPolicy(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier, policy admission.QuotaPolicy) admission.Decision {
	if identifier == "" || policy.MaxRequests <= 0 || policy.Window <= 0 {
		return admission.Unlimited()
	}
	return s.checkWindow(ctx, s.key(tier, action, identifier), policy)
}

// checkWindow is the single sliding-window core: prune, count, then either
// reject with a retry-after derived from the oldest surviving entry or
// record the attempt. Entries exactly at the window boundary count as
// expired, consistently for pruning and counting.
func (s *RateLimiterService) checkWindow(ctx context.Context, key string, policy admission.QuotaPolicy) admission.Decision {
	now := s.nowSeconds()
	windowSeconds := policy.Window.Seconds()

	if _, err := s.repo.PruneBefore(ctx, key, now-windowSeconds); err != nil {
		return s.failOpen(key, "prune", err)
	}

	count, err := s.repo.Count(ctx, key)
	if err != nil {
		return s.failOpen(key, "count", err)
	}

	if count >= int64(policy.MaxRequests) {
		retryAfter := int(windowSeconds)
		oldest, ok, err := s.repo.OldestAt(ctx, key)
		if err != nil {
			if s.logger != nil {
				s.logger.WithField("key", key).WithError(err).Error("rate limiter: failed to read oldest entry")
			}
		} else if ok {
			// Time until the oldest entry ages out of the window, at
			// least one second.
			retryAfter = int(oldest + windowSeconds - now)
			if retryAfter < 1 {
				retryAfter = 1
			}
		}
		return admission.Decision{Allowed: false, Remaining: 0, RetryAfterSeconds: retryAfter}
	}

	if err := s.repo.Add(ctx, key, now); err != nil {
		return s.failOpen(key, "add", err)
	}
	if err := s.repo.Expire(ctx, key, policy.Window); err != nil && s.logger != nil {
		s.logger.WithField("key", key).WithError(err).Warn("rate limiter: failed to refresh key expiry")
	}

	return admission.Decision{Allowed: true, Remaining: policy.MaxRequests - int(count) - 1}
}

// Remaining reports how many slots are left without consuming one.
func (s *RateLimiterService) Remaining(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) int {
	policy, ok := s.policies.Lookup(tier, action)
	if !ok {
		return admission.UnlimitedRemaining
	}
	key := s.key(tier, action, identifier)
	now := s.nowSeconds()

	if _, err := s.repo.PruneBefore(ctx, key, now-policy.Window.Seconds()); err != nil {
		s.logFailure(key, "prune", err)
		return admission.UnlimitedRemaining
	}
	count, err := s.repo.Count(ctx, key)
	if err != nil {
		s.logFailure(key, "count", err)
		return admission.UnlimitedRemaining
	}
	if remaining := policy.MaxRequests - int(count); remaining > 0 {
		return remaining
	}
	return 0
}

// UsageSnapshot reports limit/used/remaining/reset for every action
// configured under the tier, for client-facing "your current limits"
// displays. Store failures yield an empty snapshot.
func (s *RateLimiterService) UsageSnapshot(ctx context.Context, identifier string, tier admission.Tier) map[admission.ActionType]admission.ActionUsage {
	snapshot := make(map[admission.ActionType]admission.ActionUsage)
	for action, policy := range s.policies[tier] {
		key := s.key(tier, action, identifier)
		now := s.nowSeconds()
		windowSeconds := policy.Window.Seconds()

		if _, err := s.repo.PruneBefore(ctx, key, now-windowSeconds); err != nil {
			s.logFailure(key, "prune", err)
			continue
		}
		count, err := s.repo.Count(ctx, key)
		if err != nil {
			s.logFailure(key, "count", err)
			continue
		}

		usage := admission.ActionUsage{
			Limit:         policy.MaxRequests,
			Used:          int(count),
			WindowSeconds: int(windowSeconds),
		}
		if remaining := policy.MaxRequests - int(count); remaining > 0 {
			usage.Remaining = remaining
		}
		if oldest, ok, err := s.repo.OldestAt(ctx, key); err == nil && ok {
			reset := secondsToTime(oldest + windowSeconds)
			usage.ResetAt = &reset
		}
		snapshot[action] = usage
	}
	return snapshot
}

// Reset deletes the identifier's windows across all tiers: one action, or
// every action when action is empty. Administrative override; uses the same
// key naming as Check so resets stay consistent with live checks.
func (s *RateLimiterService) Reset(ctx context.Context, identifier string, action admission.ActionType) error {
	pattern := fmt.Sprintf("%s:*:*:%s", s.keyPrefix, identifier)
	if action != "" {
		pattern = fmt.Sprintf("%s:*:%s:%s", s.keyPrefix, action, identifier)
	}
	deleted, err := s.repo.DeleteMatching(ctx, pattern)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"identifier": identifier, "action": action}).WithError(err).Error("rate limiter: failed to reset limits")
		}
		return fmt.Errorf("failed to reset limits for %s: %w", identifier, err)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"identifier": identifier, "action": action, "deleted": deleted}).Info("rate limiter: limits reset")
	}
	return nil
}

func (s *RateLimiterService) nowSeconds() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}

func secondsToTime(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*float64(time.Second)))
}

func (s *RateLimiterService) failOpen(key, op string, err error) admission.Decision {
	s.logFailure(key, op, err)
	return admission.Unlimited()
}

func (s *RateLimiterService) logFailure(key, op string, err error) {
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "op": op}).WithError(err).Error("rate limiter: store unavailable, failing open")
	}
}
