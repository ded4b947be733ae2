package ports

import (
	"context"
	"time"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
)

// RateWindowRepository provides the low-level keyed time-series operations
// the sliding-window limiter is built on. Scores are wall-clock seconds with
// sub-second precision. It abstracts storage (e.g. a Redis sorted set);
// implementations must be safe for concurrent use.
type RateWindowRepository interface {
	// PruneBefore removes entries with score <= cutoff and returns how many
	// were removed. The boundary entry counts as expired.
	PruneBefore(ctx context.Context, key string, cutoff float64) (int64, error)
	// Count returns the number of entries currently recorded under key.
	Count(ctx context.Context, key string) (int64, error)
	// Add records one entry at the given score.
	Add(ctx context.Context, key string, at float64) error
	// OldestAt returns the smallest score under key. ok=false when empty.
	OldestAt(ctx context.Context, key string) (float64, bool, error)
	// Expire sets the key's TTL so idle keys self-clean.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// DeleteMatching removes every key matching the glob pattern and returns
	// how many keys were deleted. Used by administrative resets and the
	// cleanup sweep.
	DeleteMatching(ctx context.Context, pattern string) (int64, error)
	// ScanKeys returns keys matching the glob pattern, batched by count.
	ScanKeys(ctx context.Context, pattern string, count int64) ([]string, error)
	// Latency measures a store round trip, used for load-adaptive limits.
	Latency(ctx context.Context) (time.Duration, error)
}

// RateLimiterService decides whether an action attempt is admitted under a
// tier+action sliding-window quota. Implementations MUST fail open: a store
// outage admits the request rather than erroring, because rate limiting is a
// protective control, not a correctness-critical one.
type RateLimiterService interface {
	// Check consumes one slot for the identifier if admitted.
	Check(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) admission.Decision
	// CheckWithPolicy runs the same window algorithm under an explicit
	// policy, for endpoints with ad-hoc limits.
	CheckWithPolicy(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier, policy admission.QuotaPolicy) admission.Decision
	// Remaining reports the slots left without consuming one.
	Remaining(ctx context.Context, identifier string, action admission.ActionType, tier admission.Tier) int
	// UsageSnapshot reports limit/used/remaining/reset for every action
	// configured under the tier.
	UsageSnapshot(ctx context.Context, identifier string, tier admission.Tier) map[admission.ActionType]admission.ActionUsage
	// Reset deletes the identifier's windows: one action, or all when
	// action is empty. Administrative override for support tooling.
	Reset(ctx context.Context, identifier string, action admission.ActionType) error
}

// AdaptivePolicyProvider yields quota policies adjusted for peak hours and
// current store load. The adjusted policy feeds CheckWithPolicy; the window
// algorithm itself is never duplicated.
type AdaptivePolicyProvider interface {
	AdjustedPolicy(ctx context.Context, tier admission.Tier, action admission.ActionType) (admission.QuotaPolicy, bool)
}
