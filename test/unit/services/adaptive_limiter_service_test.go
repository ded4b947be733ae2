package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	impl "github.com/kiddoslabs/admission-core/internal/application/services"
	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/test/mocks"
)

func adaptiveTestConfig(clock func() time.Time) impl.AdaptiveConfig {
	return impl.AdaptiveConfig{
		PeakStartHour:    18,
		PeakEndHour:      23,
		Timezone:         "UTC",
		HighLatency:      100 * time.Millisecond,
		ElevatedLatency:  50 * time.Millisecond,
		PaidPeakBoost:    1.5,
		FreePeakBoost:    1.25,
		HighLoadFactor:   0.5,
		MediumLoadFactor: 0.8,
		Clock:            clock,
	}
}

func atHour(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 15, hour, 30, 0, 0, time.UTC)
	}
}

func TestAdjustedPolicy_OffPeakUnchanged(t *testing.T) {
	store := mocks.NewMemoryRateWindowStore()
	svc := impl.NewAdaptiveLimiterService(store, contentPolicies(), adaptiveTestConfig(atHour(10)), nil)

	policy, ok := svc.AdjustedPolicy(context.Background(), admission.TierFree, admission.ActionContent)
	if !ok {
		t.Fatal("expected a policy")
	}
	if policy.MaxRequests != 5 {
		t.Fatalf("off-peak max = %d, want 5 unchanged", policy.MaxRequests)
	}
}

func TestAdjustedPolicy_PeakBoost(t *testing.T) {
	policies := contentPolicies()
	policies.Set(admission.TierBasic, admission.ActionContent, admission.QuotaPolicy{MaxRequests: 10, Window: time.Hour})

	store := mocks.NewMemoryRateWindowStore()
	svc := impl.NewAdaptiveLimiterService(store, policies, adaptiveTestConfig(atHour(19)), nil)

	free, _ := svc.AdjustedPolicy(context.Background(), admission.TierFree, admission.ActionContent)
	if free.MaxRequests != 6 { // 5 * 1.25
		t.Fatalf("free peak max = %d, want 6", free.MaxRequests)
	}
	paid, _ := svc.AdjustedPolicy(context.Background(), admission.TierBasic, admission.ActionContent)
	if paid.MaxRequests != 15 { // 10 * 1.5
		t.Fatalf("paid peak max = %d, want 15", paid.MaxRequests)
	}
}

func TestAdjustedPolicy_HighLatencyHalvesLimit(t *testing.T) {
	store := mocks.NewMemoryRateWindowStore()
	store.PingRTT = 150 * time.Millisecond
	svc := impl.NewAdaptiveLimiterService(store, contentPolicies(), adaptiveTestConfig(atHour(10)), nil)

	policy, _ := svc.AdjustedPolicy(context.Background(), admission.TierFree, admission.ActionContent)
	if policy.MaxRequests != 2 { // 5 * 0.5
		t.Fatalf("high load max = %d, want 2", policy.MaxRequests)
	}
}

func TestAdjustedPolicy_ElevatedLatencyTrims(t *testing.T) {
	store := mocks.NewMemoryRateWindowStore()
	store.PingRTT = 60 * time.Millisecond
	svc := impl.NewAdaptiveLimiterService(store, contentPolicies(), adaptiveTestConfig(atHour(10)), nil)

	policy, _ := svc.AdjustedPolicy(context.Background(), admission.TierFree, admission.ActionContent)
	if policy.MaxRequests != 4 { // 5 * 0.8
		t.Fatalf("elevated load max = %d, want 4", policy.MaxRequests)
	}
}

func TestAdjustedPolicy_PingFailureAssumesHighLoad(t *testing.T) {
	repo := &mocks.RateWindowRepositoryMock{
		LatencyFn: func(ctx context.Context) (time.Duration, error) {
			return 0, errors.New("ping timeout")
		},
	}
	svc := impl.NewAdaptiveLimiterService(repo, contentPolicies(), adaptiveTestConfig(atHour(10)), nil)

	policy, _ := svc.AdjustedPolicy(context.Background(), admission.TierFree, admission.ActionContent)
	if policy.MaxRequests != 2 {
		t.Fatalf("max after ping failure = %d, want 2", policy.MaxRequests)
	}
}

func TestAdjustedPolicy_NeverBelowOne(t *testing.T) {
	policies := admission.PolicyTable{}
	policies.Set(admission.TierFree, admission.ActionContent, admission.QuotaPolicy{MaxRequests: 1, Window: time.Hour})

	store := mocks.NewMemoryRateWindowStore()
	store.PingRTT = 200 * time.Millisecond
	svc := impl.NewAdaptiveLimiterService(store, policies, adaptiveTestConfig(atHour(10)), nil)

	policy, _ := svc.AdjustedPolicy(context.Background(), admission.TierFree, admission.ActionContent)
	if policy.MaxRequests != 1 {
		t.Fatalf("max = %d, scaling must never zero out a quota", policy.MaxRequests)
	}
}

func TestAdjustedPolicy_UnknownActionNotFound(t *testing.T) {
	store := mocks.NewMemoryRateWindowStore()
	svc := impl.NewAdaptiveLimiterService(store, contentPolicies(), adaptiveTestConfig(atHour(10)), nil)

	if _, ok := svc.AdjustedPolicy(context.Background(), admission.TierFree, admission.ActionLogin); ok {
		t.Fatal("unconfigured action must report ok=false")
	}
}
