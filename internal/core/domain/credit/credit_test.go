package credit_test

import (
	"math"
	"testing"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
)

func TestCanEarn(t *testing.T) {
	cases := []struct {
		name   string
		earned float64
		cap    float64
		amount float64
		want   bool
	}{
		{"fits comfortably", 0.5, 2.0, 1.0, true},
		{"exactly reaches cap", 1.5, 2.0, 0.5, true},
		{"exceeds cap", 1.8, 2.0, 0.5, false},
		{"already at cap", 2.0, 2.0, 0.1, false},
		{"zero cap earns nothing", 0, 0, 0.1, false},
	}
	for _, tc := range cases {
		e := &credit.MonthlyEarning{EarnedTotal: tc.earned, MonthlyCap: tc.cap}
		if got := e.CanEarn(tc.amount); got != tc.want {
			t.Errorf("%s: CanEarn(%.1f) with %.1f/%.1f = %v, want %v", tc.name, tc.amount, tc.earned, tc.cap, got, tc.want)
		}
	}
}

func TestAddCredits_FullAward(t *testing.T) {
	e := &credit.MonthlyEarning{MonthlyCap: 2.0}
	awarded := e.AddCredits(1.0, credit.SourceCourse)
	if awarded != 1.0 {
		t.Fatalf("awarded = %f, want 1.0", awarded)
	}
	if e.EarnedCourses != 1.0 || e.EarnedTotal != 1.0 {
		t.Fatalf("earning = %+v, want courses and total at 1.0", e)
	}
	if e.CapReached {
		t.Fatal("cap should not be reached at 1.0/2.0")
	}
}

func TestAddCredits_ClampedAtCap(t *testing.T) {
	e := &credit.MonthlyEarning{EarnedTotal: 1.8, EarnedBonuses: 1.8, MonthlyCap: 2.0}
	awarded := e.AddCredits(0.5, credit.SourceBonus)
	if math.Abs(awarded-0.2) > 1e-9 {
		t.Fatalf("awarded = %f, want clamped 0.2", awarded)
	}
	if math.Abs(e.EarnedTotal-2.0) > 1e-9 {
		t.Fatalf("total = %f, want 2.0", e.EarnedTotal)
	}
	if !e.CapReached {
		t.Fatal("cap reached flag should be set")
	}
}

func TestAddCredits_NothingPastCap(t *testing.T) {
	e := &credit.MonthlyEarning{EarnedTotal: 2.0, MonthlyCap: 2.0}
	if awarded := e.AddCredits(0.5, credit.SourceCourse); awarded != 0 {
		t.Fatalf("awarded = %f, want 0 at the cap", awarded)
	}
	if e.EarnedTotal != 2.0 {
		t.Fatalf("total mutated to %f", e.EarnedTotal)
	}
}

func TestAddCredits_RoutesBySource(t *testing.T) {
	e := &credit.MonthlyEarning{MonthlyCap: 3.0}
	e.AddCredits(1.0, credit.SourceCourse)
	e.AddCredits(0.5, credit.SourceBonus)
	if e.EarnedCourses != 1.0 || e.EarnedBonuses != 0.5 {
		t.Fatalf("earning = %+v, want courses 1.0 bonuses 0.5", e)
	}
	if e.EarnedTotal != 1.5 {
		t.Fatalf("total = %f, want 1.5", e.EarnedTotal)
	}
}

func TestRemaining(t *testing.T) {
	e := &credit.MonthlyEarning{EarnedTotal: 1.2, MonthlyCap: 2.0}
	if got := e.Remaining(); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("remaining = %f, want 0.8", got)
	}
	e.EarnedTotal = 2.5
	if got := e.Remaining(); got != 0 {
		t.Fatalf("remaining = %f, want 0 past the cap", got)
	}
}

func TestMonthlyCapFor(t *testing.T) {
	if got := credit.MonthlyCapFor(admission.TierFree); got != 0 {
		t.Fatalf("free cap = %f, want 0", got)
	}
	if got := credit.MonthlyCapFor(admission.TierBasic); got != 2.0 {
		t.Fatalf("basic cap = %f, want 2.0", got)
	}
	if got := credit.MonthlyCapFor(admission.TierFamily); got != 3.0 {
		t.Fatalf("family cap = %f, want 3.0", got)
	}
}
