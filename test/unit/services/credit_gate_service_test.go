package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	impl "github.com/kiddoslabs/admission-core/internal/application/services"
	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
	"github.com/kiddoslabs/admission-core/test/mocks"
)

func newTestGate(ledger ports.CreditLedgerRepository, email ports.EmailService) *impl.CreditGateService {
	return impl.NewCreditGateService(ledger, email, &impl.CreditGateConfig{
		ImageSurcharge:      2,
		MinimumCost:         1,
		LowBalanceThreshold: 2,
	}, nil)
}

func TestQuote_Pricing(t *testing.T) {
	gate := newTestGate(&mocks.CreditLedgerRepositoryMock{}, nil)

	cases := []struct {
		name        string
		contentType admission.ContentType
		tier        admission.Tier
		images      bool
		want        int
	}{
		{"story free", admission.ContentStory, admission.TierFree, false, 1},
		{"story basic", admission.ContentStory, admission.TierBasic, false, 1},
		{"worksheet free", admission.ContentWorksheet, admission.TierFree, false, 2},
		{"worksheet with images free", admission.ContentWorksheet, admission.TierFree, true, 4},
		{"worksheet with images basic", admission.ContentWorksheet, admission.TierBasic, true, 3},
		{"quiz family", admission.ContentQuiz, admission.TierFamily, false, 1},
		{"quiz with images family", admission.ContentQuiz, admission.TierFamily, true, 2},
		{"exercise family floors at minimum", admission.ContentExercise, admission.TierFamily, false, 1},
	}
	for _, tc := range cases {
		if got := gate.Quote(tc.contentType, tc.tier, tc.images); got != tc.want {
			t.Errorf("%s: quote = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestReserve_Success(t *testing.T) {
	accountID := uuid.New()
	ledger := &mocks.CreditLedgerRepositoryMock{
		ReserveFn: func(ctx context.Context, id uuid.UUID, cost int, description string) (int, error) {
			if cost != 3 {
				t.Fatalf("reserve cost = %d, want 3", cost)
			}
			return 7, nil
		},
	}
	gate := newTestGate(ledger, nil)

	d, err := gate.Reserve(context.Background(), accountID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.BalanceAfter != 7 || d.Cost != 3 {
		t.Fatalf("decision = %+v, want allowed with balance 7", d)
	}
}

func TestReserve_InsufficientCreditsCarriesShortfall(t *testing.T) {
	accountID := uuid.New()
	ledger := &mocks.CreditLedgerRepositoryMock{
		ReserveFn: func(ctx context.Context, id uuid.UUID, cost int, description string) (int, error) {
			return 0, ports.ErrInsufficientCredits
		},
		GetAccountFn: func(ctx context.Context, id uuid.UUID) (*credit.Account, error) {
			return &credit.Account{ID: id, Credits: 3}, nil
		},
	}
	gate := newTestGate(ledger, nil)

	d, err := gate.Reserve(context.Background(), accountID, 4)
	if err != nil {
		t.Fatalf("insufficient credits is a decision, not an error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if d.Shortfall != 1 || d.BalanceAfter != 3 {
		t.Fatalf("decision = %+v, want shortfall 1 and balance 3", d)
	}
}

func TestReserve_LedgerFailureFailsClosed(t *testing.T) {
	ledger := &mocks.CreditLedgerRepositoryMock{
		ReserveFn: func(ctx context.Context, id uuid.UUID, cost int, description string) (int, error) {
			return 0, errors.New("connection reset")
		},
	}
	gate := newTestGate(ledger, nil)

	d, err := gate.Reserve(context.Background(), uuid.New(), 2)
	if err == nil {
		t.Fatal("ledger outage must surface as an error (fail closed)")
	}
	if d.Allowed {
		t.Fatal("decision must not be allowed on ledger failure")
	}
}

func TestReserve_RejectsNonPositiveCost(t *testing.T) {
	gate := newTestGate(&mocks.CreditLedgerRepositoryMock{}, nil)
	if _, err := gate.Reserve(context.Background(), uuid.New(), 0); err == nil {
		t.Fatal("zero cost must be rejected")
	}
}

func TestReserve_LowBalanceAlert(t *testing.T) {
	accountID := uuid.New()
	email := &mocks.EmailServiceMock{}
	ledger := &mocks.CreditLedgerRepositoryMock{
		ReserveFn: func(ctx context.Context, id uuid.UUID, cost int, description string) (int, error) {
			return 1, nil
		},
		GetAccountFn: func(ctx context.Context, id uuid.UUID) (*credit.Account, error) {
			return &credit.Account{ID: id, Email: "parent@example.com", Credits: 1}, nil
		},
	}
	gate := newTestGate(ledger, email)

	if _, err := gate.Reserve(context.Background(), accountID, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.LowBalanceAlerts) != 1 || email.LowBalanceAlerts[0] != 1 {
		t.Fatalf("expected one low balance alert at balance 1, got %v", email.LowBalanceAlerts)
	}
}

func TestRelease_Refunds(t *testing.T) {
	var refunded int
	ledger := &mocks.CreditLedgerRepositoryMock{
		RefundFn: func(ctx context.Context, id uuid.UUID, amount int, description string) (int, error) {
			refunded = amount
			return 5, nil
		},
	}
	gate := newTestGate(ledger, nil)

	if err := gate.Release(context.Background(), uuid.New(), 3, "generation failed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refunded != 3 {
		t.Fatalf("refunded = %d, want 3", refunded)
	}
}

func TestAwardBonus_CapReachedNotice(t *testing.T) {
	accountID := uuid.New()
	email := &mocks.EmailServiceMock{}
	ledger := &mocks.CreditLedgerRepositoryMock{
		ApplyEarningFn: func(ctx context.Context, id uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error) {
			// Clamped: only 0.2 of the requested 0.5 fits under the cap.
			return 0.2, nil
		},
		GetAccountFn: func(ctx context.Context, id uuid.UUID) (*credit.Account, error) {
			return &credit.Account{ID: id, Email: "parent@example.com", Tier: admission.TierBasic}, nil
		},
	}
	gate := newTestGate(ledger, email)

	awarded, err := gate.AwardBonus(context.Background(), accountID, admission.TierBasic, 0.5, credit.SourceCourse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awarded != 0.2 {
		t.Fatalf("awarded = %f, want 0.2", awarded)
	}
	if len(email.CapReachedNotices) != 1 {
		t.Fatalf("expected a cap reached notice, got %v", email.CapReachedNotices)
	}
}

func TestBalance_DefaultsLimit(t *testing.T) {
	accountID := uuid.New()
	ledger := &mocks.CreditLedgerRepositoryMock{
		GetAccountFn: func(ctx context.Context, id uuid.UUID) (*credit.Account, error) {
			return &credit.Account{ID: id, Credits: 9}, nil
		},
		ListTransactionsFn: func(ctx context.Context, id uuid.UUID, limit, offset int) ([]*credit.Transaction, error) {
			if limit != 20 {
				t.Fatalf("limit = %d, want default 20", limit)
			}
			return []*credit.Transaction{{AccountID: id}}, nil
		},
	}
	gate := newTestGate(ledger, nil)

	account, transactions, err := gate.Balance(context.Background(), accountID, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Credits != 9 || len(transactions) != 1 {
		t.Fatalf("balance = %d with %d transactions, want 9 and 1", account.Credits, len(transactions))
	}
}
