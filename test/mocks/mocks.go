package mocks

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// RateWindowRepositoryMock is a lightweight mock for RateWindowRepository
type RateWindowRepositoryMock struct {
	PruneBeforeFn    func(ctx context.Context, key string, cutoff float64) (int64, error)
	CountFn          func(ctx context.Context, key string) (int64, error)
	AddFn            func(ctx context.Context, key string, at float64) error
	OldestAtFn       func(ctx context.Context, key string) (float64, bool, error)
	ExpireFn         func(ctx context.Context, key string, ttl time.Duration) error
	DeleteMatchingFn func(ctx context.Context, pattern string) (int64, error)
	ScanKeysFn       func(ctx context.Context, pattern string, count int64) ([]string, error)
	LatencyFn        func(ctx context.Context) (time.Duration, error)
}

func (m *RateWindowRepositoryMock) PruneBefore(ctx context.Context, key string, cutoff float64) (int64, error) {
	if m.PruneBeforeFn != nil {
		return m.PruneBeforeFn(ctx, key, cutoff)
	}
	return 0, nil
}
func (m *RateWindowRepositoryMock) Count(ctx context.Context, key string) (int64, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx, key)
	}
	return 0, nil
}
func (m *RateWindowRepositoryMock) Add(ctx context.Context, key string, at float64) error {
	if m.AddFn != nil {
		return m.AddFn(ctx, key, at)
	}
	return nil
}
func (m *RateWindowRepositoryMock) OldestAt(ctx context.Context, key string) (float64, bool, error) {
	if m.OldestAtFn != nil {
		return m.OldestAtFn(ctx, key)
	}
	return 0, false, nil
}
func (m *RateWindowRepositoryMock) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if m.ExpireFn != nil {
		return m.ExpireFn(ctx, key, ttl)
	}
	return nil
}
func (m *RateWindowRepositoryMock) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	if m.DeleteMatchingFn != nil {
		return m.DeleteMatchingFn(ctx, pattern)
	}
	return 0, nil
}
func (m *RateWindowRepositoryMock) ScanKeys(ctx context.Context, pattern string, count int64) ([]string, error) {
	if m.ScanKeysFn != nil {
		return m.ScanKeysFn(ctx, pattern, count)
	}
	return nil, nil
}
func (m *RateWindowRepositoryMock) Latency(ctx context.Context) (time.Duration, error) {
	if m.LatencyFn != nil {
		return m.LatencyFn(ctx)
	}
	return time.Millisecond, nil
}

// MemoryRateWindowStore is an in-memory RateWindowRepository for exercising
// the window algorithm end to end without Redis.
type MemoryRateWindowStore struct {
	mu      sync.Mutex
	entries map[string][]float64
	PingRTT time.Duration
}

func NewMemoryRateWindowStore() *MemoryRateWindowStore {
	return &MemoryRateWindowStore{entries: make(map[string][]float64), PingRTT: time.Millisecond}
}

func (s *MemoryRateWindowStore) PruneBefore(ctx context.Context, key string, cutoff float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[key][:0]
	var removed int64
	for _, at := range s.entries[key] {
		if at <= cutoff {
			removed++
		} else {
			kept = append(kept, at)
		}
	}
	s.entries[key] = kept
	return removed, nil
}

func (s *MemoryRateWindowStore) Count(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries[key])), nil
}

func (s *MemoryRateWindowStore) Add(ctx context.Context, key string, at float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append(s.entries[key], at)
	sort.Float64s(s.entries[key])
	return nil
}

func (s *MemoryRateWindowStore) OldestAt(ctx context.Context, key string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries[key]) == 0 {
		return 0, false, nil
	}
	return s.entries[key][0], true, nil
}

func (s *MemoryRateWindowStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (s *MemoryRateWindowStore) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key := range s.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryRateWindowStore) ScanKeys(ctx context.Context, pattern string, count int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.entries {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryRateWindowStore) Latency(ctx context.Context) (time.Duration, error) {
	return s.PingRTT, nil
}

// CreditLedgerRepositoryMock is a lightweight mock for CreditLedgerRepository
type CreditLedgerRepositoryMock struct {
	GetAccountFn                func(ctx context.Context, accountID uuid.UUID) (*credit.Account, error)
	CreateAccountFn             func(ctx context.Context, account *credit.Account) error
	ReserveFn                   func(ctx context.Context, accountID uuid.UUID, cost int, description string) (int, error)
	RefundFn                    func(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error)
	RecordPurchaseFn            func(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error)
	ListTransactionsFn          func(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*credit.Transaction, error)
	GetOrCreateMonthlyEarningFn func(ctx context.Context, accountID uuid.UUID, tier admission.Tier, year, month int) (*credit.MonthlyEarning, error)
	ApplyEarningFn              func(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error)
}

func (m *CreditLedgerRepositoryMock) GetAccount(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	if m.GetAccountFn != nil {
		return m.GetAccountFn(ctx, accountID)
	}
	return nil, ports.ErrAccountNotFound
}
func (m *CreditLedgerRepositoryMock) CreateAccount(ctx context.Context, account *credit.Account) error {
	if m.CreateAccountFn != nil {
		return m.CreateAccountFn(ctx, account)
	}
	return nil
}
func (m *CreditLedgerRepositoryMock) Reserve(ctx context.Context, accountID uuid.UUID, cost int, description string) (int, error) {
	if m.ReserveFn != nil {
		return m.ReserveFn(ctx, accountID, cost, description)
	}
	return 0, fmt.Errorf("not implemented")
}
func (m *CreditLedgerRepositoryMock) Refund(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error) {
	if m.RefundFn != nil {
		return m.RefundFn(ctx, accountID, amount, description)
	}
	return 0, fmt.Errorf("not implemented")
}
func (m *CreditLedgerRepositoryMock) RecordPurchase(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error) {
	if m.RecordPurchaseFn != nil {
		return m.RecordPurchaseFn(ctx, accountID, amount, description)
	}
	return 0, fmt.Errorf("not implemented")
}
func (m *CreditLedgerRepositoryMock) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*credit.Transaction, error) {
	if m.ListTransactionsFn != nil {
		return m.ListTransactionsFn(ctx, accountID, limit, offset)
	}
	return nil, nil
}
func (m *CreditLedgerRepositoryMock) GetOrCreateMonthlyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, year, month int) (*credit.MonthlyEarning, error) {
	if m.GetOrCreateMonthlyEarningFn != nil {
		return m.GetOrCreateMonthlyEarningFn(ctx, accountID, tier, year, month)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *CreditLedgerRepositoryMock) ApplyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error) {
	if m.ApplyEarningFn != nil {
		return m.ApplyEarningFn(ctx, accountID, tier, amount, source)
	}
	return 0, fmt.Errorf("not implemented")
}

// EmailServiceMock records notification calls.
type EmailServiceMock struct {
	LowBalanceAlerts  []int
	CapReachedNotices []float64
}

func (m *EmailServiceMock) SendLowBalanceAlert(ctx context.Context, email string, accountID uuid.UUID, balance int) error {
	m.LowBalanceAlerts = append(m.LowBalanceAlerts, balance)
	return nil
}
func (m *EmailServiceMock) SendCapReachedNotice(ctx context.Context, email string, accountID uuid.UUID, monthlyCap float64) error {
	m.CapReachedNotices = append(m.CapReachedNotices, monthlyCap)
	return nil
}
