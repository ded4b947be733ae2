package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// CachingLedgerRepository decorates a CreditLedgerRepository with cache-aside
// account reads. Every balance mutation invalidates the cached account, so
// the cache only ever serves a balance the ledger has already committed.
type CachingLedgerRepository struct {
	inner ports.CreditLedgerRepository
	cache ports.Cache
	ttl   time.Duration
}

func NewCachingLedgerRepository(inner ports.CreditLedgerRepository, cache ports.Cache, ttl time.Duration) ports.CreditLedgerRepository {
	return &CachingLedgerRepository{inner: inner, cache: cache, ttl: ttl}
}

func accountKey(accountID uuid.UUID) string {
	return "account:id:" + accountID.String()
}

func (c *CachingLedgerRepository) cacheSetSilently(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, b, c.ttl)
}

func (c *CachingLedgerRepository) invalidate(ctx context.Context, accountID uuid.UUID) {
	if c.cache != nil {
		_ = c.cache.Delete(ctx, accountKey(accountID))
	}
}

func (c *CachingLedgerRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	if c.cache != nil {
		if b, ok, err := c.cache.Get(ctx, accountKey(accountID)); err == nil && ok {
			var account credit.Account
			if err := json.Unmarshal(b, &account); err == nil {
				return &account, nil
			}
		}
	}
	account, err := c.inner.GetAccount(ctx, accountID)
	if err == nil {
		c.cacheSetSilently(ctx, accountKey(accountID), account)
	}
	return account, err
}

func (c *CachingLedgerRepository) CreateAccount(ctx context.Context, account *credit.Account) error {
	if err := c.inner.CreateAccount(ctx, account); err != nil {
		return err
	}
	c.invalidate(ctx, account.ID)
	return nil
}

func (c *CachingLedgerRepository) Reserve(ctx context.Context, accountID uuid.UUID, cost int, description string) (int, error) {
	balance, err := c.inner.Reserve(ctx, accountID, cost, description)
	if err == nil {
		c.invalidate(ctx, accountID)
	}
	return balance, err
}

func (c *CachingLedgerRepository) Refund(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error) {
	balance, err := c.inner.Refund(ctx, accountID, amount, description)
	if err == nil {
		c.invalidate(ctx, accountID)
	}
	return balance, err
}

func (c *CachingLedgerRepository) RecordPurchase(ctx context.Context, accountID uuid.UUID, amount int, description string) (int, error) {
	balance, err := c.inner.RecordPurchase(ctx, accountID, amount, description)
	if err == nil {
		c.invalidate(ctx, accountID)
	}
	return balance, err
}

func (c *CachingLedgerRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*credit.Transaction, error) {
	return c.inner.ListTransactions(ctx, accountID, limit, offset)
}

func (c *CachingLedgerRepository) GetOrCreateMonthlyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, year, month int) (*credit.MonthlyEarning, error) {
	return c.inner.GetOrCreateMonthlyEarning(ctx, accountID, tier, year, month)
}

func (c *CachingLedgerRepository) ApplyEarning(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error) {
	awarded, err := c.inner.ApplyEarning(ctx, accountID, tier, amount, source)
	if err == nil && awarded > 0 {
		c.invalidate(ctx, accountID)
	}
	return awarded, err
}
