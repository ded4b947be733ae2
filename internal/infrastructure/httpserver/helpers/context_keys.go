package helpers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
)

type ctxKey string

const (
	keyAccountID    ctxKey = "account_id"
	keyAccountTier  ctxKey = "account_tier"
	keyAccountEmail ctxKey = "account_email"
)

func SetAccountID(c echo.Context, id uuid.UUID) { c.Set(string(keyAccountID), id) }
func GetAccountIDRaw(c echo.Context) (uuid.UUID, bool) {
	v := c.Get(string(keyAccountID))
	id, ok := v.(uuid.UUID)
	return id, ok
}

func SetAccountTier(c echo.Context, t admission.Tier) { c.Set(string(keyAccountTier), t) }
func GetAccountTierRaw(c echo.Context) (admission.Tier, bool) {
	v := c.Get(string(keyAccountTier))
	t, ok := v.(admission.Tier)
	return t, ok
}

func SetAccountEmail(c echo.Context, email string) { c.Set(string(keyAccountEmail), email) }
func GetAccountEmailRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyAccountEmail))
	s, ok := v.(string)
	return s, ok
}
