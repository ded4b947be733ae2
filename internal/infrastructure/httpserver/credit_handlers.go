package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
	"github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver/helpers"
)

type createAccountRequest struct {
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

func (s *Server) createAccount(c echo.Context) error {
	var req createAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	tier := admission.Tier(req.Tier)
	if req.Tier == "" {
		tier = admission.TierFree
	}
	if !tier.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tier")
	}

	now := time.Now().UTC()
	account := &credit.Account{
		ID:        uuid.New(),
		Email:     req.Email,
		Tier:      tier,
		Credits:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.creditLedger.CreateAccount(c.Request().Context(), account); err != nil {
		s.logger.WithError(err).Error("failed to create account")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create account")
	}
	return c.JSON(http.StatusCreated, account)
}

func (s *Server) getCreditBalance(c echo.Context) error {
	accountID, err := helpers.GetAccountIDFromContext(c)
	if err != nil {
		return err
	}

	limit, offset := parsePagination(c)
	account, transactions, err := s.creditGate.Balance(c.Request().Context(), accountID, limit, offset)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "account not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load balance")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"account_id":   account.ID,
		"tier":         account.Tier,
		"credits":      account.Credits,
		"transactions": transactions,
	})
}

func parsePagination(c echo.Context) (limit, offset int) {
	limit = 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if raw := c.QueryParam("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

type recordPurchaseRequest struct {
	AccountID   string `json:"account_id"`
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

// recordPurchase credits purchased credits after payment settles. Payment
// processing itself happens outside this service.
func (s *Server) recordPurchase(c echo.Context) error {
	var req recordPurchaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid account ID")
	}
	if req.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}

	balance, err := s.creditLedger.RecordPurchase(c.Request().Context(), accountID, req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "account not found")
		}
		s.logger.WithError(err).Error("failed to record purchase")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record purchase")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"credited":   req.Amount,
		"balance":    balance,
	})
}

type awardBonusRequest struct {
	AccountID string  `json:"account_id"`
	Tier      string  `json:"tier"`
	Amount    float64 `json:"amount"`
	Source    string  `json:"source"`
}

// awardBonus grants earned credits, clamped to the account's monthly cap.
func (s *Server) awardBonus(c echo.Context) error {
	var req awardBonusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid account ID")
	}
	tier := admission.Tier(req.Tier)
	if !tier.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tier")
	}
	if req.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	source := credit.EarningSource(req.Source)
	if source != credit.SourceCourse && source != credit.SourceBonus {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid earning source")
	}

	awarded, err := s.creditGate.AwardBonus(c.Request().Context(), accountID, tier, req.Amount, source)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "account not found")
		}
		s.logger.WithError(err).Error("failed to award bonus")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to award bonus")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"requested":  req.Amount,
		"awarded":    awarded,
	})
}
