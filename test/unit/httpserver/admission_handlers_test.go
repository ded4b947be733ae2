package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
	"github.com/kiddoslabs/admission-core/internal/core/domain/credit"
	admission_http "github.com/kiddoslabs/admission-core/internal/infrastructure/httpserver"
	"github.com/kiddoslabs/admission-core/test/mocks"
)

type admissionServiceMock struct {
	admitFn   func(ctx context.Context, accountID uuid.UUID, tier admission.Tier, contentType admission.ContentType, includeImages bool) admission.ContentAdmission
	releaseFn func(ctx context.Context, accountID uuid.UUID, cost int, reason string) error
}

func (m *admissionServiceMock) AdmitContent(ctx context.Context, accountID uuid.UUID, tier admission.Tier, contentType admission.ContentType, includeImages bool) admission.ContentAdmission {
	if m.admitFn != nil {
		return m.admitFn(ctx, accountID, tier, contentType, includeImages)
	}
	return admission.ContentAdmission{Allowed: true}
}
func (m *admissionServiceMock) ReleaseOnFailure(ctx context.Context, accountID uuid.UUID, cost int, reason string) error {
	if m.releaseFn != nil {
		return m.releaseFn(ctx, accountID, cost, reason)
	}
	return nil
}

type gateServiceMock struct {
	quoteFn   func(contentType admission.ContentType, tier admission.Tier, includeImages bool) int
	balanceFn func(ctx context.Context, accountID uuid.UUID, limit, offset int) (*credit.Account, []*credit.Transaction, error)
}

func (m *gateServiceMock) Quote(contentType admission.ContentType, tier admission.Tier, includeImages bool) int {
	if m.quoteFn != nil {
		return m.quoteFn(contentType, tier, includeImages)
	}
	return 1
}
func (m *gateServiceMock) Reserve(ctx context.Context, accountID uuid.UUID, cost int) (admission.CreditDecision, error) {
	return admission.CreditDecision{Allowed: true, Cost: cost}, nil
}
func (m *gateServiceMock) Release(ctx context.Context, accountID uuid.UUID, cost int, reason string) error {
	return nil
}
func (m *gateServiceMock) AwardBonus(ctx context.Context, accountID uuid.UUID, tier admission.Tier, amount float64, source credit.EarningSource) (float64, error) {
	return amount, nil
}
func (m *gateServiceMock) Balance(ctx context.Context, accountID uuid.UUID, limit, offset int) (*credit.Account, []*credit.Transaction, error) {
	if m.balanceFn != nil {
		return m.balanceFn(ctx, accountID, limit, offset)
	}
	return &credit.Account{ID: accountID}, nil, nil
}

func newTestServer(t *testing.T, admitSvc *admissionServiceMock, gate *gateServiceMock, ledger *mocks.CreditLedgerRepositoryMock, adminKeyHash string) *httptest.Server {
	t.Helper()
	deps := admission_http.ServerDeps{
		AdmissionService:   admitSvc,
		RateLimiterService: &limiterServiceMock{},
		CreditGateService:  gate,
		CreditLedger:       ledger,
		Policies:           admission.DefaultPolicyTable(),
		JWTSecret:          testSecret,
		AdminKeyHash:       adminKeyHash,
	}
	srv := admission_http.NewServer(&admission_http.ServerConfig{Host: "127.0.0.1", Port: "0", ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}, logrus.New(), deps)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		b, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func TestAdmitContent_Endpoint(t *testing.T) {
	accountID := uuid.New()
	admitSvc := &admissionServiceMock{
		admitFn: func(ctx context.Context, id uuid.UUID, tier admission.Tier, ct admission.ContentType, images bool) admission.ContentAdmission {
			require.Equal(t, accountID, id)
			require.Equal(t, admission.TierBasic, tier)
			require.Equal(t, admission.ContentWorksheet, ct)
			require.True(t, images)
			return admission.ContentAdmission{Allowed: true, Credits: admission.CreditDecision{Allowed: true, Cost: 3, BalanceAfter: 5}}
		},
	}
	ts := newTestServer(t, admitSvc, &gateServiceMock{}, &mocks.CreditLedgerRepositoryMock{}, "")
	token := mintToken(t, accountID.String(), "basic")

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/admission/content",
		map[string]any{"content_type": "worksheet", "include_images": true},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result admission.ContentAdmission
	require.NoError(t, json.Unmarshal(body, &result))
	require.True(t, result.Allowed)
	require.Equal(t, 5, result.Credits.BalanceAfter)
}

func TestAdmitContent_RateLimitedMapsTo429(t *testing.T) {
	admitSvc := &admissionServiceMock{
		admitFn: func(ctx context.Context, id uuid.UUID, tier admission.Tier, ct admission.ContentType, images bool) admission.ContentAdmission {
			return admission.ContentAdmission{
				Reason:    admission.RejectRateLimited,
				LimitedBy: admission.ActionContent,
				Rate:      admission.Decision{Allowed: false, RetryAfterSeconds: 180},
			}
		},
	}
	ts := newTestServer(t, admitSvc, &gateServiceMock{}, &mocks.CreditLedgerRepositoryMock{}, "")
	token := mintToken(t, uuid.NewString(), "free")

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/admission/content",
		map[string]any{"content_type": "story"},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "180", resp.Header.Get("Retry-After"))
	require.Equal(t, "content", resp.Header.Get("X-RateLimit-Type"))
}

func TestAdmitContent_NoCreditsMapsTo402(t *testing.T) {
	admitSvc := &admissionServiceMock{
		admitFn: func(ctx context.Context, id uuid.UUID, tier admission.Tier, ct admission.ContentType, images bool) admission.ContentAdmission {
			return admission.ContentAdmission{
				Reason:  admission.RejectNoCredits,
				Credits: admission.CreditDecision{Allowed: false, Cost: 2, BalanceAfter: 1, Shortfall: 1},
			}
		},
	}
	ts := newTestServer(t, admitSvc, &gateServiceMock{}, &mocks.CreditLedgerRepositoryMock{}, "")
	token := mintToken(t, uuid.NewString(), "free")

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/admission/content",
		map[string]any{"content_type": "quiz"},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var result admission.ContentAdmission
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, 1, result.Credits.Shortfall)
}

func TestAdmitContent_InvalidContentType(t *testing.T) {
	ts := newTestServer(t, &admissionServiceMock{}, &gateServiceMock{}, &mocks.CreditLedgerRepositoryMock{}, "")
	token := mintToken(t, uuid.NewString(), "free")

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/admission/content",
		map[string]any{"content_type": "podcast"},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmitContent_RequiresAuth(t *testing.T) {
	ts := newTestServer(t, &admissionServiceMock{}, &gateServiceMock{}, &mocks.CreditLedgerRepositoryMock{}, "")

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/admission/content",
		map[string]any{"content_type": "story"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestQuoteEndpoint(t *testing.T) {
	gate := &gateServiceMock{
		quoteFn: func(ct admission.ContentType, tier admission.Tier, images bool) int {
			require.Equal(t, admission.ContentWorksheet, ct)
			require.True(t, images)
			return 4
		},
	}
	ts := newTestServer(t, &admissionServiceMock{}, gate, &mocks.CreditLedgerRepositoryMock{}, "")
	token := mintToken(t, uuid.NewString(), "free")

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/admission/quote?content_type=worksheet&include_images=true", nil,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, float64(4), result["cost"])
}

func TestCreditBalanceEndpoint(t *testing.T) {
	accountID := uuid.New()
	gate := &gateServiceMock{
		balanceFn: func(ctx context.Context, id uuid.UUID, limit, offset int) (*credit.Account, []*credit.Transaction, error) {
			return &credit.Account{ID: id, Tier: admission.TierBasic, Credits: 12},
				[]*credit.Transaction{{AccountID: id, Type: credit.TransactionPurchase, Amount: 10}}, nil
		},
	}
	ts := newTestServer(t, &admissionServiceMock{}, gate, &mocks.CreditLedgerRepositoryMock{}, "")
	token := mintToken(t, accountID.String(), "basic")

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/credits/balance", nil,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, float64(12), result["credits"])
}

func TestAdminPurchase_Endpoint(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)

	accountID := uuid.New()
	ledger := &mocks.CreditLedgerRepositoryMock{
		RecordPurchaseFn: func(ctx context.Context, id uuid.UUID, amount int, description string) (int, error) {
			require.Equal(t, accountID, id)
			require.Equal(t, 50, amount)
			return 62, nil
		},
	}
	ts := newTestServer(t, &admissionServiceMock{}, &gateServiceMock{}, ledger, string(hash))

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/admin/credits/purchase",
		map[string]any{"account_id": accountID.String(), "amount": 50, "description": "starter pack"},
		map[string]string{"X-Admin-Key": "admin-key"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, float64(62), result["balance"])
}

func TestAdminPurchase_RejectedWithoutKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)
	ts := newTestServer(t, &admissionServiceMock{}, &gateServiceMock{}, &mocks.CreditLedgerRepositoryMock{}, string(hash))

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/admin/credits/purchase",
		map[string]any{"account_id": uuid.NewString(), "amount": 10}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
