package admission

import (
	"time"
)

// Tier is a subscription level determining quota generosity and credit
// discounts.
type Tier string

const (
	TierFree   Tier = "free"
	TierBasic  Tier = "basic"
	TierFamily Tier = "family"
)

func (t Tier) String() string {
	return string(t)
}

func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierBasic, TierFamily:
		return true
	default:
		return false
	}
}

// IsPaid reports whether the tier is a paying subscription.
func (t Tier) IsPaid() bool {
	return t == TierBasic || t == TierFamily
}

// ActionType tags the kind of request being admitted. The calling endpoint
// chooses the tag; the limiter keys its windows by it.
type ActionType string

const (
	ActionContent      ActionType = "content"
	ActionContentDaily ActionType = "content_daily"
	ActionLogin        ActionType = "login"
	ActionAPI          ActionType = "api"
	ActionRegistration ActionType = "registration"
)

func (a ActionType) String() string {
	return string(a)
}

// ContentType identifies the kind of generated content being priced.
type ContentType string

const (
	ContentStory     ContentType = "story"
	ContentWorksheet ContentType = "worksheet"
	ContentQuiz      ContentType = "quiz"
	ContentExercise  ContentType = "exercise"
)

func (c ContentType) IsValid() bool {
	switch c {
	case ContentStory, ContentWorksheet, ContentQuiz, ContentExercise:
		return true
	default:
		return false
	}
}

// QuotaPolicy is an immutable (maxRequests, window) pair for one
// (tier, action) combination.
type QuotaPolicy struct {
	MaxRequests int
	Window      time.Duration
}

// PolicyTable maps (tier, action) to its quota policy. Loaded at startup and
// never mutated afterwards.
type PolicyTable map[Tier]map[ActionType]QuotaPolicy

// DefaultPolicyTable returns the built-in quotas for the fixed actions.
// Content quotas are set from configuration on top of this.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		TierFree: {
			ActionLogin:        {MaxRequests: 5, Window: 300 * time.Second},
			ActionAPI:          {MaxRequests: 100, Window: time.Hour},
			ActionRegistration: {MaxRequests: 30, Window: 24 * time.Hour},
		},
		TierBasic: {
			ActionLogin:        {MaxRequests: 10, Window: 300 * time.Second},
			ActionAPI:          {MaxRequests: 500, Window: time.Hour},
			ActionRegistration: {MaxRequests: 5, Window: 24 * time.Hour},
		},
		TierFamily: {
			ActionLogin:        {MaxRequests: 15, Window: 300 * time.Second},
			ActionAPI:          {MaxRequests: 1000, Window: time.Hour},
			ActionRegistration: {MaxRequests: 5, Window: 24 * time.Hour},
		},
	}
}

// Set registers or replaces the policy for a (tier, action) pair.
func (p PolicyTable) Set(tier Tier, action ActionType, policy QuotaPolicy) {
	if p[tier] == nil {
		p[tier] = make(map[ActionType]QuotaPolicy)
	}
	p[tier][action] = policy
}

// Lookup returns the policy for a (tier, action) pair. ok=false means the
// pair has no configured quota and the action is unlimited.
func (p PolicyTable) Lookup(tier Tier, action ActionType) (QuotaPolicy, bool) {
	actions, ok := p[tier]
	if !ok {
		return QuotaPolicy{}, false
	}
	policy, ok := actions[action]
	return policy, ok
}

// UnlimitedRemaining is the sentinel remaining count reported when no quota
// applies or the window store is unreachable (fail-open).
const UnlimitedRemaining = 999

// Decision is the limiter's answer for one attempt. Never persisted.
type Decision struct {
	Allowed           bool `json:"allowed"`
	Remaining         int  `json:"remaining"`
	RetryAfterSeconds int  `json:"retry_after_seconds"`
}

// Unlimited returns the fail-open decision.
func Unlimited() Decision {
	return Decision{Allowed: true, Remaining: UnlimitedRemaining}
}

// CreditDecision is the credit gate's answer for one reservation attempt.
type CreditDecision struct {
	Allowed      bool `json:"allowed"`
	Cost         int  `json:"cost"`
	BalanceAfter int  `json:"balance_after"`
	// Shortfall is cost - balance when rejected, so callers can render
	// "need N more credits".
	Shortfall int `json:"shortfall,omitempty"`
}

// RejectReason explains which stage of the pipeline rejected a request.
type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectRateLimited   RejectReason = "rate_limited"
	RejectNoCredits     RejectReason = "insufficient_credits"
	RejectLedgerFailure RejectReason = "ledger_unavailable"
)

// ContentAdmission is the composite outcome of the content admission
// pipeline: sliding-window checks followed by credit reservation.
type ContentAdmission struct {
	Allowed bool         `json:"allowed"`
	Reason  RejectReason `json:"reason,omitempty"`
	// LimitedBy names the action window that rejected, when rate limited.
	LimitedBy ActionType     `json:"limited_by,omitempty"`
	Rate      Decision       `json:"rate"`
	Credits   CreditDecision `json:"credits"`
}

// ActionUsage is one row of a usage snapshot for client-facing limit
// displays.
type ActionUsage struct {
	Limit         int        `json:"limit"`
	Used          int        `json:"used"`
	Remaining     int        `json:"remaining"`
	WindowSeconds int        `json:"window_seconds"`
	ResetAt       *time.Time `json:"reset_at,omitempty"`
}
