package ports

import (
	"context"

	"github.com/google/uuid"
)

// EmailService defines the interface for account notification emails.
// Notifications are best-effort: failures are logged, never propagated into
// admission decisions.
type EmailService interface {
	SendLowBalanceAlert(ctx context.Context, email string, accountID uuid.UUID, balance int) error
	SendCapReachedNotice(ctx context.Context, email string, accountID uuid.UUID, monthlyCap float64) error
}
