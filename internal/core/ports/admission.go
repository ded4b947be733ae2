package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/kiddoslabs/admission-core/internal/core/domain/admission"
)

// AdmissionService composes the sliding-window limiter and the credit gate
// into the content admission pipeline: hourly window, daily window, then
// quote and reserve. The first rejection short-circuits.
type AdmissionService interface {
	AdmitContent(ctx context.Context, accountID uuid.UUID, tier admission.Tier, contentType admission.ContentType, includeImages bool) admission.ContentAdmission
	// ReleaseOnFailure compensates an admitted request whose downstream
	// generation failed (safety rejection, provider error). Called exactly
	// once per failed reservation by the worker callback.
	ReleaseOnFailure(ctx context.Context, accountID uuid.UUID, cost int, reason string) error
}
