package httperror

import (
	"context"
	"errors"

	"github.com/opsplane/opsplane-backend/internal/auth"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

// FromError maps typed domain errors onto the envelope. Anything unmatched is
// an internal error with a redacted message.
func FromError(ctx context.Context, err error) *HTTPError {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, data.ErrRecordNotFound),
		errors.Is(err, data.ErrExchangeRateNotFound):
		return NotFound("", err)

	case errors.Is(err, data.ErrRecordAlreadyExists),
		errors.Is(err, data.ErrTenantSlugAlreadyExists):
		return Conflict("", err)

	case errors.Is(err, data.ErrInsufficientPayableBalance):
		return Conflict("Insufficient payable balance.", err)

	case errors.Is(err, data.ErrInvalidStatusTransition):
		return Conflict("The entity cannot transition to the requested status.", err)

	case errors.Is(err, data.ErrInvalidTransactionSign),
		errors.Is(err, data.ErrMissingInput),
		errors.Is(err, auth.ErrPasswordTooShort):
		return BadRequest(err.Error(), err)

	case errors.Is(err, data.ErrTenantMismatch):
		return Forbidden("", err)

	case errors.Is(err, tenantctx.ErrTenantContextMissing):
		// A handler reached tenant-scoped code without tenant resolution;
		// that is a wiring defect, not a user mistake.
		log.Ctx(ctx).Errorf("tenant context missing on a tenant-scoped path: %v", err)
		return BadRequest("Tenant could not be resolved for this request.", err)

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrRefreshTokenInvalid),
		errors.Is(err, auth.ErrMFACodeInvalid),
		errors.Is(err, auth.ErrStepUpRequired),
		errors.Is(err, auth.ErrMFANotEnabled):
		return Unauthorized(err.Error(), err)

	case errors.Is(err, auth.ErrAccountLocked):
		return Forbidden(err.Error(), err)

	case data.IsTransientDBError(err):
		return ServiceUnavailable("", err)

	default:
		return InternalError(ctx, "", err)
	}
}
