package httpapi

import (
	"errors"

	"incentive-controlplane/pkg/errutil"
	"incentive-controlplane/pkg/fixedpoint"
	"incentive-controlplane/services/achievement"
	"incentive-controlplane/services/challenge"
	"incentive-controlplane/services/engine"
	"incentive-controlplane/services/ledger"
	"incentive-controlplane/services/referral"
)

// apiError translates a domain sentinel to a transport error carrying the
// matching status. Callers can tell a retryable rejection (insufficient
// payment) from a structural one (already referred) by the code and message.
func apiError(err error) error {
	switch {
	case errors.Is(err, engine.ErrInsufficientPayment):
		return errutil.UnprocessableEntity("payment below effective price", err)
	case errors.Is(err, engine.ErrInvalidIndex):
		return errutil.NotFound("listing not found", err)
	case errors.Is(err, engine.ErrInactiveListing):
		return errutil.Conflict("listing is inactive", err)
	case errors.Is(err, engine.ErrSelfEngagement):
		return errutil.BadRequest("creator cannot engage own listing", err)
	case errors.Is(err, engine.ErrTooSoon):
		return errutil.Conflict("weekly interval has not elapsed", err)
	case errors.Is(err, engine.ErrUnauthorized):
		return errutil.Forbidden("actor is not authorized", err)
	case errors.Is(err, engine.ErrPaused):
		return errutil.New(errutil.StatusServiceUnavailable, "engine is paused", errutil.WithErr(err))
	case errors.Is(err, engine.ErrClaimThreshold):
		return errutil.UnprocessableEntity("balance or level below claim threshold", err)
	case errors.Is(err, engine.ErrExternalTransferFailed):
		return errutil.UnprocessableEntity("value transfer rejected", err)
	case errors.Is(err, referral.ErrSelfReferral):
		return errutil.BadRequest("actor cannot refer itself", err)
	case errors.Is(err, referral.ErrAlreadyReferred):
		return errutil.Conflict("actor already has a referrer", err)
	case errors.Is(err, referral.ErrEmptyIdentity):
		return errutil.BadRequest("referrer identity is required", err)
	case errors.Is(err, challenge.ErrStillActive):
		return errutil.Conflict("previous challenge still active", err)
	case errors.Is(err, achievement.ErrInvalidQualifier):
		return errutil.BadRequest("invalid qualifier expression", err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return errutil.UnprocessableEntity("insufficient funds", err)
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrEmptyAccount):
		return errutil.BadRequest("invalid ledger request", err)
	case errors.Is(err, fixedpoint.ErrOverflow):
		return errutil.UnprocessableEntity("arithmetic overflow", err)
	default:
		return errutil.Internal("unexpected error", err)
	}
}
