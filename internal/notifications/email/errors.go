package email

import (
	"errors"

	"safetyreports/internal/types"
)

// ErrNoRecipients is returned by Deliver when there is nobody to send to.
var ErrNoRecipients = types.NewAppError(types.ErrCodeValidationEmptyRecipients, "report has no recipients", nil)

// IsBlocklistError reports whether the provider refused the message for its
// recipients (suppression list, rejected address).
func IsBlocklistError(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeEmailBlocked
}

// IsTransient reports whether a delivery failure may succeed on a later run:
// throttling, provider outages and cancelled sends.
func IsTransient(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrCodeUpstreamRateLimited, types.ErrCodeUpstreamUnavailable, types.ErrCodeUpstreamEmailProvider:
		return true
	}
	return false
}
