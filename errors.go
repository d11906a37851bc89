package wagate

import (
	"context"
	"errors"

	"github.com/rfakhoury/wagate/dispatch"
	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/sessions"
	"github.com/rfakhoury/wagate/tenant"
)

// Category is the stable failure classification a transport maps onto its
// own status codes. Every error returned by Service resolves to exactly one.
type Category string

const (
	// CategoryValidation: the request was malformed and no session state was
	// touched.
	CategoryValidation Category = "validation"
	// CategoryNotFound: the referenced session or job does not exist.
	CategoryNotFound Category = "not_found"
	// CategoryNotReady: the operation needs a connected session but it is
	// initializing, pending, or disconnected.
	CategoryNotReady Category = "not_ready"
	// CategoryTimeout: readiness was not reached within the wait budget.
	CategoryTimeout Category = "timeout"
	// CategoryUpstream: the driver operation itself failed; the underlying
	// message is preserved in the error chain.
	CategoryUpstream Category = "upstream"
	// CategoryInternal: an unexpected failure.
	CategoryInternal Category = "internal"
)

// Categorize resolves an error from any Service operation to its category.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tenant.ErrInvalid),
		errors.Is(err, ErrBadRecipient),
		errors.Is(err, ErrBadAttachment),
		errors.Is(err, dispatch.ErrEmptyPayload),
		errors.Is(err, dispatch.ErrNoRecipients):
		return CategoryValidation
	case errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, dispatch.ErrJobNotFound),
		errors.Is(err, driver.ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, sessions.ErrNotReady),
		errors.Is(err, sessions.ErrUnavailable):
		return CategoryNotReady
	case errors.Is(err, sessions.ErrAwaitTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrUpstream),
		errors.Is(err, driver.ErrRecipientUnknown),
		errors.Is(err, driver.ErrReleased):
		return CategoryUpstream
	default:
		return CategoryInternal
	}
}
