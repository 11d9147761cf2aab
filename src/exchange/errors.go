package exchange

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the adapter. Transient codes are retried by the
// adapter's own backoff; rejection codes are surfaced immediately and never
// retried.
const (
	CodeTimeout            = "TIMEOUT"
	CodeUnavailable        = "VENUE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInsufficientMargin = "INSUFFICIENT_MARGIN"
	CodeInvalidSymbol      = "INVALID_SYMBOL"
	CodeLeverageCap        = "LEVERAGE_ABOVE_CAP"
	CodeOrderRejected      = "ORDER_REJECTED"
	CodeBadRequest         = "BAD_REQUEST"
)

// Error carries the venue failure taxonomy: transient infrastructure errors
// versus business rejections.
type Error struct {
	Code      string
	Msg       string
	Transient bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("exchange: %s: %s", e.Code, e.Msg)
}

// TransientErr builds a retryable infrastructure error.
func TransientErr(code, msg string) *Error {
	return &Error{Code: code, Msg: msg, Transient: true}
}

// RejectErr builds a permanent business rejection.
func RejectErr(code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// IsTransient reports whether err is a retryable venue failure.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}

// ErrCode extracts the machine-readable code, if any.
func ErrCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
