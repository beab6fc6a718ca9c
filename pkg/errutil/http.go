package errutil

import (
	"context"
	"errors"
)

// ToBase normalises a domain error into a BaseError so handlers can safely
// render it to the transport layer.
func ToBase(err error) BaseError {
	if err == nil {
		return BaseError{}
	}

	if errors.Is(err, context.Canceled) {
		return BaseError{Code: StatusClientClosedRequest, Message: err.Error()}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return BaseError{Code: StatusTimeout, Message: err.Error()}
	}

	var base BaseError
	if errors.As(err, &base) {
		return base
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return BaseError{Code: coder.Status(), Message: err.Error()}
	}

	return BaseError{Code: StatusInternal, Message: err.Error()}
}
