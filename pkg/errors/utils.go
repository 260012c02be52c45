package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Helper to check if an error is of our Error type
func IsSlateError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// Helper to extract context from our errors
func GetContext(err error) map[string]string {
	if slateErr, ok := err.(*Error); ok {
		return slateErr.Context
	}
	return nil
}

// Helper to get error code
func GetCode(err error) string {
	if slateErr, ok := err.(*Error); ok {
		return slateErr.Code.String()
	}
	return ""
}

// HasCode reports whether any error in the chain carries the given code.
// Retry, skip, and abort decisions key off this rather than error text.
func HasCode(err error, code Code) bool {
	for err != nil {
		if slateErr, ok := err.(*Error); ok && slateErr.Code.Equals(code) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Helper to format error for logging
func FormatError(err error) string {
	if slateErr, ok := err.(*Error); ok {
		var parts []string
		parts = append(parts, fmt.Sprintf("Code: %s", slateErr.Code))
		parts = append(parts, fmt.Sprintf("Message: %s", slateErr.Message))

		if len(slateErr.Context) > 0 {
			parts = append(parts, "Context:")
			for k, v := range slateErr.Context {
				parts = append(parts, fmt.Sprintf("  %s: %v", k, v))
			}
		}

		if slateErr.Cause != nil {
			parts = append(parts, fmt.Sprintf("Cause: %v", slateErr.Cause))
		}

		return strings.Join(parts, "\n")
	}
	return err.Error()
}

// AsError converts any error to the internal *Error format.
// InternalError types are transformed via their Transform() method,
// existing *Error values pass through, and anything else is wrapped
// as a generic internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	if ie, ok := err.(InternalError); ok {
		return ie.Transform()
	}

	if internalErr, ok := err.(*Error); ok {
		return internalErr
	}

	return New(CommonInternal, err.Error(), err)
}
