package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"convochat/internal/pkg/logx"
)

// CustomError is the error type shared by the REST layer and the real-time core.
type CustomError struct {
	// Code is the business error code (see constants).
	Code int

	// Message is the client-facing description.
	Message string

	// Status is the HTTP status used when the error is rendered by the REST layer.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError returns a *CustomError built from the template registered for code.
// details are printf arguments for templates containing a verb; for ErrUnknown the first
// detail may be the underlying error, which is logged and not exposed.
// Unknown codes degrade to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &unknownErr
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			logx.Error(originalErr, "Handling ErrUnknown with underlying error")
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn("Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code)
		}
	}

	return &customErr
}

// As extracts a *CustomError from err, falling back to ErrUnknown.
func As(err error) *CustomError {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}
	return NewError(ErrUnknown)
}

// Is reports whether err carries the given application code.
func Is(err error, code int) bool {
	var customErr *CustomError
	return errors.As(err, &customErr) && customErr.Code == code
}
