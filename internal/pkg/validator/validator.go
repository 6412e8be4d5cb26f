// Package validator provides a thin wrapper around the go-playground/validator library,
// enabling declarative struct validation with standardized error formatting.
//
// Besides the built-in tags it registers "rpcurl", which accepts absolute
// http and https URLs with a host, the shapes a chain provider can be
// dialed with.
package validator

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is returned as the first error in a multi-error chain when validation fails.
var ErrValidationFailed = errors.New("struct validation failed")

// validator is a singleton instance of the go-playground validator,
// initialized automatically on package load.
var validator *gvalidator.Validate

// errStringFormat defines the template used to describe individual validation errors.
//
// Example: "'RPCURL': value 'localhost' does not meet the requirements for the 'rpcurl' validation"
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

// rpcURLSchemes lists the schemes accepted by the rpcurl tag.
var rpcURLSchemes = []string{"http", "https"}

func init() {
	validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	if err := validator.RegisterValidation("rpcurl", validateRPCURL); err != nil {
		panic(err)
	}
}

// validateRPCURL implements the rpcurl tag.
func validateRPCURL(fl gvalidator.FieldLevel) bool {
	return IsRPCURL(fl.Field().String())
}

// IsRPCURL reports whether raw is an absolute provider URL.
func IsRPCURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return u.Host != "" && slices.Contains(rpcURLSchemes, u.Scheme)
}

// formatError transforms a raw validator error into a structured, human-readable multi-error chain.
//
// If the input is a set of validation errors, it returns a combined error with ErrValidationFailed as the root,
// followed by a formatted message for each field error. Otherwise, the original error is returned unchanged.
func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat,
			validationErr.Field(),
			validationErr.Value(),
			validationErr.Tag(),
		))
	}

	return errors.Join(errs...)
}

// Validate checks if the given struct satisfies its validation tags.
//
// It returns nil if all fields pass validation. Otherwise, it returns a combined error that includes
// ErrValidationFailed and one formatted message for each field that failed validation.
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}
