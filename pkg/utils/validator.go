// Package utils holds request validation helpers shared by the HTTP and
// application layers.
package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

// Validator holds the singleton instance of the validator.
var defaultValidator *validator.Validate

func init() {
	defaultValidator = validator.New()
	// Register custom validation functions
	_ = defaultValidator.RegisterValidation("txtype", validateTxType)
}

// ValidateStruct validates a struct using the default validator.
// Field failures are attached to the returned error as metadata keyed by
// the snake_case field name.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.WrapError(err, constants.ErrCodeInvalidArgument, "invalid request")
	}
	fields := make([]string, 0, len(validationErrors))
	appErr := errors.NewInvalidArgumentError("request validation failed")
	for _, fe := range validationErrors {
		name := toSnakeCase(fe.Field())
		fields = append(fields, name)
		appErr = appErr.WithMetadata(name, formatValidationError(fe))
	}
	return appErr.WithMetadata("fields", strings.Join(fields, ","))
}

// validateTxType accepts the three transaction token types.
func validateTxType(fl validator.FieldLevel) bool {
	return constants.TokenType(fl.Field().String()).IsTx()
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "txtype":
		return "must be one of: tx-users tx-internal tx-external"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// toSnakeCase converts a string from CamelCase to snake_case.
func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
