package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"accounting/internal/types"
)

// Validator wraps go-playground/validator and translates rule violations
// into structured AppErrors the response layer can render.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with struct-tag validation enabled.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct checks the struct's `validate` tags. On violation it
// returns a *types.AppError whose Details map field names (JSON-style,
// lowercased) to the failed rule.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Not a user input problem; the handler passed a non-struct.
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"validation invoked on invalid value", err)
	}

	var violations validator.ValidationErrors
	if !errors.As(err, &violations) {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"unexpected validation failure", err)
	}

	details := make(map[string]any, len(violations))
	code := types.ErrCodeValidationMissingField
	for _, fe := range violations {
		field := strings.ToLower(fe.Field())
		rule := fe.Tag()
		details[field] = rule
		// Pick the most specific code covering all violations; a mixed
		// batch falls back to the generic missing-field code.
		if len(violations) == 1 {
			switch rule {
			case "email":
				code = types.ErrCodeValidationInvalidEmail
			case "required":
				code = types.ErrCodeValidationMissingField
			}
		}
	}

	return types.NewAppErrorWithDetails(code, "request validation failed", err, details)
}
