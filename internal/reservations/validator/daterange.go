package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "campsite/pkg/errors"
	"campsite/pkg/logger"
	"campsite/pkg/model"
)

const (
	// Longest inclusive span a single reservation may cover.
	MaxReserveDays = 3

	// Reservations may start no earlier than tomorrow and end no later
	// than one month after tomorrow.
	horizonMonths = 1
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// DateRangeValidator checks reservation requests: identity fields via
// struct tags, dates via the booking rules. Malformed dates are
// InvalidInput errors; a range that is merely too long is an expected
// business outcome and is reported as a boolean, not an error.
type DateRangeValidator struct {
	validate *validator.Validate
	log      *logger.Logger
}

func NewDateRangeValidator(log *logger.Logger) *DateRangeValidator {
	return &DateRangeValidator{
		validate: validator.New(),
		log:      log,
	}
}

// ValidateRequest checks the identity fields of a candidate reservation.
func (v *DateRangeValidator) ValidateRequest(r *model.Reservation) error {
	if err := v.validate.Struct(r); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			translated := v.translateValidationErrors(validationErrs)
			v.log.Warn("Reservation request validation failed", "error", translated)
			return apperrors.Validation("Invalid reservation request", map[string]any{"error": translated.Error()})
		}
		return err
	}
	return nil
}

// IsReservable applies the date rules in order. Rules 1-4 (missing dates,
// dates before tomorrow, reversed range, beyond the booking horizon) are
// caller errors returned as InvalidInput. The final rule is the expected
// business check: it returns false when the inclusive span exceeds
// MaxReserveDays and never errors.
func (v *DateRangeValidator) IsReservable(startFrom, endTo, today model.Date) (bool, error) {
	if startFrom.IsZero() {
		return false, apperrors.InvalidInput("Start date is mandatory")
	}
	if endTo.IsZero() {
		return false, apperrors.InvalidInput("End date is mandatory")
	}

	tomorrow := today.AddDays(1)
	if startFrom.Before(tomorrow) || endTo.Before(tomorrow) {
		return false, apperrors.InvalidInput("You need to reserve from tomorrow")
	}

	if startFrom.After(endTo) {
		return false, apperrors.InvalidInput("Start date should before or equal the end date")
	}

	horizon := tomorrow.AddMonths(horizonMonths)
	if startFrom.After(horizon) || endTo.After(horizon) {
		return false, apperrors.InvalidInput("You can only reserve dates in one month from tomorrow")
	}

	return !startFrom.AddDays(MaxReserveDays).Before(endTo.AddDays(1)), nil
}

func (v *DateRangeValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
