package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Schedule field limits.
const (
	MaxNameLength  = 200
	MinDayOfMonth  = 1
	MaxDayOfMonth  = 28
	MaxDayOfWeek   = 6
	MaxRecipients  = 50
	timeOfDayLabel = "HH:MM"
)

var scheduleValidator = newScheduleValidator()

func newScheduleValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, _, err := ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

// ParseTimeOfDay parses a strict 24-hour "HH:MM" string into hour and minute.
func ParseTimeOfDay(s string) (int, int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("expected format %s, got %q", timeOfDayLabel, s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, fmt.Errorf("expected format %s, got %q", timeOfDayLabel, s)
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 {
		return 0, 0, fmt.Errorf("hour %d out of range [0,23]", hour)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("minute %d out of range [0,59]", minute)
	}
	return hour, minute, nil
}

// Validate checks a complete schedule record. It is applied at creation and
// to the merged record after a partial update, so a patch can never leave a
// schedule in a state that would be rejected on create.
func (s Schedule) Validate() error {
	err := scheduleValidator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewAppError(ErrCodeValidationMissingField, "invalid schedule", err)
	}
	return fieldError(verrs[0])
}

func fieldError(fe validator.FieldError) *AppError {
	field := fe.StructField()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	details := map[string]any{"field": jsonFieldName(field)}

	switch field {
	case "Frequency":
		return NewAppErrorWithDetails(ErrCodeValidationFrequency,
			"frequency must be one of daily, weekly, monthly", nil, details)
	case "DayOfWeek":
		return NewAppErrorWithDetails(ErrCodeValidationDayOfWeek,
			fmt.Sprintf("day_of_week must be between 0 and %d for weekly schedules", MaxDayOfWeek), nil, details)
	case "DayOfMonth":
		return NewAppErrorWithDetails(ErrCodeValidationDayOfMonth,
			fmt.Sprintf("day_of_month must be between %d and %d for monthly schedules", MinDayOfMonth, MaxDayOfMonth), nil, details)
	case "Time":
		return NewAppErrorWithDetails(ErrCodeValidationTimeOfDay,
			"time must be a 24-hour "+timeOfDayLabel+" value", nil, details)
	case "Format":
		return NewAppErrorWithDetails(ErrCodeValidationFormat,
			"format must be one of document, workbook, both", nil, details)
	case "Recipients":
		if fe.Tag() == "email" {
			details["value"] = fmt.Sprint(fe.Value())
			return NewAppErrorWithDetails(ErrCodeValidationInvalidEmail,
				"recipients must be valid email addresses", nil, details)
		}
		if fe.Tag() == "max" {
			return NewAppErrorWithDetails(ErrCodeValidationTooManyRecipients,
				fmt.Sprintf("at most %d recipients are allowed", MaxRecipients), nil, details)
		}
		return NewAppErrorWithDetails(ErrCodeValidationEmptyRecipients,
			"at least one recipient is required", nil, details)
	}

	if fe.Tag() == "max" {
		return NewAppErrorWithDetails(ErrCodeValidationMissingField,
			fmt.Sprintf("%s must be at most %s characters", jsonFieldName(field), fe.Param()), nil, details)
	}
	return NewAppErrorWithDetails(ErrCodeValidationMissingField,
		jsonFieldName(field)+" is required", nil, details)
}

// jsonFieldName converts a Go field name to its snake_case JSON name.
func jsonFieldName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
