package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

// FieldErrors maps a payload field to what is wrong with it
type FieldErrors map[string]string

var payloadValidator = newPayloadValidator()

// newPayloadValidator reports fields by their json name
func newPayloadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidatePublicApplication trims input in place and checks it. Blank
// optional fields are treated as absent.
func ValidatePublicApplication(input *models.PublicApplicationInput) error {
	input.FullName = strings.TrimSpace(input.FullName)
	input.Email = strings.TrimSpace(input.Email)
	input.Phone = trimOptional(input.Phone)
	input.ResumeURL = trimOptional(input.ResumeURL)
	input.LinkedInURL = trimOptional(input.LinkedInURL)
	input.City = trimOptional(input.City)
	input.Country = trimOptional(input.Country)
	input.Message = trimOptional(input.Message)
	input.Currency = trimOptional(input.Currency)
	input.Campaign = trimOptional(input.Campaign)
	input.Channel = trimOptional(input.Channel)
	input.CaptchaToken = trimOptional(input.CaptchaToken)

	err := payloadValidator.Struct(input)
	if err == nil {
		if input.Currency != nil {
			upper := strings.ToUpper(*input.Currency)
			input.Currency = &upper
		}
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return shared.WrapError(err, shared.ErrorCategoryValidation, "INVALID_PAYLOAD", "PublicIntakeService", "Validate", false)
	}

	errs := make(FieldErrors, len(invalid))
	for _, fe := range invalid {
		errs[fe.Field()] = fieldMessage(fe)
	}
	return shared.NewServiceError(shared.ErrorCategoryValidation, "INVALID_PAYLOAD",
		"invalid application data", "PublicIntakeService", "Validate", false, nil).
		WithDetails(errs)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "nombre_completo":
		return "must be between 3 and 160 characters"
	case "moneda":
		return "must be a 3 letter currency code"
	case "acepta_politica":
		return "the privacy policy must be accepted"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be an absolute URL"
	case "gte":
		return "must not be negative"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
