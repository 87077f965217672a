package dto

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// Validator checks request payloads against their struct tags.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a validator that reports JSON field names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates payload and converts failures into INVALID_PAYLOAD errors
// whose details map each offending field to the failed rule.
func (v *Validator) Struct(payload any) error {
	err := v.v.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewInvalidPayload("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperrors.NewInvalidPayload("invalid payload", details)
}
