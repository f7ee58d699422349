package contextutils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json name
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// IsValidEmail checks if an email address is valid using go-playground/validator
func IsValidEmail(email string) bool {
	return validate.Var(email, "email") == nil
}

// ValidateStruct runs `validate` tags on v and converts the first failure
// into a VALIDATION_FAILED AppError naming the field.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return Validationf(field, "This field is required.")
		case "min", "gte":
			return Validationf(field, "Ensure this value is greater than or equal to %s.", fe.Param())
		case "max", "lte":
			if fe.Kind() == reflect.String {
				return Validationf(field, "Ensure this field has no more than %s characters.", fe.Param())
			}
			return Validationf(field, "Ensure this value is less than or equal to %s.", fe.Param())
		case "oneof":
			return Validationf(field, "\"%v\" is not a valid choice.", fe.Value())
		case "email":
			return Validationf(field, "Enter a valid email address.")
		}
		return Validationf(field, "Invalid value.")
	}
	return WrapError(err, "validation failed")
}
