package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct checks `validate` tags and flattens the failures into one
// operator-readable error.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var messages []string
	for _, ve := range err.(validator.ValidationErrors) {
		field := strings.ToLower(ve.Field())

		switch ve.Tag() {
		case "required":
			messages = append(messages, field+" is required")
		case "min":
			messages = append(messages, field+" must be at least "+ve.Param())
		case "max":
			messages = append(messages, field+" must be at most "+ve.Param())
		case "email":
			messages = append(messages, field+" must be a valid email")
		default:
			messages = append(messages, field+" is invalid")
		}
	}

	return errors.New(strings.Join(messages, ", "))
}
