// Package validation provides custom validators for the application
package validation

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var digits6 = regexp.MustCompile(`^[0-9]{6}$`)

// Initialize registers all custom validators
func Initialize() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("digits6", validateDigits6)
		if err != nil {
			panic(err)
		}
	}
}

// validateDigits6 checks that a string is exactly 6 ASCII digits, the format
// of an email verification code
func validateDigits6(fl validator.FieldLevel) bool {
	return digits6.MatchString(fl.Field().String())
}
