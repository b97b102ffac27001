package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the validate tags of s and joins the failures into one
// readable error
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var problems []string
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		param := fe.Param()

		switch fe.Tag() {
		case "required":
			problems = append(problems, field+" is required")
		case "min":
			problems = append(problems, field+" must be at least "+param)
		case "max":
			problems = append(problems, field+" must be at most "+param)
		case "email":
			problems = append(problems, field+" must be a valid email")
		case "oneof":
			problems = append(problems, field+" must be one of: "+param)
		default:
			problems = append(problems, field+" is invalid")
		}
	}
	return errors.New(strings.Join(problems, ", "))
}
