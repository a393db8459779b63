package api

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Slugs are lowercase, digits and single hyphens between runs.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type credentialsPayload struct {
	Username string `json:"username" validate:"required,min=6,max=15"`
	Password string `json:"password" validate:"required,min=6"`
}

type createPostPayload struct {
	Title string `json:"title" validate:"required,min=6,max=64"`
	Body  string `json:"body" validate:"required,min=30,max=2048"`
	Slug  string `json:"slug" validate:"required,slug"`
}

type createCommentPayload struct {
	Body string `json:"body" validate:"required,min=5,max=64"`
}

type payloadValidator struct {
	validate *validator.Validate
}

func newPayloadValidator() *payloadValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report errors under the JSON field name, not the Go one.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return &payloadValidator{validate: v}
}

// check validates a payload struct and returns the failures keyed by field,
// or nil when the payload is valid.
func (pv *payloadValidator) check(payload any) fieldErrors {
	err := pv.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fieldErrors{"payload": {"Invalid payload."}}
	}

	fe := fieldErrors{}
	for _, f := range verrs {
		fe[f.Field()] = append(fe[f.Field()], validationMessage(f))
	}
	return fe
}

func validationMessage(f validator.FieldError) string {
	switch f.Tag() {
	case "required":
		return "Required."
	case "min":
		return fmt.Sprintf("Must be at least %s characters.", f.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", f.Param())
	case "slug":
		return "Must contain only lowercase letters, digits and hyphens."
	default:
		return "Invalid value."
	}
}
