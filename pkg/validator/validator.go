package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator checks request DTOs and renders failures keyed by the JSON
// path of the offending field, e.g. "team.nurse_ids[1]".
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &CustomValidator{
		validator: v,
	}
}

// jsonFieldName reports the json tag name so errors match the request body.
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func (cv *CustomValidator) FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors
	}
	for _, e := range validationErrors {
		errors[fieldPath(e)] = message(e)
	}
	return errors
}

// fieldPath drops the struct type from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func message(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "uuid", "uuid4":
		return field + " must be a valid id"
	case "min":
		return field + " must be at least " + e.Param() + unit(e.Kind())
	case "max":
		return field + " must be at most " + e.Param() + unit(e.Kind())
	case "gte":
		return field + " must be greater than or equal to " + e.Param()
	case "lte":
		return field + " must be less than or equal to " + e.Param()
	case "oneof":
		return field + " must be one of: " + e.Param()
	case "gtfield":
		return field + " must be after " + e.Param()
	case "datetime":
		return field + " must be a timestamp in the format " + e.Param()
	default:
		return field + " is invalid"
	}
}

// unit names what min/max count: characters for text, entries for lists,
// nothing for numbers such as minutes or quantities.
func unit(kind reflect.Kind) string {
	switch kind {
	case reflect.String:
		return " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return " entries"
	default:
		return ""
	}
}
