package httpx

import (
	"reflect"
	"strings"

	"accountapi/internal/platform/crypto"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(f.Name[:1]) + f.Name[1:]
		}
		return name
	})
	_ = validate.RegisterValidation("password_pattern", validatePasswordPattern)
}

func validatePasswordPattern(fl validator.FieldLevel) bool {
	return crypto.ValidatePasswordStrength(fl.Field().String()) == nil
}

// ValidateStruct returns a message key per failing field, keyed by the
// field's json name. Only the first failing rule of a field is reported.
func ValidateStruct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"body": "validation_failure"}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		out[field] = messageKey(field, fe.Tag())
	}
	return out
}

func messageKey(field, tag string) string {
	switch tag {
	case "required":
		return field + "_null"
	case "min", "max", "len":
		return field + "_size"
	case "password_pattern", "email":
		return field + "_invalid"
	default:
		return field + "_invalid"
	}
}
