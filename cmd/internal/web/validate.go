package web

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"justice/cmd/identity"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Field names in errors follow the json tag, so messages line up with the body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return identity.ValidUsername(fl.Field().String())
	})
	_ = v.RegisterValidation("trimmed_min", func(fl validator.FieldLevel) bool {
		var n int
		if _, err := fmt.Sscan(fl.Param(), &n); err != nil {
			return false
		}
		return len([]rune(strings.TrimSpace(fl.Field().String()))) >= n
	})
	return v
}

// Validate runs struct tags on v and returns the failing fields, or nil.
func Validate(v any) Fields {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Fields{"body": {"Invalid request"}}
	}

	out := make(Fields, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		out[name] = append(out[name], message(fe)...)
	}
	return out
}

func message(fe validator.FieldError) []string {
	label := fe.Field()
	if label == "" {
		label = "Field"
	}
	label = strings.ToUpper(label[:1]) + label[1:]

	switch fe.Tag() {
	case "username":
		s, _ := fe.Value().(string)
		return identity.UsernameProblems(s)
	case "required":
		return []string{label + " is empty"}
	case "trimmed_min", "min":
		return []string{fmt.Sprintf("%s must be at least %s characters", label, fe.Param())}
	case "max":
		return []string{fmt.Sprintf("%s must be at most %s characters", label, fe.Param())}
	case "gt", "gte":
		return []string{fmt.Sprintf("%s must be greater than %s", label, fe.Param())}
	case "dive", "unique":
		return []string{label + " contains invalid entries"}
	default:
		return []string{label + " is invalid"}
	}
}
