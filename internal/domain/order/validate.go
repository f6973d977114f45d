package order

import (
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Validator checks shipping details and renders English messages.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator returns a Validator using json tag names as field names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	translator, _ := ut.New(en.New(), en.New()).GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(v, translator)

	return &Validator{validate: v, translator: translator}
}

// Normalize trims surrounding whitespace from every field.
func (s Shipping) Normalize() Shipping {
	return Shipping{
		Name:    strings.TrimSpace(s.Name),
		Email:   strings.TrimSpace(s.Email),
		Phone:   strings.TrimSpace(s.Phone),
		Address: strings.TrimSpace(s.Address),
		Notes:   strings.TrimSpace(s.Notes),
	}
}

// Check validates s and returns the first failure as an
// *apperr.ValidationError.
func (v *Validator) Check(s Shipping) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, "validate shipping")
	}
	first := verrs[0]
	return &apperr.ValidationError{
		Field:   first.Field(),
		Message: first.Translate(v.translator),
	}
}
