// Package validation wraps go-playground/validator with the rules of the
// tour domain and translates failures into apperr Validation errors.
//
// Field names in messages are the JSON names clients send, so a missing
// tour name reads "name is required".
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Get returns the shared validator instance.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		validate.RegisterStructValidation(tourRules, model.Tour{})
	})
	return validate
}

// tourRules holds the cross-field rules of a tour.
func tourRules(sl validator.StructLevel) {
	t := sl.Current().Interface().(model.Tour)
	if t.PriceDiscount != nil && *t.PriceDiscount >= t.Price {
		sl.ReportError(t.PriceDiscount, "priceDiscount", "PriceDiscount", "ltprice", "")
	}
	if t.StartLocation != nil && len(t.StartLocation.Coordinates) != 0 && len(t.StartLocation.Coordinates) != 2 {
		sl.ReportError(t.StartLocation.Coordinates, "startLocation", "StartLocation", "point", "")
	}
}

// Validator adapts the shared instance to echo.Validator.
type Validator struct{}

// Validate checks s and returns an apperr Validation error listing every
// failed field.
func (Validator) Validate(s interface{}) error {
	return Struct(s)
}

// Struct validates s.
func Struct(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(err, apperr.Validation, "Invalid input data.")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, translate(fe))
	}
	return apperr.Wrap(err, apperr.Validation, "Invalid input data. "+strings.Join(msgs, ". "))
}

var messages = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"ltprice":  "Discount price (%s) should be below regular price",
	"point":    "%s must be a [longitude, latitude] pair",
}

var messagesWithParam = map[string]string{
	"oneof":   "%s must be one of: %s",
	"min":     "%s must have at least %s characters",
	"max":     "%s must have at most %s characters",
	"gte":     "%s must be greater than or equal to %s",
	"lte":     "%s must be less than or equal to %s",
	"gt":      "%s must be greater than %s",
	"lt":      "%s must be less than %s",
	"eqfield": "%s must match %s",
	"len":     "%s must have length %s",
}

func translate(fe validator.FieldError) string {
	field := fe.Field()
	if tmpl, ok := messages[fe.Tag()]; ok {
		if fe.Tag() == "ltprice" {
			return fmt.Sprintf(tmpl, fmt.Sprint(reflect.Indirect(reflect.ValueOf(fe.Value()))))
		}
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := messagesWithParam[fe.Tag()]; ok {
		param := fe.Param()
		if fe.Tag() == "min" || fe.Tag() == "max" {
			if k := fe.Kind(); k != reflect.String && k != reflect.Slice {
				tmpl = strings.Replace(tmpl, "have at least %s characters", "be at least %s", 1)
				tmpl = strings.Replace(tmpl, "have at most %s characters", "be at most %s", 1)
			}
		}
		if fe.Tag() == "eqfield" {
			param = lowerFirst(param)
		}
		return fmt.Sprintf(tmpl, field, param)
	}
	return fmt.Sprintf("%s failed on %s", field, fe.Tag())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
