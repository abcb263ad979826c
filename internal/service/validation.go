package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/go-playground/validator/v10"
)

const memoryTypeNames = "fact, event, observation, preference, note, decision"

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so messages match the wire format.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("memorytype", func(fl validator.FieldLevel) bool {
		return domain.ValidMemoryType(fl.Field().String())
	})
	return v
}

// validateStruct runs the struct tags and converts failures to a *domain.ValidationError.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &domain.ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array:
		unit = " items"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "max", "lte":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "min", "gte":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "memorytype":
		return "must be one of " + memoryTypeNames
	default:
		return "failed " + fe.Tag()
	}
}

func requireContent(field, content string) error {
	if strings.TrimSpace(content) == "" {
		return domain.NewValidationError(field, "must not be blank")
	}
	return nil
}
