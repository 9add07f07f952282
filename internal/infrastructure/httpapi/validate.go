package httpapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	domain "investigator/internal/domain/investigation"
)

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("repo_slug", validateRepoSlug)
}

// validateRepoSlug accepts owner/name identifiers, surrounding spaces
// allowed.
func validateRepoSlug(fl validator.FieldLevel) bool {
	return domain.IsRepositoryName(strings.TrimSpace(fl.Field().String()))
}

func validateRequest(v any) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "repo_slug":
		return fmt.Sprintf("%s must look like owner/name, got %q", field, fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
