package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var formValidator = validator.New(validator.WithRequiredStructEnabled())

// createJobForm holds the non-file fields of POST /api/jobs.
type createJobForm struct {
	TemplateID string `validate:"required,max=100"`
	JobName    string `validate:"omitempty,max=200"`
	Filename   string `validate:"required,max=255"`
}

// validationErrors lists failed form fields.
type validationErrors []string

func (v validationErrors) Error() string {
	return "invalid request: " + strings.Join(v, "; ")
}

// validateForm runs struct validation and flattens the result.
func validateForm(form any) error {
	err := formValidator.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(validationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			out = append(out, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return out
}
