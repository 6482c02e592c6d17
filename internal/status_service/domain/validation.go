package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the creation input. Failures wrap ErrValidation.
func (in CreateStatusInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return validationError(err)
	}
	return nil
}

// Validate checks only the fields present in the partial update.
func (in UpdateStatusInput) Validate() error {
	if in.Email != nil {
		if err := validate.Var(strings.TrimSpace(*in.Email), "required,email"); err != nil {
			return fmt.Errorf("%w: email: %s", ErrValidation, tagOf(err))
		}
	}
	if in.SendID != nil && strings.TrimSpace(*in.SendID) == "" {
		return fmt.Errorf("%w: sendid: required", ErrValidation)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, ", "))
}

func tagOf(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Tag()
	}
	return err.Error()
}
