package donations

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"donations/internal/domain"
	"donations/internal/util"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type initializeRules struct {
	Amount float64 `validate:"required"`
	Email  string  `validate:"required,donor_email"`
}

type verifyRules struct {
	Reference string `validate:"required,donation_reference"`
}

// RequestValidator checks donation input before anything reaches the gateway.
type RequestValidator struct {
	validate  *validator.Validate
	minAmount float64
	maxAmount float64
}

func NewRequestValidator(minAmount, maxAmount float64) *RequestValidator {
	v := validator.New()
	_ = v.RegisterValidation("donor_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("donation_reference", func(fl validator.FieldLevel) bool {
		return util.IsDonationReference(fl.Field().String())
	})
	return &RequestValidator{validate: v, minAmount: minAmount, maxAmount: maxAmount}
}

func (rv *RequestValidator) ValidateInitialize(in InitializeInput) error {
	err := rv.validate.Struct(initializeRules{Amount: in.Amount, Email: strings.TrimSpace(in.Email)})
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Tag() == "required" {
				return domain.NewValidationError("Amount and email are required")
			}
		}
		return domain.NewValidationError("Invalid email address")
	} else if err != nil {
		return fmt.Errorf("failed to validate initialize request: %w", err)
	}

	if in.Amount < rv.minAmount {
		return domain.NewValidationError("Minimum donation amount is ₵" + formatLimit(rv.minAmount))
	}
	if in.Amount > rv.maxAmount {
		return domain.NewValidationError("Maximum donation amount is ₵" + formatLimit(rv.maxAmount))
	}
	return nil
}

func (rv *RequestValidator) ValidateReference(reference string) error {
	err := rv.validate.Struct(verifyRules{Reference: reference})
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		if fieldErrs[0].Tag() == "required" {
			return domain.NewValidationError("Reference is required")
		}
		return domain.NewValidationError("Invalid transaction reference")
	} else if err != nil {
		return fmt.Errorf("failed to validate reference: %w", err)
	}
	return nil
}

func formatLimit(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
