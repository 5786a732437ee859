package domain

import "errors"

var (
	ErrValidation              = errors.New("validation failed")
	ErrNotConfigured           = errors.New("payment gateway not configured")
	ErrInvalidConfiguration    = errors.New("invalid payment configuration")
	ErrGatewayTimeout          = errors.New("payment gateway timeout")
	ErrInvalidGatewayResponse  = errors.New("invalid response from payment gateway")
	ErrInvalidTransactionData  = errors.New("invalid transaction data received")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrMissingSignature        = errors.New("missing webhook signature")
	ErrDonationNotFound        = errors.New("donation not found")
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrNegativeTotal           = errors.New("campaign total cannot go below zero")
	ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
)

// ValidationError is a user-correctable input problem. It matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}
