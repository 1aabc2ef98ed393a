package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("authentication required")

	ErrTermsNotAccepted   = fmt.Errorf("%w: terms of purchase must be accepted", ErrValidation)
	ErrEmptyCart          = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrEmptyMessage       = fmt.Errorf("%w: message is empty", ErrValidation)
	ErrInvalidTransition  = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrCheckoutInProgress = fmt.Errorf("%w: checkout already in progress", ErrConflict)
	ErrKeyReused          = fmt.Errorf("%w: idempotency key already used for a different cart", ErrConflict)
	ErrCheckoutFailed     = errors.New("checkout failed")
)

// notFound maps a missing row to ErrNotFound and passes other errors through.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// duplicate maps a unique-constraint violation to ErrConflict.
func duplicate(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s already exists: %w", what, ErrConflict)
	}
	return err
}
