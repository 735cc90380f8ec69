package contracts

import (
	"errors"
	"strings"
)

var (
	ErrInvalidTransition  = errors.New("transition not allowed")
	ErrForbidden          = errors.New("not allowed to act on this contract")
	ErrNoCustomerEmail    = errors.New("contract has no customer email")
	ErrNotificationFailed = errors.New("customer notification failed")
)

// ValidationError lists the required fields that block validation. It is a
// user-facing outcome, not a system failure.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "faltan campos obligatorios: " + strings.Join(e.Missing, ", ")
}
