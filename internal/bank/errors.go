package bank

import "errors"

var (
	// ErrAccountNotFound is returned when an account id or email does not
	// resolve to an existing account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientBalance is returned by Withdraw and Transfer when the
	// debited account holds less than the requested amount. The store is
	// left untouched.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSelfTransfer is returned when sender and receiver are the same
	// account.
	ErrSelfTransfer = errors.New("cannot transfer to the same account")

	// ErrInvalidAmount is returned when an operation amount is zero or
	// negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrEmailTaken is returned by Register when the email already belongs
	// to an account.
	ErrEmailTaken = errors.New("email already registered")
)
