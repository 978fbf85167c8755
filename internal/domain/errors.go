package domain

import "errors"

var (
	// ErrUnavailable is returned when no database connection could be obtained
	// within the acquisition timeout, or the database is unreachable.
	ErrUnavailable = errors.New("database connection unavailable")

	// ErrNotFound is returned when the requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when a score reduction exceeds the user's total.
	ErrInsufficientBalance = errors.New("insufficient score balance")

	// ErrTransactionExists is returned when a transaction id has already been recorded.
	ErrTransactionExists = errors.New("transaction already exists")

	// ErrInvalidCursor is returned when a pagination cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)
