// Package errs defines the sentinel errors shared by every marketplace
// service. Callers match them with errors.Is; services wrap them with
// fmt.Errorf("...: %w", ...) to add detail.
package errs

import "errors"

var (
	// ErrUnauthorized indicates a role or ownership check failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState indicates the operation is not legal for the entity's
	// current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound indicates an unknown entity id or identity.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance indicates a ledger debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientQuantity indicates an approval exceeds the listing's
	// remaining quantity.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrLimitExceeded indicates a configured cap (wallet limit or supply
	// ceiling) would be breached.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrSelfDealing indicates a recipient tried to claim their own listing.
	ErrSelfDealing = errors.New("self dealing")

	// ErrSystemPaused indicates the pause flag or decommission latch is set.
	ErrSystemPaused = errors.New("system paused")

	// ErrAlreadyRegistered indicates the identity already holds a profile.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrOverflow indicates balance or supply arithmetic would wrap.
	ErrOverflow = errors.New("integer overflow")

	// ErrCategoryMismatch indicates the request category does not match the
	// listing category while strict matching is configured.
	ErrCategoryMismatch = errors.New("category mismatch")
)
