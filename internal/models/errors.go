package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the ledger and every store backend.
var (
	ErrDuplicateIdentity   = errors.New("ledger: account already exists")
	ErrNotFound            = errors.New("ledger: account not found")
	ErrRecipientNotFound   = fmt.Errorf("%w: recipient", ErrNotFound)
	ErrAlreadyGranted      = errors.New("ledger: airdrop already received")
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
	ErrSelfTransfer        = errors.New("ledger: cannot transfer to self")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrNegativeBalance     = errors.New("ledger: balance would become negative")
	ErrStoreUnavailable    = errors.New("ledger: store unavailable")
)

// Unavailable wraps a persistence failure so callers can match ErrStoreUnavailable
// while the underlying cause stays in the message.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// IsDomainError reports whether err is one of the typed ledger failures
// (as opposed to an unclassified I/O error).
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrDuplicateIdentity,
		ErrNotFound,
		ErrAlreadyGranted,
		ErrInvalidAmount,
		ErrSelfTransfer,
		ErrInsufficientBalance,
		ErrNegativeBalance,
		ErrStoreUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
