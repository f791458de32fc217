package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors, used with errors.Is. The HTTP boundary maps these to
// response codes via the Is* helpers below.
var (
	// ErrInvalidInput is returned for missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrZeroTicketExchange is returned when the bottle count is too low
	// to earn any ticket credit.
	ErrZeroTicketExchange = errors.New("bottle count too low for any ticket credit")

	// ErrInsufficientBalance is returned when a usage debit exceeds the
	// post-sweep ticket balance.
	ErrInsufficientBalance = errors.New("insufficient ticket balance")

	// ErrAccountNotFound is returned for an unknown passenger account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when registering an already-known id.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountHasHistory is returned when deleting an account that
	// ledger transactions still reference.
	ErrAccountHasHistory = errors.New("account has ledger history")

	// ErrTransactionNotFound is returned for an unknown transaction id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrPermissionDenied is returned when a non-privileged actor calls a
	// privileged operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict is returned when the per-account exclusion scope could
	// not be entered. Callers should retry the whole operation.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrAlreadyReversed is returned when reversing a reversed entry.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrBatchAlreadyTouched is returned when reversing an exchange whose
	// batch has been partially consumed or forfeited. Removing such a
	// batch would desynchronize balance and batch remainders.
	ErrBatchAlreadyTouched = errors.New("batch already consumed or forfeited")

	// ErrLedgerDrift is returned when the ticket balance exceeds the sum
	// of batch remainders, so a usage passes the balance check but cannot
	// be fully applied to batches. Reversing a usage restores the balance
	// without restoring remainders, which is the known way an account
	// enters this state. The operation rolls back; the surplus balance
	// stays spendable up to what the batches actually hold.
	ErrLedgerDrift = errors.New("ticket balance exceeds batch remainders")
)

// InsufficientBalanceError carries the shortage details.
type InsufficientBalanceError struct {
	AccountID string
	Available int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient ticket balance for account %s: available %d, requested %d",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// IsValidation reports whether the error is due to invalid client input.
// No state is mutated for these.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrZeroTicketExchange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrBatchAlreadyTouched)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsRetryable reports whether the whole operation may succeed on retry,
// starting again from the sweep step.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
