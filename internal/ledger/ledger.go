package ledger

import (
	"context"
	"errors"
)

// ErrInsufficientBalance is returned by Reserve when the traveller's
// credit balance cannot cover the fare. It is a business error: the
// booking flow propagates it to the caller and the trip stays in its
// pre-operation state.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// Ledger is the external fare ledger port. Every call returns a
// transaction reference; calls are idempotent from the caller's
// perspective keyed by that reference. The settlement saga does not
// deduplicate itself, relying on its precondition assertions to catch
// double invocation.
type Ledger interface {
	// Reserve holds amount credits on the traveller's account and
	// returns the reservation reference.
	Reserve(ctx context.Context, travellerID string, amount int64, description, reference string) (string, error)

	// Release returns a reserved amount to the traveller.
	Release(ctx context.Context, paymentID string) (string, error)

	// Unrelease re-establishes a released reservation, returning a new
	// reference that logically continues the original.
	Unrelease(ctx context.Context, paymentID string) (string, error)

	// Charge settles a reserved amount to the driver.
	Charge(ctx context.Context, driverID string, paymentID string, amount int64) (string, error)

	// Uncharge reverses a charge back into a reservation, returning a
	// new reference that logically continues the original.
	Uncharge(ctx context.Context, paymentID string) (string, error)
}
