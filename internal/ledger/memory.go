package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Transaction status values tracked by the in-memory ledger.
const (
	statusReserved = "RESERVED"
	statusReleased = "RELEASED"
	statusCharged  = "CHARGED"
)

// Transaction is one ledger entry.
type Transaction struct {
	ID          string
	TravellerID string
	DriverID    string
	Amount      int64
	Description string
	Reference   string
	Status      string

	// ContinuesID links a re-established reservation (unrelease,
	// uncharge) back to the transaction it logically continues.
	ContinuesID string
}

// Memory is an in-memory Ledger. It stands in for the remote ledger
// service in development and tests, the same way the ride platform
// mocks its payment provider.
type Memory struct {
	mu   sync.Mutex
	txns map[string]*Transaction

	// ReserveError, when set, is returned by Reserve. Used by tests to
	// exercise the insufficient-balance path.
	ReserveError error
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{txns: make(map[string]*Transaction)}
}

// Reserve holds amount credits on the traveller's account.
func (m *Memory) Reserve(ctx context.Context, travellerID string, amount int64, description, reference string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReserveError != nil {
		return "", m.ReserveError
	}

	txn := &Transaction{
		ID:          uuid.New().String(),
		TravellerID: travellerID,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Status:      statusReserved,
	}
	m.txns[txn.ID] = txn

	return txn.ID, nil
}

// Release returns a reserved amount to the traveller.
func (m *Memory) Release(ctx context.Context, paymentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, err := m.get(paymentID, statusReserved)
	if err != nil {
		return "", err
	}
	txn.Status = statusReleased

	return txn.ID, nil
}

// Unrelease re-establishes a released reservation under a new reference.
func (m *Memory) Unrelease(ctx context.Context, paymentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.get(paymentID, statusReleased)
	if err != nil {
		return "", err
	}

	txn := &Transaction{
		ID:          uuid.New().String(),
		TravellerID: old.TravellerID,
		Amount:      old.Amount,
		Description: old.Description,
		Reference:   old.Reference,
		Status:      statusReserved,
		ContinuesID: old.ID,
	}
	m.txns[txn.ID] = txn

	return txn.ID, nil
}

// Charge settles a reserved amount to the driver.
func (m *Memory) Charge(ctx context.Context, driverID string, paymentID string, amount int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, err := m.get(paymentID, statusReserved)
	if err != nil {
		return "", err
	}
	txn.Status = statusCharged
	txn.DriverID = driverID

	return txn.ID, nil
}

// Uncharge reverses a charge back into a reservation under a new reference.
func (m *Memory) Uncharge(ctx context.Context, paymentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.get(paymentID, statusCharged)
	if err != nil {
		return "", err
	}

	txn := &Transaction{
		ID:          uuid.New().String(),
		TravellerID: old.TravellerID,
		Amount:      old.Amount,
		Description: old.Description,
		Reference:   old.Reference,
		Status:      statusReserved,
		ContinuesID: old.ID,
	}
	m.txns[txn.ID] = txn

	return txn.ID, nil
}

// Get returns a transaction for test assertions.
func (m *Memory) Get(paymentID string) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txns[paymentID]
}

func (m *Memory) get(paymentID, wantStatus string) (*Transaction, error) {
	txn, ok := m.txns[paymentID]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown transaction %q", paymentID)
	}
	if txn.Status != wantStatus {
		return nil, fmt.Errorf("ledger: transaction %q is %s, want %s", paymentID, txn.Status, wantStatus)
	}
	return txn, nil
}

// Ensure Memory implements Ledger.
var _ Ledger = (*Memory)(nil)
