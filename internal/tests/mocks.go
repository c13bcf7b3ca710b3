package tests

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/repository"
	"voyage/internal/uow"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is a mock implementation of TripRepository.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	// Counters for verification
	UpdateCallCount    int32
	UpdateLegCallCount int32

	// Error injection
	GetByIDError error
	UpdateError  error

	// ExtraDepartingIDs are appended to ListDeparting results. Tests
	// use them to simulate stale sweep entries for trips that no
	// longer exist.
	ExtraDepartingIDs []string
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips: make(map[string]*domain.Trip),
	}
}

// AddTrip adds a trip to the mock repository.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = copyTrip(trip)
}

// StoredTrip returns the stored trip for assertions.
func (m *MockTripRepository) StoredTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil
	}
	return copyTrip(trip)
}

// StoredLeg returns the stored leg for assertions.
func (m *MockTripRepository) StoredLeg(legID string) *domain.Leg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if leg := m.findLeg(legID); leg != nil {
		copy := *leg
		return &copy
	}
	return nil
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = copyTrip(trip)
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	if m.GetByIDError != nil {
		return nil, m.GetByIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTrip(trip), nil
}

func (m *MockTripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.trips[trip.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.State = trip.State
	stored.ValidationExpirationTime = trip.ValidationExpirationTime
	stored.ValidationReminderTime = trip.ValidationReminderTime
	return nil
}

func (m *MockTripRepository) GetLeg(ctx context.Context, legID string) (*domain.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if leg := m.findLeg(legID); leg != nil {
		copy := *leg
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockTripRepository) UpdateLeg(ctx context.Context, leg *domain.Leg) error {
	atomic.AddInt32(&m.UpdateLegCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.findLeg(leg.ID)
	if stored == nil {
		return repository.ErrNotFound
	}
	*stored = *leg
	return nil
}

func (m *MockTripRepository) ListDeparting(ctx context.Context, until time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, trip := range m.trips {
		if trip.State.Terminal() {
			continue
		}
		if !trip.DepartureTime.After(until) {
			ids = append(ids, trip.ID)
		}
	}
	ids = append(ids, m.ExtraDepartingIDs...)
	return ids, nil
}

func (m *MockTripRepository) findLeg(legID string) *domain.Leg {
	for _, trip := range m.trips {
		for _, leg := range trip.Legs {
			if leg.ID == legID {
				return leg
			}
		}
	}
	return nil
}

func copyTrip(trip *domain.Trip) *domain.Trip {
	copy := *trip
	copy.Legs = make([]*domain.Leg, len(trip.Legs))
	for i, leg := range trip.Legs {
		l := *leg
		copy.Legs[i] = &l
	}
	return &copy
}

// ──────────────────────────────────────────────
// MOCK BOOKING REPOSITORY
// ──────────────────────────────────────────────

// MockBookingRepository is a mock implementation of BookingRepository.
type MockBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking

	UpdateCallCount int32
}

// NewMockBookingRepository creates a new mock booking repository.
func NewMockBookingRepository() *MockBookingRepository {
	return &MockBookingRepository{
		bookings: make(map[string]*domain.Booking),
	}
}

// AddBooking adds a booking to the mock repository.
func (m *MockBookingRepository) AddBooking(booking *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *booking
	m.bookings[booking.ID] = &copy
}

// StoredBooking returns the stored booking for assertions.
func (m *MockBookingRepository) StoredBooking(id string) *domain.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	booking, ok := m.bookings[id]
	if !ok {
		return nil
	}
	copy := *booking
	return &copy
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *booking
	m.bookings[booking.ID] = &copy
	return nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	booking, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *booking
	return &copy, nil
}

func (m *MockBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[booking.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *booking
	m.bookings[booking.ID] = &copy
	return nil
}

func (m *MockBookingRepository) ListByRideID(ctx context.Context, rideID string) ([]*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bookings []*domain.Booking
	for _, b := range m.bookings {
		if b.RideID == rideID {
			copy := *b
			bookings = append(bookings, &copy)
		}
	}
	return bookings, nil
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[ride.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

// ──────────────────────────────────────────────
// MOCK SCHEDULER
// ──────────────────────────────────────────────

// MockScheduler is a mock implementation of scheduler.Scheduler.
type MockScheduler struct {
	mu     sync.RWMutex
	timers map[string][]*domain.Timer
	nextID int

	ArmCallCount    int32
	CancelCallCount int32

	ArmError error
}

// NewMockScheduler creates a new mock scheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		timers: make(map[string][]*domain.Timer),
	}
}

// AddTimer seeds a raw timer, bypassing Arm's replace semantics. Tests
// use it to simulate leftover duplicate timers.
func (m *MockScheduler) AddTimer(entityID string, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.timers[entityID] = append(m.timers[entityID], &domain.Timer{
		ID:       fmt.Sprintf("timer-%d", m.nextID),
		EntityID: entityID,
		Deadline: deadline,
	})
}

// TimersFor returns the armed timers for assertions.
func (m *MockScheduler) TimersFor(entityID string) []*domain.Timer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	timers := make([]*domain.Timer, len(m.timers[entityID]))
	for i, tm := range m.timers[entityID] {
		copy := *tm
		timers[i] = &copy
	}
	return timers
}

func (m *MockScheduler) Arm(ctx context.Context, entityID string, deadline time.Time) error {
	atomic.AddInt32(&m.ArmCallCount, 1)
	if m.ArmError != nil {
		return m.ArmError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.timers[entityID] = []*domain.Timer{{
		ID:       fmt.Sprintf("timer-%d", m.nextID),
		EntityID: entityID,
		Deadline: deadline,
	}}
	return nil
}

func (m *MockScheduler) Cancel(ctx context.Context, entityID string) error {
	atomic.AddInt32(&m.CancelCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, entityID)
	return nil
}

func (m *MockScheduler) ActiveTimersFor(ctx context.Context, entityID string) ([]*domain.Timer, error) {
	return m.TimersFor(entityID), nil
}

// ──────────────────────────────────────────────
// MOCK JOB LOCK
// ──────────────────────────────────────────────

// MockJobLock is a mock implementation of redis.JobLockInterface.
type MockJobLock struct {
	mu   sync.Mutex
	held map[string]bool

	AcquireCallCount int32
	ReleaseCallCount int32

	// Denied, when set, makes Acquire report the lock as already held.
	Denied bool
}

// NewMockJobLock creates a new mock job lock.
func NewMockJobLock() *MockJobLock {
	return &MockJobLock{held: make(map[string]bool)}
}

func (m *MockJobLock) Acquire(ctx context.Context, jobName string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Denied || m.held[jobName] {
		return false, nil
	}
	m.held[jobName] = true
	return true, nil
}

func (m *MockJobLock) Release(ctx context.Context, jobName string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, jobName)
	return nil
}

// ──────────────────────────────────────────────
// TEST RUNNER
// ──────────────────────────────────────────────

// TestRunner is an IsolatedRunner over the mock repositories. Each call
// opens a fresh unit of work; events from committed units accumulate in
// Events for assertions.
type TestRunner struct {
	Trips    *MockTripRepository
	Bookings *MockBookingRepository
	Rides    *MockRideRepository

	mu     sync.Mutex
	Events []eventbus.Event
}

// NewTestRunner creates a TestRunner over the given mocks.
func NewTestRunner(trips *MockTripRepository, bookings *MockBookingRepository, rides *MockRideRepository) *TestRunner {
	return &TestRunner{
		Trips:    trips,
		Bookings: bookings,
		Rides:    rides,
	}
}

func (r *TestRunner) RunIsolated(ctx context.Context, fn func(ctx context.Context, u *uow.UnitOfWork) error) error {
	u := uow.New(r.Trips, r.Bookings, r.Rides)
	if err := fn(ctx, u); err != nil {
		return err
	}
	r.mu.Lock()
	r.Events = append(r.Events, u.Pending()...)
	r.mu.Unlock()
	return nil
}

// EventsOfKind filters the collected events for assertions.
func (r *TestRunner) EventsOfKind(kind eventbus.Kind) []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
