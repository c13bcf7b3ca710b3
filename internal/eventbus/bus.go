package eventbus

import (
	"context"
	"log"
	"sync"
)

// Kind identifies a category of domain event.
type Kind string

const (
	// KindTripTransition is emitted on every monitor evaluation, even
	// when the state did not change; downstream processors decide
	// relevance themselves.
	KindTripTransition Kind = "TRIP_TRANSITION"

	// KindValidationReminder asks the notification layer to nudge the
	// traveller for an outstanding confirmation.
	KindValidationReminder Kind = "VALIDATION_REMINDER"

	// KindTripValidation triggers the settlement saga's asynchronous
	// evaluation. It is delivered only after the emitting unit of work
	// has committed.
	KindTripValidation Kind = "TRIP_VALIDATION"

	// KindTripEvaluated and KindRideEvaluated are the saga's fan-out to
	// the two bounded contexts' read models.
	KindTripEvaluated Kind = "TRIP_EVALUATED"
	KindRideEvaluated Kind = "RIDE_EVALUATED"

	// KindBookingConfirmed reports a booking whose fare was reserved.
	KindBookingConfirmed Kind = "BOOKING_CONFIRMED"
)

// Event is a domain event carried by the bus.
type Event struct {
	Kind    Kind
	TripID  string
	RideID  string
	Payload any
}

// Handler processes one event. Handlers run synchronously on the
// publishing goroutine; a handler that needs transactional isolation
// opens its own unit of work.
type Handler func(ctx context.Context, e Event)

// Bus is an in-process event bus with at-least-once, synchronous
// dispatch. Delivery ordering between subscribers of the same kind
// follows subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for a kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish dispatches the event to all subscribers of its kind. Panics
// in handlers are contained and logged so one processor cannot take
// down the publisher.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Kind]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventbus: handler panic on %s trip=%s: %v", e.Kind, e.TripID, r)
		}
	}()
	h(ctx, e)
}
