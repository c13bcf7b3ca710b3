package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"voyage/internal/domain"
	"voyage/internal/eventbus"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTripTransition     NotificationType = "TRIP_TRANSITION"
	NotificationValidationReminder NotificationType = "VALIDATION_REMINDER"
	NotificationFarePaid           NotificationType = "FARE_PAID"
	NotificationFareReleased       NotificationType = "FARE_RELEASED"
	NotificationFareDisputed       NotificationType = "FARE_DISPUTED"
	NotificationBookingConfirmed   NotificationType = "BOOKING_CONFIRMED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type      NotificationType
	TripID    string
	Title     string
	Message   string
	Data      map[string]interface{}
	CreatedAt time.Time
}

// Notifier turns domain events into traveller/driver notifications.
// Message composition and actual delivery channels live outside this
// service; here they are logged.
type Notifier struct{}

// NewNotifier creates a new Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// NotifyTransition reports a trip lifecycle change. No-op transitions
// are dropped here, not at the emitter.
func (n *Notifier) NotifyTransition(ctx context.Context, tripID string, t eventbus.TripTransition) {
	if t.OldState == t.NewState {
		return
	}
	n.send(ctx, Notification{
		Type:    NotificationTripTransition,
		TripID:  tripID,
		Title:   "Trip Update",
		Message: fmt.Sprintf("Your trip is now %s", t.NewState),
		Data: map[string]interface{}{
			"trigger":   t.Trigger,
			"old_state": string(t.OldState),
			"new_state": string(t.NewState),
		},
		CreatedAt: time.Now(),
	})
}

// NotifyValidationReminder nudges the traveller for an outstanding
// trip confirmation.
func (n *Notifier) NotifyValidationReminder(ctx context.Context, tripID string) {
	n.send(ctx, Notification{
		Type:      NotificationValidationReminder,
		TripID:    tripID,
		Title:     "Please confirm your trip",
		Message:   "Tell us whether your trip took place so we can settle the fare.",
		CreatedAt: time.Now(),
	})
}

// NotifyLegSettled reports a fare settlement outcome to both parties.
func (n *Notifier) NotifyLegSettled(ctx context.Context, tripID string, settled eventbus.LegSettled) {
	notificationType := NotificationFareReleased
	title := "Fare refunded"
	message := "The reserved fare was released back to your account."

	switch {
	case settled.Disputed:
		notificationType = NotificationFareDisputed
		title = "Fare under review"
		message = "The answers for this trip disagree; the fare is held until the dispute is resolved."
	case settled.Outcome == domain.LegPaymentPaid:
		notificationType = NotificationFarePaid
		title = "Fare settled"
		message = "The fare was paid out to the driver."
	}

	n.send(ctx, Notification{
		Type:    notificationType,
		TripID:  tripID,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"leg_id":     settled.LegID,
			"booking_id": settled.BookingID,
			"outcome":    string(settled.Outcome),
		},
		CreatedAt: time.Now(),
	})
}

// NotifyBookingConfirmed reports a confirmed booking with a reserved fare.
func (n *Notifier) NotifyBookingConfirmed(ctx context.Context, tripID string, bookingID string) {
	n.send(ctx, Notification{
		Type:    NotificationBookingConfirmed,
		TripID:  tripID,
		Title:   "Booking confirmed",
		Message: "Your seat is booked and the fare has been reserved.",
		Data: map[string]interface{}{
			"booking_id": bookingID,
		},
		CreatedAt: time.Now(),
	})
}

func (n *Notifier) send(ctx context.Context, notification Notification) {
	log.Printf("[NOTIFICATION] Type=%s, Trip=%s, Title=%s, Message=%s",
		notification.Type, notification.TripID, notification.Title, notification.Message)
}
