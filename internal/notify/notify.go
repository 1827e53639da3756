// Package notify dispatches fire-and-forget lifecycle notifications.
// Delivery failures are logged and never surface to the transitions that
// triggered them.
package notify

import (
	"context"
	"log/slog"
)

type EventType string

const (
	EventRidePublished    EventType = "ride.published"
	EventRideCancelled    EventType = "ride.cancelled"
	EventRideCompleted    EventType = "ride.completed"
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingCompleted EventType = "booking.completed"
	EventKycReviewed      EventType = "kyc.reviewed"
)

// Event is one notification to one recipient. Recipient may be empty when
// the user never supplied an email; senders that need an address skip those.
type Event struct {
	Type      EventType
	Recipient string
	Data      map[string]string
}

type Notifier interface {
	Send(ctx context.Context, e Event) error
}

// LogNotifier writes events to the log instead of delivering them. Used
// when no SMTP host is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(ctx context.Context, e Event) error {
	n.Logger.InfoContext(ctx, "notification",
		slog.String("type", string(e.Type)),
		slog.String("recipient", e.Recipient),
		slog.Any("data", e.Data),
	)
	return nil
}
