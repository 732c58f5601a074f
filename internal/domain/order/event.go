package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order change published to downstream consumers.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventUpdated       EventType = "order.updated"
	EventStatusChanged EventType = "order.status_changed"
	EventPaid          EventType = "order.paid"
	EventDeleted       EventType = "order.deleted"
)

// Event describes a committed order change.
type Event struct {
	Type          EventType
	OrderID       int64
	UserID        int64
	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	TotalPrice    decimal.Decimal
	At            time.Time
}

// Notifier publishes order events. Delivery is best effort: implementations
// must not block the caller on broker availability.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func newEvent(t EventType, o *Order, at time.Time) Event {
	return Event{
		Type:          t,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		TotalPrice:    o.TotalPrice,
		At:            at,
	}
}
