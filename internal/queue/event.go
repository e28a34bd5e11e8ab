// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingPaidQueue is the durable queue carrying paid-booking notifications.
const BookingPaidQueue = "booking.paid"

// BookingPaidEvent is published after a settlement books a seat.  It only
// names the reservation; the dispatcher reads the rest from the store so a
// redelivered message never carries stale contact data.
type BookingPaidEvent struct {
	ReservationID string `json:"reservation_id"`
	PublishedAt   string `json:"published_at"`
}
