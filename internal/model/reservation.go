package model

import "time"

// PaymentStatus tracks how far a reservation has progressed after payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentSent     PaymentStatus = "sent"
)

// Paid reports whether the status counts as a completed payment.
func (p PaymentStatus) Paid() bool {
	return p == PaymentVerified || p == PaymentSent
}

// Reservation is the durable record of a paid booking.  It is materialized
// from a payment intent's customer snapshot when the first successful
// settlement arrives.  A voided reservation keeps its row for the refund
// trail but no longer owns a seat or a contact.
type Reservation struct {
	ID            string        `db:"id" json:"id"`
	OrderCode     int64         `db:"order_code" json:"order_code"`
	Name          string        `db:"name" json:"name"`
	Email         string        `db:"email" json:"email"`
	Phone         string        `db:"phone" json:"phone"`
	SeatNumber    int           `db:"seat_number" json:"seat_number"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	VoidedAt      *time.Time    `db:"voided_at" json:"voided_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the reservation is paid and has not been voided.
func (r Reservation) Active() bool {
	return r.PaymentStatus.Paid() && r.VoidedAt == nil
}
