package model

import (
	"fmt"
	"strings"
	"time"
)

// IntentStatus is the lifecycle state of a payment intent.  Every status
// except pending is terminal.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentPaid      IntentStatus = "paid"
	IntentCancelled IntentStatus = "cancelled"
	IntentExpired   IntentStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s IntentStatus) Terminal() bool { return s != IntentPending }

// Outcome is the normalized result carried by a settlement event.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
)

// ParseOutcome maps a textual outcome to its canonical value.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomePaid:
		return OutcomePaid, nil
	case OutcomeCancelled:
		return OutcomeCancelled, nil
	case OutcomeExpired:
		return OutcomeExpired, nil
	}
	return "", fmt.Errorf("unknown settlement outcome %q", s)
}

// IntentStatus returns the terminal status an intent moves to for the outcome.
func (o Outcome) IntentStatus() IntentStatus {
	switch o {
	case OutcomePaid:
		return IntentPaid
	case OutcomeExpired:
		return IntentExpired
	default:
		return IntentCancelled
	}
}

// Customer is the contact snapshot captured when a payment intent is created.
type Customer struct {
	Name  string `db:"customer_name" json:"name"`
	Email string `db:"customer_email" json:"email"`
	Phone string `db:"customer_phone" json:"phone"`
}

// PaymentIntent is one attempt to pay for one held seat.  OrderCode is the
// key the payment gateway echoes back in its settlement callbacks.
type PaymentIntent struct {
	OrderCode   int64        `db:"order_code" json:"order_code"`
	SeatNumber  int          `db:"seat_number" json:"seat_number"`
	HolderToken string       `db:"holder_token" json:"-"`
	Amount      int64        `db:"amount" json:"amount"`
	Description string       `db:"description" json:"description"`
	Status      IntentStatus `db:"status" json:"status"`
	Customer
	ReservationRef *string   `db:"reservation_ref" json:"reservation_id,omitempty"`
	CheckoutURL    *string   `db:"checkout_url" json:"checkout_url,omitempty"`
	PaymentLinkID  *string   `db:"payment_link_id" json:"-"`
	FailureReason  *string   `db:"failure_reason" json:"failure_reason,omitempty"`
	WebhookPayload *string   `db:"webhook_payload" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
