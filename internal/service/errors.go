package service

import "errors"

// Contention errors.  They carry a reason code the client can act on.
var (
	ErrSeatNotFound    = errors.New("seat not found")
	ErrSeatBooked      = errors.New("seat already booked")
	ErrSeatHeldByOther = errors.New("seat held by another holder")
	ErrSeatNotHeld     = errors.New("seat is not held by this holder")
)

// Checkout and administration errors.
var (
	ErrDuplicateContact    = errors.New("contact already has a paid booking")
	ErrCheckoutUnavailable = errors.New("checkout temporarily unavailable")
	ErrIntentSuperseded    = errors.New("payment intent superseded by a newer one")
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAlreadyVoided       = errors.New("reservation already voided")
)

// Reason codes returned to clients alongside contention errors.
const (
	ReasonSeatBooked       = "SEAT_BOOKED"
	ReasonSeatHeldByOther  = "SEAT_HELD_BY_OTHER"
	ReasonSeatNotFound     = "SEAT_NOT_FOUND"
	ReasonSeatNotHeld      = "SEAT_NOT_HELD"
	ReasonDuplicateContact = "DUPLICATE_CONTACT"
	ReasonCheckout         = "CHECKOUT_UNAVAILABLE"
	ReasonSuperseded       = "INTENT_SUPERSEDED"
	ReasonIntentNotFound   = "INTENT_NOT_FOUND"
	ReasonNotFound         = "RESERVATION_NOT_FOUND"
	ReasonAlreadyVoided    = "ALREADY_VOIDED"
)

// ReasonCode returns the client-facing code for a service error, or "" when
// err is not one of this package's sentinels.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrSeatBooked):
		return ReasonSeatBooked
	case errors.Is(err, ErrSeatHeldByOther):
		return ReasonSeatHeldByOther
	case errors.Is(err, ErrSeatNotFound):
		return ReasonSeatNotFound
	case errors.Is(err, ErrSeatNotHeld):
		return ReasonSeatNotHeld
	case errors.Is(err, ErrDuplicateContact):
		return ReasonDuplicateContact
	case errors.Is(err, ErrCheckoutUnavailable):
		return ReasonCheckout
	case errors.Is(err, ErrIntentSuperseded):
		return ReasonSuperseded
	case errors.Is(err, ErrIntentNotFound):
		return ReasonIntentNotFound
	case errors.Is(err, ErrReservationNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrAlreadyVoided):
		return ReasonAlreadyVoided
	}
	return ""
}
