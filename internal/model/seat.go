package model

import "time"

// SeatStatus is the lifecycle state of a seat.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatBooked    SeatStatus = "booked"
)

// Seat is one physical place in the workshop room.  Seats are seeded
// once at startup and are never deleted; only their status cycles.
//
// Fields:
//  SeatNumber     – stable identifier, primary key.
//  Status         – available, held or booked.
//  HolderToken    – opaque session token of the current holder (held only).
//  HeldAt         – when the current hold was taken or refreshed.
//  ExpiresAt      – when the current hold stops being valid.
//  IntentRef      – order code of the pending payment intent attached to the hold.
//  ReservationRef – reservation that owns the seat once booked.
//  UpdatedAt      – last modification time.
type Seat struct {
	SeatNumber     int        `db:"seat_number" json:"seat_number"`
	Status         SeatStatus `db:"status" json:"status"`
	HolderToken    *string    `db:"holder_token" json:"-"`
	HeldAt         *time.Time `db:"held_at" json:"held_at,omitempty"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IntentRef      *int64     `db:"intent_ref" json:"-"`
	ReservationRef *string    `db:"reservation_ref" json:"-"`
	UpdatedAt      time.Time  `db:"updated_at" json:"-"`
}

// HoldExpired reports whether the seat carries a hold whose validity window
// has passed at now.  Such a seat must be treated as available by readers.
func (s Seat) HoldExpired(now time.Time) bool {
	if s.Status != SeatHeld {
		return false
	}
	return s.ExpiresAt == nil || !now.Before(*s.ExpiresAt)
}

// HeldBy reports whether token holds a live hold on the seat at now.
func (s Seat) HeldBy(token string, now time.Time) bool {
	return s.Status == SeatHeld && !s.HoldExpired(now) &&
		s.HolderToken != nil && *s.HolderToken == token
}

// Effective returns the seat as a reader should see it at now: a lapsed
// hold is reported as available with its hold fields cleared.
func (s Seat) Effective(now time.Time) Seat {
	if !s.HoldExpired(now) {
		return s
	}
	s.Status = SeatAvailable
	s.HolderToken = nil
	s.HeldAt = nil
	s.ExpiresAt = nil
	s.IntentRef = nil
	return s
}
