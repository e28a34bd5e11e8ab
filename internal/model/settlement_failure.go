package model

import "time"

// SettlementFailure records a settlement that could not be applied cleanly
// (for example a paid intent whose seat was already booked by someone else).
// Rows are the work queue for refunds and manual reconciliation.
type SettlementFailure struct {
	ID        int64     `db:"id" json:"id"`
	OrderCode int64     `db:"order_code" json:"order_code"`
	Outcome   string    `db:"outcome" json:"outcome"`
	Reason    string    `db:"reason" json:"reason"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Failure reasons recorded by the reconciler.
const (
	FailureSeatConflict     = "SEAT_CONFLICT"
	FailureDuplicateContact = "DUPLICATE_CONTACT"
	FailureVoided           = "VOIDED"
	FailureLatePayment      = "PAID_AFTER_CLOSE"
	FailureStore            = "STORE_ERROR"
)
