package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

const intentColumns = `order_code, seat_number, holder_token, amount, description, status,
	customer_name, customer_email, customer_phone, reservation_ref, checkout_url,
	payment_link_id, failure_reason, webhook_payload, created_at, updated_at`

// IntentRepo provides access to the payment_intents table.  The generated
// pending_seat column carries a unique key, so the store itself refuses a
// second pending intent for one seat.
type IntentRepo struct {
	db sqlx.ExtContext
}

// NewIntentRepo returns an IntentRepo bound to db.
func NewIntentRepo(db sqlx.ExtContext) *IntentRepo { return &IntentRepo{db: db} }

// Create inserts a pending intent.  It returns ErrDuplicate when the order
// code is taken or the seat already has a pending intent.
func (r *IntentRepo) Create(ctx context.Context, in *model.PaymentIntent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_intents
		  (order_code, seat_number, holder_token, amount, description, status,
		   customer_name, customer_email, customer_phone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.OrderCode, in.SeatNumber, in.HolderToken, in.Amount, in.Description, in.Status,
		in.Name, in.Email, in.Phone)
	return mapErr(err)
}

// Get returns one intent or ErrNotFound.
func (r *IntentRepo) Get(ctx context.Context, orderCode int64) (*model.PaymentIntent, error) {
	var in model.PaymentIntent
	if err := sqlx.GetContext(ctx, r.db, &in, `SELECT `+intentColumns+` FROM payment_intents WHERE order_code = ?`, orderCode); err != nil {
		return nil, mapErr(err)
	}
	return &in, nil
}

// GetForUpdate is Get with a row lock.
func (r *IntentRepo) GetForUpdate(ctx context.Context, orderCode int64) (*model.PaymentIntent, error) {
	var in model.PaymentIntent
	if err := sqlx.GetContext(ctx, r.db, &in, `SELECT `+intentColumns+` FROM payment_intents WHERE order_code = ? FOR UPDATE`, orderCode); err != nil {
		return nil, mapErr(err)
	}
	return &in, nil
}

// ListPendingForSeat locks and returns the pending intents for a seat.
func (r *IntentRepo) ListPendingForSeat(ctx context.Context, seatNumber int) ([]model.PaymentIntent, error) {
	out := []model.PaymentIntent{}
	err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+intentColumns+`
		FROM payment_intents WHERE seat_number = ? AND status = 'pending' FOR UPDATE`, seatNumber)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AttachCheckout stores the gateway's checkout link on a pending intent.
func (r *IntentRepo) AttachCheckout(ctx context.Context, orderCode int64, checkoutURL, paymentLinkID string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE payment_intents SET checkout_url = ?, payment_link_id = ?
		WHERE order_code = ? AND status = 'pending'`,
		checkoutURL, paymentLinkID, orderCode))
}

// MarkTerminal moves a pending intent into status.  The WHERE clause makes
// the transition one-way: a terminal intent never matches again.
func (r *IntentRepo) MarkTerminal(ctx context.Context, orderCode int64, status model.IntentStatus, t Terminal) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = ?,
		    reservation_ref = COALESCE(?, reservation_ref),
		    failure_reason = COALESCE(?, failure_reason),
		    webhook_payload = COALESCE(?, webhook_payload)
		WHERE order_code = ? AND status = 'pending'`,
		status, t.ReservationRef, t.FailureReason, t.WebhookPayload, orderCode))
}
