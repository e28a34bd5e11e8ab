package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

const reservationColumns = `id, order_code, name, email, phone, seat_number, payment_status, voided_at, created_at, updated_at`

// ReservationRepo provides access to the reservations table.  The generated
// paid_email and paid_phone columns are non-null only for paid, non-voided
// rows and carry unique keys, so two paid bookings never share a contact.
type ReservationRepo struct {
	db sqlx.ExtContext
}

// NewReservationRepo returns a ReservationRepo bound to db.
func NewReservationRepo(db sqlx.ExtContext) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts a reservation.  ErrDuplicate signals a contact or order code collision.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (id, order_code, name, email, phone, seat_number, payment_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.OrderCode, res.Name, res.Email, res.Phone, res.SeatNumber, res.PaymentStatus)
	return mapErr(err)
}

// Get returns one reservation or ErrNotFound.
func (r *ReservationRepo) Get(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := sqlx.GetContext(ctx, r.db, &res, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id); err != nil {
		return nil, mapErr(err)
	}
	return &res, nil
}

// GetForUpdate is Get with a row lock.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := sqlx.GetContext(ctx, r.db, &res, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id); err != nil {
		return nil, mapErr(err)
	}
	return &res, nil
}

// FindActiveByContact returns paid, non-voided reservations sharing the
// email or the phone.
func (r *ReservationRepo) FindActiveByContact(ctx context.Context, email, phone string) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+reservationColumns+`
		FROM reservations WHERE paid_email = ? OR paid_phone = ?`, email, phone)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns all reservations, newest first.
func (r *ReservationRepo) List(ctx context.Context) ([]model.Reservation, error) {
	out := []model.Reservation{}
	if err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+reservationColumns+` FROM reservations ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkSent moves a verified reservation to sent after its confirmation went out.
func (r *ReservationRepo) MarkSent(ctx context.Context, id string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE reservations SET payment_status = 'sent'
		WHERE id = ? AND payment_status = 'verified' AND voided_at IS NULL`, id))
}

// Void stamps voided_at on a reservation that is not voided yet.
func (r *ReservationRepo) Void(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE reservations SET voided_at = ? WHERE id = ? AND voided_at IS NULL`, at, id))
}
