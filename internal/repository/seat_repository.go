package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

const seatColumns = `seat_number, status, holder_token, held_at, expires_at, intent_ref, reservation_ref, updated_at`

// clearHold resets every column that only has meaning while a seat is held.
const clearHold = `holder_token = NULL, held_at = NULL, expires_at = NULL, intent_ref = NULL`

// SeatRepo provides conditional access to the seats table.
type SeatRepo struct {
	db sqlx.ExtContext
}

// NewSeatRepo returns a SeatRepo bound to db, which may be a pool or a transaction.
func NewSeatRepo(db sqlx.ExtContext) *SeatRepo { return &SeatRepo{db: db} }

// Get returns one seat or ErrNotFound.
func (r *SeatRepo) Get(ctx context.Context, seatNumber int) (*model.Seat, error) {
	var s model.Seat
	err := sqlx.GetContext(ctx, r.db, &s, `SELECT `+seatColumns+` FROM seats WHERE seat_number = ?`, seatNumber)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// GetForUpdate is Get with a row lock; it only locks inside a transaction.
func (r *SeatRepo) GetForUpdate(ctx context.Context, seatNumber int) (*model.Seat, error) {
	var s model.Seat
	err := sqlx.GetContext(ctx, r.db, &s, `SELECT `+seatColumns+` FROM seats WHERE seat_number = ? FOR UPDATE`, seatNumber)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// List returns every seat ordered by number.
func (r *SeatRepo) List(ctx context.Context) ([]model.Seat, error) {
	seats := []model.Seat{}
	if err := sqlx.SelectContext(ctx, r.db, &seats, `SELECT `+seatColumns+` FROM seats ORDER BY seat_number`); err != nil {
		return nil, err
	}
	return seats, nil
}

// Acquire moves a seat into held(holderToken) when it is available, held by
// the same token (refresh) or held under a lapsed hold.  Assignments run left
// to right, so intent_ref is computed against the previous holder: a refresh
// keeps the attached intent while a takeover drops it.
func (r *SeatRepo) Acquire(ctx context.Context, seatNumber int, holderToken string, now, expiresAt time.Time) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE seats
		SET intent_ref = IF(holder_token <=> ?, intent_ref, NULL),
		    status = 'held', holder_token = ?, held_at = ?, expires_at = ?
		WHERE seat_number = ?
		  AND (status = 'available'
		       OR (status = 'held' AND (holder_token = ? OR expires_at <= ?)))`,
		holderToken, holderToken, now, expiresAt, seatNumber, holderToken, now))
}

// Release frees a seat held by holderToken.  Nothing happens when the seat
// is held by someone else, booked or already available.
func (r *SeatRepo) Release(ctx context.Context, seatNumber int, holderToken string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE seats SET status = 'available', `+clearHold+`
		WHERE seat_number = ? AND status = 'held' AND holder_token = ?`,
		seatNumber, holderToken))
}

// AttachIntent records orderCode on a live hold owned by holderToken.
func (r *SeatRepo) AttachIntent(ctx context.Context, seatNumber int, holderToken string, orderCode int64, now time.Time) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE seats SET intent_ref = ?
		WHERE seat_number = ? AND status = 'held' AND holder_token = ? AND expires_at > ?`,
		orderCode, seatNumber, holderToken, now))
}

// DetachIntent clears intent_ref when it still points at orderCode.
func (r *SeatRepo) DetachIntent(ctx context.Context, seatNumber int, orderCode int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE seats SET intent_ref = NULL
		WHERE seat_number = ? AND status = 'held' AND intent_ref = ?`,
		seatNumber, orderCode))
}

// ReleaseForIntent frees a held seat only while it still references orderCode.
// A seat since taken over, re-attached to a newer intent or booked is left alone.
func (r *SeatRepo) ReleaseForIntent(ctx context.Context, seatNumber int, orderCode int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE seats SET status = 'available', `+clearHold+`
		WHERE seat_number = ? AND status = 'held' AND intent_ref = ?`,
		seatNumber, orderCode))
}

// Book marks the seat booked by reservationID.  Re-booking for the same
// reservation matches; a seat booked by a different reservation does not.
func (r *SeatRepo) Book(ctx context.Context, seatNumber int, reservationID string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE seats SET status = 'booked', reservation_ref = ?, `+clearHold+`
		WHERE seat_number = ? AND (status <> 'booked' OR reservation_ref = ?)`,
		reservationID, seatNumber, reservationID))
}

// Unbook returns a seat booked by reservationID to available.
func (r *SeatRepo) Unbook(ctx context.Context, seatNumber int, reservationID string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE seats SET status = 'available', reservation_ref = NULL, `+clearHold+`
		WHERE seat_number = ? AND status = 'booked' AND reservation_ref = ?`,
		seatNumber, reservationID))
}

// SweepExpired frees every hold whose expiry is not after now and returns
// how many seats changed.
func (r *SeatRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE seats SET status = 'available', `+clearHold+`
		WHERE status = 'held' AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
