package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

// SeatRepository is the conditional-update surface over the seats table.
// Each bool result reports whether the row matched the write's predicate.
type SeatRepository interface {
	Get(ctx context.Context, seatNumber int) (*model.Seat, error)
	GetForUpdate(ctx context.Context, seatNumber int) (*model.Seat, error)
	List(ctx context.Context) ([]model.Seat, error)
	Acquire(ctx context.Context, seatNumber int, holderToken string, now, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, seatNumber int, holderToken string) (bool, error)
	AttachIntent(ctx context.Context, seatNumber int, holderToken string, orderCode int64, now time.Time) (bool, error)
	DetachIntent(ctx context.Context, seatNumber int, orderCode int64) (bool, error)
	ReleaseForIntent(ctx context.Context, seatNumber int, orderCode int64) (bool, error)
	Book(ctx context.Context, seatNumber int, reservationID string) (bool, error)
	Unbook(ctx context.Context, seatNumber int, reservationID string) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// IntentRepository persists payment intents.
type IntentRepository interface {
	Create(ctx context.Context, in *model.PaymentIntent) error
	Get(ctx context.Context, orderCode int64) (*model.PaymentIntent, error)
	GetForUpdate(ctx context.Context, orderCode int64) (*model.PaymentIntent, error)
	ListPendingForSeat(ctx context.Context, seatNumber int) ([]model.PaymentIntent, error)
	AttachCheckout(ctx context.Context, orderCode int64, checkoutURL, paymentLinkID string) (bool, error)
	MarkTerminal(ctx context.Context, orderCode int64, status model.IntentStatus, t Terminal) (bool, error)
}

// Terminal carries the optional columns written when an intent leaves pending.
type Terminal struct {
	ReservationRef *string
	FailureReason  *string
	WebhookPayload *string
}

// ReservationRepository persists reservations.
type ReservationRepository interface {
	Create(ctx context.Context, r *model.Reservation) error
	Get(ctx context.Context, id string) (*model.Reservation, error)
	GetForUpdate(ctx context.Context, id string) (*model.Reservation, error)
	FindActiveByContact(ctx context.Context, email, phone string) ([]model.Reservation, error)
	List(ctx context.Context) ([]model.Reservation, error)
	MarkSent(ctx context.Context, id string) (bool, error)
	Void(ctx context.Context, id string, at time.Time) (bool, error)
}

// FailureRepository persists the settlement reconciliation queue.
type FailureRepository interface {
	Record(ctx context.Context, f *model.SettlementFailure) error
	List(ctx context.Context, limit int) ([]model.SettlementFailure, error)
}

// Repos bundles the repositories bound to one database handle, either the
// pool or an open transaction.
type Repos struct {
	Seats        SeatRepository
	Intents      IntentRepository
	Reservations ReservationRepository
	Failures     FailureRepository
}

// Store hands out repositories and runs units of work in a transaction.
type Store interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(Repos) error) error
}

const maxTxAttempts = 3

// MySQLStore implements Store on top of a sqlx pool.
type MySQLStore struct {
	db *sqlx.DB
}

// NewMySQLStore returns a Store bound to db.
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	if db == nil {
		panic("nil db passed to NewMySQLStore")
	}
	return &MySQLStore{db: db}
}

func reposFor(ext sqlx.ExtContext) Repos {
	return Repos{
		Seats:        NewSeatRepo(ext),
		Intents:      NewIntentRepo(ext),
		Reservations: NewReservationRepo(ext),
		Failures:     NewFailureRepo(ext),
	}
}

// Repos returns repositories that run each statement in autocommit mode.
func (s *MySQLStore) Repos() Repos { return reposFor(s.db) }

// InTx runs fn inside a transaction and commits when fn returns nil.  A
// transaction aborted by a deadlock or lock wait timeout is retried from
// the start, so fn must not have side effects outside the database.
func (s *MySQLStore) InTx(ctx context.Context, fn func(Repos) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !retryableTx(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
	return err
}

func (s *MySQLStore) runTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(reposFor(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
