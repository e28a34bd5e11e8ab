package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/repository"
)

// DefaultHoldTTL is how long a hold stays valid without a refresh.
const DefaultHoldTTL = 5 * time.Minute

// maxAcquireAttempts bounds how often Acquire re-reads and retries when the
// conditional write missed but the fresh read shows a free seat.
const maxAcquireAttempts = 3

// SeatLockManager owns the seat lifecycle: available, held, booked.
type SeatLockManager interface {
	Acquire(ctx context.Context, seatNumber int, holderToken string) (*model.Seat, error)
	Release(ctx context.Context, seatNumber int, holderToken string) error
	ReassignOnSwap(ctx context.Context, oldSeat, newSeat int, holderToken string) (*model.Seat, error)
	SweepExpired(ctx context.Context) (int64, error)
	Snapshot(ctx context.Context) ([]model.Seat, error)
	Get(ctx context.Context, seatNumber int) (*model.Seat, error)
}

type seatLockManager struct {
	store repository.Store
	ttl   time.Duration
	opts  options
}

// NewSeatLockManager returns a SeatLockManager whose holds last ttl.
func NewSeatLockManager(store repository.Store, ttl time.Duration, opts ...Option) SeatLockManager {
	if store == nil {
		panic("nil store passed to NewSeatLockManager")
	}
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	return &seatLockManager{store: store, ttl: ttl, opts: buildOptions(opts)}
}

func (m *seatLockManager) now() time.Time { return m.opts.now().UTC() }

// Acquire takes or refreshes a hold with one conditional write.  When the
// write misses, a fresh read decides which contention error to report.
func (m *seatLockManager) Acquire(ctx context.Context, seatNumber int, holderToken string) (*model.Seat, error) {
	if err := model.ValidateSeatRequest(seatNumber, holderToken); err != nil {
		return nil, err
	}
	seats := m.store.Repos().Seats
	for attempt := 1; attempt <= maxAcquireAttempts; attempt++ {
		now := m.now()
		expiresAt := now.Add(m.ttl)
		ok, err := seats.Acquire(ctx, seatNumber, holderToken, now, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("acquire seat %d: %w", seatNumber, err)
		}
		if ok {
			m.opts.log.WithFields(logrus.Fields{"seat_number": seatNumber, "expires_at": expiresAt}).Debug("seat held")
			token := holderToken
			return &model.Seat{
				SeatNumber:  seatNumber,
				Status:      model.SeatHeld,
				HolderToken: &token,
				HeldAt:      &now,
				ExpiresAt:   &expiresAt,
			}, nil
		}

		current, err := seats.Get(ctx, seatNumber)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSeatNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("read seat %d: %w", seatNumber, err)
		}
		if reason := contention(*current, holderToken, m.now()); reason != nil {
			return nil, reason
		}
		// The seat freed up between the write and the read; try again.
	}
	return nil, ErrSeatHeldByOther
}

// contention classifies a seat the caller failed to acquire.  It returns nil
// when the seat looks acquirable, meaning the state moved under the caller.
func contention(s model.Seat, holderToken string, now time.Time) error {
	switch {
	case s.Status == model.SeatBooked:
		return ErrSeatBooked
	case s.Status == model.SeatHeld && !s.HoldExpired(now) &&
		(s.HolderToken == nil || *s.HolderToken != holderToken):
		return ErrSeatHeldByOther
	}
	return nil
}

// Release frees the caller's hold.  Releasing a seat the caller does not
// hold is a silent no-op.
func (m *seatLockManager) Release(ctx context.Context, seatNumber int, holderToken string) error {
	if err := model.ValidateSeatRequest(seatNumber, holderToken); err != nil {
		return err
	}
	ok, err := m.store.Repos().Seats.Release(ctx, seatNumber, holderToken)
	if err != nil {
		return fmt.Errorf("release seat %d: %w", seatNumber, err)
	}
	m.opts.log.WithFields(logrus.Fields{"seat_number": seatNumber, "released": ok}).Debug("seat release")
	return nil
}

// ReassignOnSwap releases oldSeat and then acquires newSeat.  The old seat is
// not restored when the new acquisition fails.
func (m *seatLockManager) ReassignOnSwap(ctx context.Context, oldSeat, newSeat int, holderToken string) (*model.Seat, error) {
	if oldSeat > 0 && oldSeat != newSeat {
		if err := m.Release(ctx, oldSeat, holderToken); err != nil {
			return nil, err
		}
	}
	return m.Acquire(ctx, newSeat, holderToken)
}

// SweepExpired frees every lapsed hold.  Acquire already treats lapsed holds
// as available, so this only tidies stored state.
func (m *seatLockManager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.Repos().Seats.SweepExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired holds: %w", err)
	}
	if n > 0 {
		m.opts.log.WithField("count", n).Info("expired holds swept")
	}
	return n, nil
}

// Snapshot returns every seat as a reader should see it now.
func (m *seatLockManager) Snapshot(ctx context.Context) ([]model.Seat, error) {
	seats, err := m.store.Repos().Seats.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	now := m.now()
	for i := range seats {
		seats[i] = seats[i].Effective(now)
	}
	return seats, nil
}

// Get returns one seat as a reader should see it now.
func (m *seatLockManager) Get(ctx context.Context, seatNumber int) (*model.Seat, error) {
	s, err := m.store.Repos().Seats.Get(ctx, seatNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSeatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get seat %d: %w", seatNumber, err)
	}
	eff := s.Effective(m.now())
	return &eff, nil
}
