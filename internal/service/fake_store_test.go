package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/repository"
)

// fakeStore is an in-memory repository.Store.  Every write applies the same
// predicate as its SQL counterpart.  A transaction holds the store mutex for
// its whole run and restores a snapshot when fn fails.
type fakeStore struct {
	mu     sync.Mutex
	st     *fakeState
	failOn map[string]error
}

type fakeState struct {
	seats        map[int]model.Seat
	intents      map[int64]model.PaymentIntent
	reservations map[string]model.Reservation
	failures     []model.SettlementFailure
	nextID       int64
}

func newFakeStore(seatCount int) *fakeStore {
	st := &fakeState{
		seats:        map[int]model.Seat{},
		intents:      map[int64]model.PaymentIntent{},
		reservations: map[string]model.Reservation{},
	}
	for n := 1; n <= seatCount; n++ {
		st.seats[n] = model.Seat{SeatNumber: n, Status: model.SeatAvailable}
	}
	return &fakeStore{st: st, failOn: map[string]error{}}
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		seats:        make(map[int]model.Seat, len(s.seats)),
		intents:      make(map[int64]model.PaymentIntent, len(s.intents)),
		reservations: make(map[string]model.Reservation, len(s.reservations)),
		failures:     append([]model.SettlementFailure(nil), s.failures...),
		nextID:       s.nextID,
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.intents {
		c.intents[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

func (f *fakeStore) Repos() repository.Repos { return f.repos(false) }

func (f *fakeStore) InTx(ctx context.Context, fn func(repository.Repos) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	backup := f.st.clone()
	if err := fn(f.repos(true)); err != nil {
		f.st = backup
		return err
	}
	return nil
}

func (f *fakeStore) repos(inTx bool) repository.Repos {
	return repository.Repos{
		Seats:        &fakeSeats{f: f, inTx: inTx},
		Intents:      &fakeIntents{f: f, inTx: inTx},
		Reservations: &fakeReservations{f: f, inTx: inTx},
		Failures:     &fakeFailures{f: f, inTx: inTx},
	}
}

// do runs fn under the store mutex unless the caller already holds it.
func (f *fakeStore) do(inTx bool, op string, fn func(st *fakeState) error) error {
	if !inTx {
		f.mu.Lock()
		defer f.mu.Unlock()
	}
	if err := f.failOn[op]; err != nil {
		return err
	}
	return fn(f.st)
}

// seat returns a copy of one seat for assertions.
func (f *fakeStore) seat(n int) model.Seat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.seats[n]
}

func (f *fakeStore) intent(code int64) model.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.intents[code]
}

func (f *fakeStore) allReservations() []model.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Reservation, 0, len(f.st.reservations))
	for _, r := range f.st.reservations {
		out = append(out, r)
	}
	return out
}

func (f *fakeStore) allFailures() []model.SettlementFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SettlementFailure(nil), f.st.failures...)
}

func (f *fakeStore) pendingForSeat(n int) []model.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PaymentIntent
	for _, in := range f.st.intents {
		if in.SeatNumber == n && in.Status == model.IntentPending {
			out = append(out, in)
		}
	}
	return out
}

func (f *fakeStore) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[op] = err
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func clearHold(s model.Seat) model.Seat {
	s.HolderToken, s.HeldAt, s.ExpiresAt, s.IntentRef = nil, nil, nil, nil
	return s
}

type fakeSeats struct {
	f    *fakeStore
	inTx bool
}

func (r *fakeSeats) get(ctx context.Context, n int, op string) (*model.Seat, error) {
	var out *model.Seat
	err := r.f.do(r.inTx, op, func(st *fakeState) error {
		s, ok := st.seats[n]
		if !ok {
			return repository.ErrNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *fakeSeats) Get(ctx context.Context, n int) (*model.Seat, error) {
	return r.get(ctx, n, "Seats.Get")
}

func (r *fakeSeats) GetForUpdate(ctx context.Context, n int) (*model.Seat, error) {
	return r.get(ctx, n, "Seats.GetForUpdate")
}

func (r *fakeSeats) List(ctx context.Context) ([]model.Seat, error) {
	var out []model.Seat
	err := r.f.do(r.inTx, "Seats.List", func(st *fakeState) error {
		for _, s := range st.seats {
			out = append(out, s)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
		return nil
	})
	return out, err
}

// update applies fn to seat n when match holds, mirroring a conditional UPDATE.
func (r *fakeSeats) update(op string, n int, match func(model.Seat) bool, fn func(model.Seat) model.Seat) (bool, error) {
	var ok bool
	err := r.f.do(r.inTx, op, func(st *fakeState) error {
		s, exists := st.seats[n]
		if !exists || !match(s) {
			return nil
		}
		st.seats[n] = fn(s)
		ok = true
		return nil
	})
	return ok, err
}

func (r *fakeSeats) Acquire(ctx context.Context, n int, token string, now, expiresAt time.Time) (bool, error) {
	return r.update("Seats.Acquire", n, func(s model.Seat) bool {
		return s.Status == model.SeatAvailable ||
			(s.Status == model.SeatHeld && ((s.HolderToken != nil && *s.HolderToken == token) ||
				(s.ExpiresAt != nil && !s.ExpiresAt.After(now))))
	}, func(s model.Seat) model.Seat {
		if s.HolderToken == nil || *s.HolderToken != token {
			s.IntentRef = nil
		}
		s.Status = model.SeatHeld
		s.HolderToken = strPtr(token)
		s.HeldAt = timePtr(now)
		s.ExpiresAt = timePtr(expiresAt)
		return s
	})
}

func (r *fakeSeats) Release(ctx context.Context, n int, token string) (bool, error) {
	return r.update("Seats.Release", n, func(s model.Seat) bool {
		return s.Status == model.SeatHeld && s.HolderToken != nil && *s.HolderToken == token
	}, func(s model.Seat) model.Seat {
		s = clearHold(s)
		s.Status = model.SeatAvailable
		return s
	})
}

func (r *fakeSeats) AttachIntent(ctx context.Context, n int, token string, code int64, now time.Time) (bool, error) {
	return r.update("Seats.AttachIntent", n, func(s model.Seat) bool {
		return s.Status == model.SeatHeld && s.HolderToken != nil && *s.HolderToken == token &&
			s.ExpiresAt != nil && s.ExpiresAt.After(now)
	}, func(s model.Seat) model.Seat {
		c := code
		s.IntentRef = &c
		return s
	})
}

func intentIs(s model.Seat, code int64) bool {
	return s.Status == model.SeatHeld && s.IntentRef != nil && *s.IntentRef == code
}

func (r *fakeSeats) DetachIntent(ctx context.Context, n int, code int64) (bool, error) {
	return r.update("Seats.DetachIntent", n, func(s model.Seat) bool { return intentIs(s, code) },
		func(s model.Seat) model.Seat {
			s.IntentRef = nil
			return s
		})
}

func (r *fakeSeats) ReleaseForIntent(ctx context.Context, n int, code int64) (bool, error) {
	return r.update("Seats.ReleaseForIntent", n, func(s model.Seat) bool { return intentIs(s, code) },
		func(s model.Seat) model.Seat {
			s = clearHold(s)
			s.Status = model.SeatAvailable
			return s
		})
}

func (r *fakeSeats) Book(ctx context.Context, n int, reservationID string) (bool, error) {
	return r.update("Seats.Book", n, func(s model.Seat) bool {
		return s.Status != model.SeatBooked || (s.ReservationRef != nil && *s.ReservationRef == reservationID)
	}, func(s model.Seat) model.Seat {
		s = clearHold(s)
		s.Status = model.SeatBooked
		s.ReservationRef = strPtr(reservationID)
		return s
	})
}

func (r *fakeSeats) Unbook(ctx context.Context, n int, reservationID string) (bool, error) {
	return r.update("Seats.Unbook", n, func(s model.Seat) bool {
		return s.Status == model.SeatBooked && s.ReservationRef != nil && *s.ReservationRef == reservationID
	}, func(s model.Seat) model.Seat {
		s = clearHold(s)
		s.Status = model.SeatAvailable
		s.ReservationRef = nil
		return s
	})
}

func (r *fakeSeats) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.f.do(r.inTx, "Seats.SweepExpired", func(st *fakeState) error {
		for k, s := range st.seats {
			if s.Status == model.SeatHeld && s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
				s = clearHold(s)
				s.Status = model.SeatAvailable
				st.seats[k] = s
				n++
			}
		}
		return nil
	})
	return n, err
}

type fakeIntents struct {
	f    *fakeStore
	inTx bool
}

func (r *fakeIntents) Create(ctx context.Context, in *model.PaymentIntent) error {
	return r.f.do(r.inTx, "Intents.Create", func(st *fakeState) error {
		if _, exists := st.intents[in.OrderCode]; exists {
			return repository.ErrDuplicate
		}
		for _, other := range st.intents {
			if other.SeatNumber == in.SeatNumber && other.Status == model.IntentPending {
				return repository.ErrDuplicate
			}
		}
		st.intents[in.OrderCode] = *in
		return nil
	})
}

func (r *fakeIntents) get(code int64, op string) (*model.PaymentIntent, error) {
	var out *model.PaymentIntent
	err := r.f.do(r.inTx, op, func(st *fakeState) error {
		in, ok := st.intents[code]
		if !ok {
			return repository.ErrNotFound
		}
		out = &in
		return nil
	})
	return out, err
}

func (r *fakeIntents) Get(ctx context.Context, code int64) (*model.PaymentIntent, error) {
	return r.get(code, "Intents.Get")
}

func (r *fakeIntents) GetForUpdate(ctx context.Context, code int64) (*model.PaymentIntent, error) {
	return r.get(code, "Intents.GetForUpdate")
}

func (r *fakeIntents) ListPendingForSeat(ctx context.Context, n int) ([]model.PaymentIntent, error) {
	var out []model.PaymentIntent
	err := r.f.do(r.inTx, "Intents.ListPendingForSeat", func(st *fakeState) error {
		for _, in := range st.intents {
			if in.SeatNumber == n && in.Status == model.IntentPending {
				out = append(out, in)
			}
		}
		return nil
	})
	return out, err
}

func (r *fakeIntents) AttachCheckout(ctx context.Context, code int64, url, linkID string) (bool, error) {
	var ok bool
	err := r.f.do(r.inTx, "Intents.AttachCheckout", func(st *fakeState) error {
		in, exists := st.intents[code]
		if !exists || in.Status != model.IntentPending {
			return nil
		}
		in.CheckoutURL, in.PaymentLinkID = strPtr(url), strPtr(linkID)
		st.intents[code] = in
		ok = true
		return nil
	})
	return ok, err
}

func (r *fakeIntents) MarkTerminal(ctx context.Context, code int64, status model.IntentStatus, t repository.Terminal) (bool, error) {
	var ok bool
	err := r.f.do(r.inTx, "Intents.MarkTerminal", func(st *fakeState) error {
		in, exists := st.intents[code]
		if !exists || in.Status != model.IntentPending {
			return nil
		}
		in.Status = status
		if t.ReservationRef != nil {
			in.ReservationRef = t.ReservationRef
		}
		if t.FailureReason != nil {
			in.FailureReason = t.FailureReason
		}
		if t.WebhookPayload != nil {
			in.WebhookPayload = t.WebhookPayload
		}
		st.intents[code] = in
		ok = true
		return nil
	})
	return ok, err
}

type fakeReservations struct {
	f    *fakeStore
	inTx bool
}

func (r *fakeReservations) Create(ctx context.Context, res *model.Reservation) error {
	return r.f.do(r.inTx, "Reservations.Create", func(st *fakeState) error {
		if _, exists := st.reservations[res.ID]; exists {
			return repository.ErrDuplicate
		}
		for _, other := range st.reservations {
			if other.OrderCode == res.OrderCode {
				return repository.ErrDuplicate
			}
			if other.Active() && res.PaymentStatus.Paid() && (other.Email == res.Email || other.Phone == res.Phone) {
				return repository.ErrDuplicate
			}
		}
		st.reservations[res.ID] = *res
		return nil
	})
}

func (r *fakeReservations) get(id, op string) (*model.Reservation, error) {
	var out *model.Reservation
	err := r.f.do(r.inTx, op, func(st *fakeState) error {
		res, ok := st.reservations[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &res
		return nil
	})
	return out, err
}

func (r *fakeReservations) Get(ctx context.Context, id string) (*model.Reservation, error) {
	return r.get(id, "Reservations.Get")
}

func (r *fakeReservations) GetForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
	return r.get(id, "Reservations.GetForUpdate")
}

func (r *fakeReservations) FindActiveByContact(ctx context.Context, email, phone string) ([]model.Reservation, error) {
	var out []model.Reservation
	err := r.f.do(r.inTx, "Reservations.FindActiveByContact", func(st *fakeState) error {
		for _, res := range st.reservations {
			if res.Active() && (res.Email == email || res.Phone == phone) {
				out = append(out, res)
			}
		}
		return nil
	})
	return out, err
}

func (r *fakeReservations) List(ctx context.Context) ([]model.Reservation, error) {
	var out []model.Reservation
	err := r.f.do(r.inTx, "Reservations.List", func(st *fakeState) error {
		for _, res := range st.reservations {
			out = append(out, res)
		}
		return nil
	})
	return out, err
}

func (r *fakeReservations) MarkSent(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.f.do(r.inTx, "Reservations.MarkSent", func(st *fakeState) error {
		res, exists := st.reservations[id]
		if !exists || res.PaymentStatus != model.PaymentVerified || res.VoidedAt != nil {
			return nil
		}
		res.PaymentStatus = model.PaymentSent
		st.reservations[id] = res
		ok = true
		return nil
	})
	return ok, err
}

func (r *fakeReservations) Void(ctx context.Context, id string, at time.Time) (bool, error) {
	var ok bool
	err := r.f.do(r.inTx, "Reservations.Void", func(st *fakeState) error {
		res, exists := st.reservations[id]
		if !exists || res.VoidedAt != nil {
			return nil
		}
		res.VoidedAt = timePtr(at)
		st.reservations[id] = res
		ok = true
		return nil
	})
	return ok, err
}

type fakeFailures struct {
	f    *fakeStore
	inTx bool
}

func (r *fakeFailures) Record(ctx context.Context, fl *model.SettlementFailure) error {
	return r.f.do(r.inTx, "Failures.Record", func(st *fakeState) error {
		for i, existing := range st.failures {
			if existing.OrderCode == fl.OrderCode && existing.Reason == fl.Reason {
				st.failures[i].Detail = fl.Detail
				fl.ID = existing.ID
				return nil
			}
		}
		st.nextID++
		fl.ID = st.nextID
		st.failures = append(st.failures, *fl)
		return nil
	})
}

func (r *fakeFailures) List(ctx context.Context, limit int) ([]model.SettlementFailure, error) {
	var out []model.SettlementFailure
	err := r.f.do(r.inTx, "Failures.List", func(st *fakeState) error {
		for i := len(st.failures) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			out = append(out, st.failures[i])
		}
		return nil
	})
	return out, err
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
