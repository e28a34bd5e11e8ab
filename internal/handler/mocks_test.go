package handler

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/gateway"
	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/service"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type mockLocks struct {
	acquireFn  func(ctx context.Context, seat int, token string) (*model.Seat, error)
	releaseFn  func(ctx context.Context, seat int, token string) error
	swapFn     func(ctx context.Context, oldSeat, newSeat int, token string) (*model.Seat, error)
	sweepFn    func(ctx context.Context) (int64, error)
	snapshotFn func(ctx context.Context) ([]model.Seat, error)
}

var _ service.SeatLockManager = (*mockLocks)(nil)

func (m *mockLocks) Acquire(ctx context.Context, seat int, token string) (*model.Seat, error) {
	return m.acquireFn(ctx, seat, token)
}
func (m *mockLocks) Release(ctx context.Context, seat int, token string) error {
	return m.releaseFn(ctx, seat, token)
}
func (m *mockLocks) ReassignOnSwap(ctx context.Context, oldSeat, newSeat int, token string) (*model.Seat, error) {
	return m.swapFn(ctx, oldSeat, newSeat, token)
}
func (m *mockLocks) SweepExpired(ctx context.Context) (int64, error) { return m.sweepFn(ctx) }
func (m *mockLocks) Snapshot(ctx context.Context) ([]model.Seat, error) {
	return m.snapshotFn(ctx)
}
func (m *mockLocks) Get(ctx context.Context, seat int) (*model.Seat, error) {
	return nil, service.ErrSeatNotFound
}

type mockReconciler struct {
	createFn       func(ctx context.Context, req service.CreateIntentRequest) (*model.PaymentIntent, error)
	getFn          func(ctx context.Context, code int64) (*model.PaymentIntent, error)
	settleFn       func(ctx context.Context, ev service.SettlementEvent) error
	voidFn         func(ctx context.Context, id string) (*model.Reservation, error)
	reservationsFn func(ctx context.Context) ([]model.Reservation, error)
	failuresFn     func(ctx context.Context, limit int) ([]model.SettlementFailure, error)
}

var _ service.Reconciler = (*mockReconciler)(nil)

func (m *mockReconciler) CreateIntent(ctx context.Context, req service.CreateIntentRequest) (*model.PaymentIntent, error) {
	return m.createFn(ctx, req)
}
func (m *mockReconciler) GetIntent(ctx context.Context, code int64) (*model.PaymentIntent, error) {
	return m.getFn(ctx, code)
}
func (m *mockReconciler) HandleSettlementEvent(ctx context.Context, ev service.SettlementEvent) error {
	return m.settleFn(ctx, ev)
}
func (m *mockReconciler) VoidBooking(ctx context.Context, id string) (*model.Reservation, error) {
	return m.voidFn(ctx, id)
}
func (m *mockReconciler) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	return m.reservationsFn(ctx)
}
func (m *mockReconciler) ListFailures(ctx context.Context, limit int) ([]model.SettlementFailure, error) {
	return m.failuresFn(ctx, limit)
}

type mockVerifier struct {
	parseFn func(body []byte) (*gateway.Event, error)
}

func (m *mockVerifier) ParseWebhook(body []byte) (*gateway.Event, error) { return m.parseFn(body) }
