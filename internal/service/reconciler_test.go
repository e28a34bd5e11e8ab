package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/workshop-seat-booking/internal/gateway"
	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	created   []gateway.CheckoutRequest
	cancelled []int64
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.CheckoutLink{CheckoutURL: "https://pay.example/" + strconv.FormatInt(req.OrderCode, 10), PaymentLinkID: "link-" + strconv.FormatInt(req.OrderCode, 10)}, nil
}

func (g *fakeGateway) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, orderCode)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	ids   []string
	err   error
	block chan struct{} // when set, NotifyPaid waits for it to close and ignores ctx
}

func (n *fakeNotifier) NotifyPaid(ctx context.Context, id string) error {
	if n.block != nil {
		<-n.block
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return n.err
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

type harness struct {
	store    *fakeStore
	clock    *fakeClock
	gw       *fakeGateway
	notifier *fakeNotifier
	locks    SeatLockManager
	rec      Reconciler
}

func newHarness(t *testing.T, cfg ReconcilerConfig) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(20),
		clock:    newFakeClock(),
		gw:       &fakeGateway{},
		notifier: &fakeNotifier{},
	}
	opts := []Option{WithClock(h.clock.Now), WithLogger(quietLogger())}
	h.locks = NewSeatLockManager(h.store, 5*time.Minute, opts...)
	if cfg.GatewayBackoff == 0 {
		cfg.GatewayBackoff = time.Millisecond
	}
	h.rec = NewReconciler(h.store, h.gw, h.notifier, cfg, opts...)
	return h
}

var alice = model.Customer{Name: "Alice Nguyen", Email: "Alice@Example.com", Phone: "0901 234 567"}

func (h *harness) holdAndPay(t *testing.T, seat int, token string, c model.Customer) *model.PaymentIntent {
	t.Helper()
	ctx := context.Background()
	_, err := h.locks.Acquire(ctx, seat, token)
	require.NoError(t, err)
	in, err := h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: seat, HolderToken: token, Customer: c, Amount: 50000})
	require.NoError(t, err)
	return in
}

// flush waits for background notifications to finish.
func (h *harness) flush() {
	h.rec.(*reconciler).inflight.Wait()
}

func (h *harness) settle(t *testing.T, code int64, outcome model.Outcome) {
	t.Helper()
	require.NoError(t, h.rec.HandleSettlementEvent(context.Background(), SettlementEvent{OrderCode: code, Outcome: outcome, RawPayload: `{"raw":true}`}))
}

func TestScenario_HoldPayAndReplay(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()

	_, err := h.locks.Acquire(ctx, 7, "A")
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, h.store.seat(7).Status)

	_, err = h.locks.Acquire(ctx, 7, "B")
	assert.ErrorIs(t, err, ErrSeatHeldByOther)

	in, err := h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 7, HolderToken: "A", Customer: alice, Amount: 50000})
	require.NoError(t, err)
	require.NotNil(t, in.CheckoutURL)
	assert.Equal(t, "alice@example.com", in.Email)
	assert.Equal(t, "0901234567", in.Phone)
	assert.Equal(t, in.OrderCode, *h.store.seat(7).IntentRef)

	h.settle(t, in.OrderCode, model.OutcomePaid)
	seat := h.store.seat(7)
	assert.Equal(t, model.SeatBooked, seat.Status)
	reservations := h.store.allReservations()
	require.Len(t, reservations, 1)
	assert.Equal(t, model.PaymentVerified, reservations[0].PaymentStatus)
	assert.Equal(t, reservations[0].ID, *seat.ReservationRef)
	assert.Equal(t, model.IntentPaid, h.store.intent(in.OrderCode).Status)
	h.flush()
	assert.Equal(t, []string{reservations[0].ID}, h.notifier.sent())

	h.settle(t, in.OrderCode, model.OutcomePaid)
	assert.Len(t, h.store.allReservations(), 1)
	assert.Equal(t, model.SeatBooked, h.store.seat(7).Status)
	h.flush()
	assert.Len(t, h.notifier.sent(), 1, "replay does not notify again")
}

func TestScenario_AbandonedCheckoutFreesSeatAfterTTL(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()

	y := h.holdAndPay(t, 9, "C", alice)
	h.clock.Advance(5*time.Minute + time.Second)

	seat, err := h.locks.Acquire(ctx, 9, "D")
	require.NoError(t, err)
	assert.Equal(t, "D", *seat.HolderToken)
	assert.Equal(t, model.IntentPending, h.store.intent(y.OrderCode).Status)

	// A late expiry for Y must not release D's hold.
	h.settle(t, y.OrderCode, model.OutcomeExpired)
	assert.Equal(t, model.IntentExpired, h.store.intent(y.OrderCode).Status)
	s := h.store.seat(9)
	assert.Equal(t, model.SeatHeld, s.Status)
	assert.Equal(t, "D", *s.HolderToken)
}

func TestCancelAfterPaidKeepsSeatBooked(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	in := h.holdAndPay(t, 3, "A", alice)

	h.settle(t, in.OrderCode, model.OutcomePaid)
	h.settle(t, in.OrderCode, model.OutcomeCancelled)

	assert.Equal(t, model.SeatBooked, h.store.seat(3).Status)
	assert.Equal(t, model.IntentPaid, h.store.intent(in.OrderCode).Status)
	assert.Empty(t, h.store.allFailures())
}

func TestCancelledEventReleasesSeat(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	in := h.holdAndPay(t, 3, "A", alice)

	h.settle(t, in.OrderCode, model.OutcomeCancelled)
	assert.Equal(t, model.IntentCancelled, h.store.intent(in.OrderCode).Status)
	assert.Equal(t, model.SeatAvailable, h.store.seat(3).Status)
	assert.Empty(t, h.store.allReservations())
}

func TestSecondIntentSupersedesFirst(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()
	first := h.holdAndPay(t, 4, "A", alice)

	h.clock.Advance(time.Millisecond)
	second, err := h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 4, HolderToken: "A", Customer: alice, Amount: 50000})
	require.NoError(t, err)
	require.NotEqual(t, first.OrderCode, second.OrderCode)

	assert.Equal(t, model.IntentCancelled, h.store.intent(first.OrderCode).Status)
	pending := h.store.pendingForSeat(4)
	require.Len(t, pending, 1)
	assert.Equal(t, second.OrderCode, pending[0].OrderCode)
	assert.Equal(t, second.OrderCode, *h.store.seat(4).IntentRef)
	assert.Contains(t, h.gw.cancelled, first.OrderCode)

	// A stale cancellation of the first intent leaves the seat to the second.
	h.settle(t, first.OrderCode, model.OutcomeCancelled)
	assert.Equal(t, model.SeatHeld, h.store.seat(4).Status)

	h.settle(t, second.OrderCode, model.OutcomePaid)
	h.settle(t, first.OrderCode, model.OutcomeCancelled)
	assert.Equal(t, model.SeatBooked, h.store.seat(4).Status)
}

func TestLatePaymentForCancelledIntentIsRecorded(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	first := h.holdAndPay(t, 4, "A", alice)
	h.clock.Advance(time.Millisecond)
	h.holdAndPay(t, 4, "A", alice)

	h.settle(t, first.OrderCode, model.OutcomePaid)
	h.settle(t, first.OrderCode, model.OutcomePaid)

	assert.Equal(t, model.IntentCancelled, h.store.intent(first.OrderCode).Status)
	assert.Empty(t, h.store.allReservations())
	failures := h.store.allFailures()
	require.Len(t, failures, 1, "replays do not duplicate the record")
	assert.Equal(t, model.FailureLatePayment, failures[0].Reason)
}

func TestCreateIntent_RequiresHold(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()
	req := CreateIntentRequest{SeatNumber: 5, HolderToken: "A", Customer: alice, Amount: 1000}

	_, err := h.rec.CreateIntent(ctx, req)
	assert.ErrorIs(t, err, ErrSeatNotHeld)

	_, err = h.locks.Acquire(ctx, 5, "B")
	require.NoError(t, err)
	_, err = h.rec.CreateIntent(ctx, req)
	assert.ErrorIs(t, err, ErrSeatNotHeld)

	_, err = h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 50, HolderToken: "A", Customer: alice, Amount: 1000})
	assert.ErrorIs(t, err, ErrSeatNotFound)

	_, err = h.locks.Acquire(ctx, 6, "A")
	require.NoError(t, err)
	h.clock.Advance(5 * time.Minute)
	_, err = h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 6, HolderToken: "A", Customer: alice, Amount: 1000})
	assert.ErrorIs(t, err, ErrSeatNotHeld, "lapsed hold does not count")
	assert.Empty(t, h.gw.created)
}

func TestCreateIntent_ValidationBeforeMutation(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()
	_, err := h.locks.Acquire(ctx, 1, "A")
	require.NoError(t, err)

	cases := []struct {
		name string
		req  CreateIntentRequest
		code string
	}{
		{"bad email", CreateIntentRequest{1, "A", model.Customer{Name: "x", Email: "nope", Phone: "0901234567"}, 1000}, model.CodeEmailInvalid},
		{"bad phone", CreateIntentRequest{1, "A", model.Customer{Name: "x", Email: "x@y.vn", Phone: "12"}, 1000}, model.CodePhoneInvalid},
		{"no name", CreateIntentRequest{1, "A", model.Customer{Email: "x@y.vn", Phone: "0901234567"}, 1000}, model.CodeNameRequired},
		{"zero amount", CreateIntentRequest{1, "A", alice, 0}, model.CodeAmountInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.rec.CreateIntent(ctx, tc.req)
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.code, ve.Code)
		})
	}
	assert.Empty(t, h.store.pendingForSeat(1))
	assert.Nil(t, h.store.seat(1).IntentRef)
}

func TestCreateIntent_TicketPriceOverridesAmount(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{TicketPrice: 120000})
	in := h.holdAndPay(t, 2, "A", alice)
	assert.Equal(t, int64(120000), in.Amount)
	require.Len(t, h.gw.created, 1)
	assert.Equal(t, int64(120000), h.gw.created[0].Amount)
}

func TestCreateIntent_DuplicateContactRejected(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()
	in := h.holdAndPay(t, 1, "A", alice)
	h.settle(t, in.OrderCode, model.OutcomePaid)

	_, err := h.locks.Acquire(ctx, 2, "A2")
	require.NoError(t, err)
	sameEmail := model.Customer{Name: "Alice", Email: "alice@example.com", Phone: "0999999999"}
	_, err = h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 2, HolderToken: "A2", Customer: sameEmail, Amount: 1000})
	assert.ErrorIs(t, err, ErrDuplicateContact)
}

func TestSettlement_DuplicateContactRaceFlagsIntent(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	first := h.holdAndPay(t, 1, "A", alice)
	samePhone := model.Customer{Name: "Alice Again", Email: "other@example.com", Phone: "0901234567"}
	second := h.holdAndPay(t, 2, "B", samePhone)

	h.settle(t, first.OrderCode, model.OutcomePaid)
	h.settle(t, second.OrderCode, model.OutcomePaid)

	assert.Len(t, h.store.allReservations(), 1)
	in := h.store.intent(second.OrderCode)
	assert.Equal(t, model.IntentPaid, in.Status)
	require.NotNil(t, in.FailureReason)
	assert.Equal(t, model.FailureDuplicateContact, *in.FailureReason)
	assert.Equal(t, model.SeatAvailable, h.store.seat(2).Status)
	failures := h.store.allFailures()
	require.Len(t, failures, 1)
	assert.Equal(t, second.OrderCode, failures[0].OrderCode)
}

func TestSettlement_PaidIntentWinsOverLapsedTakeover(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()
	y := h.holdAndPay(t, 9, "C", alice)
	h.clock.Advance(6 * time.Minute)
	_, err := h.locks.Acquire(ctx, 9, "D")
	require.NoError(t, err)

	h.settle(t, y.OrderCode, model.OutcomePaid)
	seat := h.store.seat(9)
	assert.Equal(t, model.SeatBooked, seat.Status)
	assert.Nil(t, seat.HolderToken)

	_, err = h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 9, HolderToken: "D", Customer: model.Customer{Name: "Dan", Email: "dan@example.com", Phone: "0911111111"}, Amount: 1000})
	assert.ErrorIs(t, err, ErrSeatNotHeld)
}

func TestSettlement_UnknownOrderIsNoop(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	h.settle(t, 123456789, model.OutcomePaid)
	assert.Empty(t, h.store.allReservations())
	assert.Empty(t, h.store.allFailures())
}

func TestSettlement_StoreFailureRollsBack(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	in := h.holdAndPay(t, 8, "A", alice)
	h.store.setFail("Seats.Book", errors.New("connection reset"))

	err := h.rec.HandleSettlementEvent(context.Background(), SettlementEvent{OrderCode: in.OrderCode, Outcome: model.OutcomePaid})
	require.Error(t, err)
	assert.Empty(t, h.store.allReservations())
	assert.Equal(t, model.IntentPending, h.store.intent(in.OrderCode).Status)
	assert.Equal(t, model.SeatHeld, h.store.seat(8).Status)
	failures := h.store.allFailures()
	require.Len(t, failures, 1)
	assert.Equal(t, model.FailureStore, failures[0].Reason)

	// The redelivery applies cleanly once the store recovers.
	h.store.setFail("Seats.Book", nil)
	h.settle(t, in.OrderCode, model.OutcomePaid)
	assert.Equal(t, model.SeatBooked, h.store.seat(8).Status)
	assert.Len(t, h.store.allReservations(), 1)
}

func TestSettlement_NotifierFailureDoesNotUndoBooking(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	h.notifier.err = errors.New("broker down")
	in := h.holdAndPay(t, 10, "A", alice)

	h.settle(t, in.OrderCode, model.OutcomePaid)
	assert.Equal(t, model.SeatBooked, h.store.seat(10).Status)
	h.flush()
	assert.Len(t, h.notifier.sent(), 1)
}

func TestCreateIntent_OverlongEmailRejectedBeforeStore(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()
	_, err := h.locks.Acquire(ctx, 4, "A")
	require.NoError(t, err)

	c := alice
	c.Email = strings.Repeat("a", 250) + "@example.com"
	_, err = h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 4, HolderToken: "A", Customer: c, Amount: 50000})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, model.CodeEmailTooLong, ve.Code)
	assert.Nil(t, h.store.seat(4).IntentRef)
	assert.Empty(t, h.gw.created)
}

func TestSettlement_DoesNotWaitForSlowNotifier(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{NotifyTimeout: 50 * time.Millisecond})
	h.notifier.block = make(chan struct{})
	in := h.holdAndPay(t, 3, "A", alice)

	done := make(chan error, 1)
	go func() {
		done <- h.rec.HandleSettlementEvent(context.Background(), SettlementEvent{OrderCode: in.OrderCode, Outcome: model.OutcomePaid})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(h.notifier.block)
		t.Fatal("settlement blocked on the notifier")
	}
	assert.Equal(t, model.SeatBooked, h.store.seat(3).Status)
	assert.Empty(t, h.notifier.sent())

	close(h.notifier.block)
	h.flush()
	assert.Len(t, h.notifier.sent(), 1)
}

func TestCreateIntent_GatewayDownAbandonsIntent(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{GatewayAttempts: 3})
	h.gw.createErr = errors.New("timeout")
	ctx := context.Background()
	_, err := h.locks.Acquire(ctx, 11, "A")
	require.NoError(t, err)

	_, err = h.rec.CreateIntent(ctx, CreateIntentRequest{SeatNumber: 11, HolderToken: "A", Customer: alice, Amount: 1000})
	assert.ErrorIs(t, err, ErrCheckoutUnavailable)
	assert.Len(t, h.gw.created, 3)
	assert.Empty(t, h.store.pendingForSeat(11))
	seat := h.store.seat(11)
	assert.Equal(t, model.SeatHeld, seat.Status, "hold survives for a retry")
	assert.Nil(t, seat.IntentRef)
}

func TestVoidBooking(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	ctx := context.Background()
	in := h.holdAndPay(t, 12, "A", alice)
	h.settle(t, in.OrderCode, model.OutcomePaid)
	resID := *h.store.seat(12).ReservationRef

	res, err := h.rec.VoidBooking(ctx, resID)
	require.NoError(t, err)
	require.NotNil(t, res.VoidedAt)
	assert.Equal(t, model.SeatAvailable, h.store.seat(12).Status)
	assert.Equal(t, model.IntentPaid, h.store.intent(in.OrderCode).Status)

	_, err = h.rec.VoidBooking(ctx, resID)
	assert.ErrorIs(t, err, ErrAlreadyVoided)
	_, err = h.rec.VoidBooking(ctx, "missing")
	assert.ErrorIs(t, err, ErrReservationNotFound)

	failures, err := h.rec.ListFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, model.FailureVoided, failures[0].Reason)

	// The contact is free again once the booking is voided.
	again := h.holdAndPay(t, 13, "A", alice)
	h.settle(t, again.OrderCode, model.OutcomePaid)
	assert.Equal(t, model.SeatBooked, h.store.seat(13).Status)
}

func TestGetIntent(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	in := h.holdAndPay(t, 14, "A", alice)

	got, err := h.rec.GetIntent(context.Background(), in.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, model.IntentPending, got.Status)
	require.NotNil(t, got.CheckoutURL)

	_, err = h.rec.GetIntent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestConcurrentPaidDeliveriesCreateOneReservation(t *testing.T) {
	h := newHarness(t, ReconcilerConfig{})
	in := h.holdAndPay(t, 15, "A", alice)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.rec.HandleSettlementEvent(context.Background(), SettlementEvent{OrderCode: in.OrderCode, Outcome: model.OutcomePaid})
		}()
	}
	wg.Wait()
	assert.Len(t, h.store.allReservations(), 1)
	assert.Equal(t, model.SeatBooked, h.store.seat(15).Status)
}
