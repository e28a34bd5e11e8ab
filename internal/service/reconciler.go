package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/iliyamo/workshop-seat-booking/internal/gateway"
	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/repository"
)

const (
	maxOrderCodeAttempts = 5
	maxPendingNotifies   = 64
	reasonSuperseded     = "SUPERSEDED"
	reasonGatewayDown    = "GATEWAY_UNAVAILABLE"
)

// Settlement decisions, logged with every processed event.
const (
	decisionUnknownOrder = "unknown_order"
	decisionReplay       = "replay"
	decisionLatePayment  = "late_payment"
	decisionBooked       = "booked"
	decisionConflict     = "conflict"
	decisionReleased     = "released"
	decisionClosed       = "closed"
)

// Notifier is the outbound boundary to the notification dispatcher.
// Delivery is best effort; a failure never undoes a settlement.
type Notifier interface {
	NotifyPaid(ctx context.Context, reservationID string) error
}

// CreateIntentRequest is a client's request to pay for the seat it holds.
type CreateIntentRequest struct {
	SeatNumber  int
	HolderToken string
	Customer    model.Customer
	Amount      int64
}

// SettlementEvent is a verified gateway callback in canonical form.
type SettlementEvent struct {
	OrderCode  int64
	Outcome    model.Outcome
	RawPayload string
}

// ReconcilerConfig tunes checkout creation.
type ReconcilerConfig struct {
	TicketPrice     int64         // overrides the client amount when positive
	Description     string        // prefix of the payment description
	ReturnURL       string        // where the gateway sends the buyer after paying
	CancelURL       string        // where the gateway sends the buyer after cancelling
	LinkTTL         time.Duration // lifetime of a checkout link
	GatewayAttempts int
	GatewayBackoff  time.Duration
	NotifyTimeout   time.Duration
}

func (c *ReconcilerConfig) setDefaults() {
	if c.Description == "" {
		c.Description = "Workshop seat"
	}
	if c.LinkTTL <= 0 {
		c.LinkTTL = 15 * time.Minute
	}
	if c.GatewayAttempts <= 0 {
		c.GatewayAttempts = 3
	}
	if c.GatewayBackoff <= 0 {
		c.GatewayBackoff = 200 * time.Millisecond
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 5 * time.Second
	}
}

// Reconciler owns the payment intent lifecycle and applies settlement
// events to intents, reservations and seats together.
type Reconciler interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*model.PaymentIntent, error)
	GetIntent(ctx context.Context, orderCode int64) (*model.PaymentIntent, error)
	HandleSettlementEvent(ctx context.Context, ev SettlementEvent) error
	VoidBooking(ctx context.Context, reservationID string) (*model.Reservation, error)
	ListReservations(ctx context.Context) ([]model.Reservation, error)
	ListFailures(ctx context.Context, limit int) ([]model.SettlementFailure, error)
}

type reconciler struct {
	store    repository.Store
	gw       gateway.Client
	notifier Notifier
	cfg      ReconcilerConfig
	opts     options

	// notifications run off the settlement path; sem caps how many may be
	// stuck behind a slow broker at once.
	sem      *semaphore.Weighted
	inflight sync.WaitGroup
}

// NewReconciler wires a Reconciler.  notifier may be nil.
func NewReconciler(store repository.Store, gw gateway.Client, notifier Notifier, cfg ReconcilerConfig, opts ...Option) Reconciler {
	if store == nil || gw == nil {
		panic("nil dependency passed to NewReconciler")
	}
	cfg.setDefaults()
	return &reconciler{
		store:    store,
		gw:       gw,
		notifier: notifier,
		cfg:      cfg,
		opts:     buildOptions(opts),
		sem:      semaphore.NewWeighted(maxPendingNotifies),
	}
}

func (r *reconciler) now() time.Time { return r.opts.now().UTC() }

// newOrderCode derives a fresh code from the clock with random low digits,
// so two requests in the same millisecond rarely collide.
func (r *reconciler) newOrderCode() int64 {
	return r.now().UnixMilli()*1000 + rand.Int64N(1000)
}

// CreateIntent opens a payment intent for a seat the caller holds.  Prior
// pending intents for the seat are cancelled in the same transaction, so a
// retried checkout converges on one intent.  The gateway link is created
// after commit; if the gateway never answers the intent is abandoned.
func (r *reconciler) CreateIntent(ctx context.Context, req CreateIntentRequest) (*model.PaymentIntent, error) {
	if err := model.ValidateSeatRequest(req.SeatNumber, req.HolderToken); err != nil {
		return nil, err
	}
	customer, err := model.NormalizeCustomer(req.Customer)
	if err != nil {
		return nil, err
	}
	amount := req.Amount
	if r.cfg.TicketPrice > 0 {
		amount = r.cfg.TicketPrice
	}
	if err := model.ValidateAmount(amount); err != nil {
		return nil, err
	}

	dups, err := r.store.Repos().Reservations.FindActiveByContact(ctx, customer.Email, customer.Phone)
	if err != nil {
		return nil, fmt.Errorf("check contact: %w", err)
	}
	if len(dups) > 0 {
		return nil, ErrDuplicateContact
	}

	intent := &model.PaymentIntent{
		SeatNumber:  req.SeatNumber,
		HolderToken: req.HolderToken,
		Amount:      amount,
		Description: fmt.Sprintf("%s %d", r.cfg.Description, req.SeatNumber),
		Status:      model.IntentPending,
		Customer:    customer,
	}
	var superseded []model.PaymentIntent
	err = r.store.InTx(ctx, func(repos repository.Repos) error {
		superseded = superseded[:0]
		now := r.now()
		seat, err := repos.Seats.GetForUpdate(ctx, req.SeatNumber)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSeatNotFound
		}
		if err != nil {
			return err
		}
		if !seat.HeldBy(req.HolderToken, now) {
			return ErrSeatNotHeld
		}

		pending, err := repos.Intents.ListPendingForSeat(ctx, req.SeatNumber)
		if err != nil {
			return err
		}
		for _, p := range pending {
			reason := reasonSuperseded
			if _, err := repos.Intents.MarkTerminal(ctx, p.OrderCode, model.IntentCancelled, repository.Terminal{FailureReason: &reason}); err != nil {
				return err
			}
			superseded = append(superseded, p)
		}

		for attempt := 1; ; attempt++ {
			intent.OrderCode = r.newOrderCode()
			err := repos.Intents.Create(ctx, intent)
			if err == nil {
				break
			}
			if !errors.Is(err, repository.ErrDuplicate) || attempt >= maxOrderCodeAttempts {
				return err
			}
		}
		intent.CreatedAt, intent.UpdatedAt = now, now

		ok, err := repos.Seats.AttachIntent(ctx, req.SeatNumber, req.HolderToken, intent.OrderCode, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSeatNotHeld
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}

	log := r.opts.log.WithFields(logrus.Fields{"order_code": intent.OrderCode, "seat_number": intent.SeatNumber})
	r.cancelLinks(ctx, superseded)

	link, err := r.createLink(ctx, gateway.CheckoutRequest{
		OrderCode:   intent.OrderCode,
		Amount:      intent.Amount,
		Description: intent.Description,
		BuyerName:   customer.Name,
		BuyerEmail:  customer.Email,
		BuyerPhone:  customer.Phone,
		ReturnURL:   r.cfg.ReturnURL,
		CancelURL:   r.cfg.CancelURL,
		ExpiresAt:   r.now().Add(r.cfg.LinkTTL),
	}, log)
	if err != nil {
		r.abandon(ctx, intent, log)
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	ok, err := r.store.Repos().Intents.AttachCheckout(ctx, intent.OrderCode, link.CheckoutURL, link.PaymentLinkID)
	if err != nil {
		log.WithError(err).Warn("store checkout link failed")
	} else if !ok {
		r.cancelLinks(ctx, []model.PaymentIntent{*intent})
		return nil, ErrIntentSuperseded
	}
	intent.CheckoutURL = &link.CheckoutURL
	intent.PaymentLinkID = &link.PaymentLinkID
	log.WithField("superseded", len(superseded)).Info("payment intent created")
	return intent, nil
}

func (r *reconciler) createLink(ctx context.Context, req gateway.CheckoutRequest, log logrus.FieldLogger) (*gateway.CheckoutLink, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.GatewayAttempts; attempt++ {
		link, err := r.gw.CreatePaymentLink(ctx, req)
		if err == nil {
			return link, nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("create payment link failed")
		if attempt == r.cfg.GatewayAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.GatewayBackoff << (attempt - 1)):
		}
	}
	return nil, lastErr
}

// abandon cancels an intent whose checkout link could not be created and
// detaches it from the seat.  The hold itself is kept for a retry.
func (r *reconciler) abandon(ctx context.Context, in *model.PaymentIntent, log logrus.FieldLogger) {
	ctx = context.WithoutCancel(ctx)
	reason := reasonGatewayDown
	err := r.store.InTx(ctx, func(repos repository.Repos) error {
		if _, err := repos.Intents.MarkTerminal(ctx, in.OrderCode, model.IntentCancelled, repository.Terminal{FailureReason: &reason}); err != nil {
			return err
		}
		_, err := repos.Seats.DetachIntent(ctx, in.SeatNumber, in.OrderCode)
		return err
	})
	if err != nil {
		log.WithError(err).Error("abandon payment intent failed")
	}
}

// cancelLinks asks the gateway to close links of intents cancelled locally.
// Failures are logged; a stale link that still pays is caught as a late
// payment during settlement.
func (r *reconciler) cancelLinks(ctx context.Context, intents []model.PaymentIntent) {
	for _, in := range intents {
		if in.CheckoutURL == nil && in.PaymentLinkID == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := r.gw.CancelPaymentLink(cctx, in.OrderCode, reasonSuperseded); err != nil {
			r.opts.log.WithError(err).WithField("order_code", in.OrderCode).Warn("cancel payment link failed")
		}
		cancel()
	}
}

// GetIntent returns an intent by order code.
func (r *reconciler) GetIntent(ctx context.Context, orderCode int64) (*model.PaymentIntent, error) {
	in, err := r.store.Repos().Intents.Get(ctx, orderCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent %d: %w", orderCode, err)
	}
	return in, nil
}

// HandleSettlementEvent applies one gateway callback.  Only a pending intent
// changes; replays, stale outcomes and unknown order codes are logged and
// acknowledged.  Intent, reservation and seat move in one transaction with
// the seat written last.
func (r *reconciler) HandleSettlementEvent(ctx context.Context, ev SettlementEvent) error {
	log := r.opts.log.WithFields(logrus.Fields{"order_code": ev.OrderCode, "outcome": ev.Outcome})
	var payload *string
	if ev.RawPayload != "" {
		p := ev.RawPayload
		payload = &p
	}

	var decision, reservationID string
	var seatNumber int
	err := r.store.InTx(ctx, func(repos repository.Repos) error {
		decision, reservationID = "", ""
		in, err := repos.Intents.GetForUpdate(ctx, ev.OrderCode)
		if errors.Is(err, repository.ErrNotFound) {
			decision = decisionUnknownOrder
			return nil
		}
		if err != nil {
			return err
		}
		seatNumber = in.SeatNumber

		if in.Status.Terminal() {
			decision = decisionReplay
			if ev.Outcome == model.OutcomePaid && in.Status != model.IntentPaid {
				decision = decisionLatePayment
				return repos.Failures.Record(ctx, &model.SettlementFailure{
					OrderCode: ev.OrderCode,
					Outcome:   string(ev.Outcome),
					Reason:    model.FailureLatePayment,
					Detail:    fmt.Sprintf("payment arrived for %s intent on seat %d", in.Status, in.SeatNumber),
				})
			}
			return nil
		}

		if ev.Outcome == model.OutcomePaid {
			decision, reservationID, err = r.settlePaid(ctx, repos, in, payload, log)
			return err
		}
		decision, err = r.settleUnpaid(ctx, repos, in, ev.Outcome, payload)
		return err
	})
	if err != nil {
		log.WithError(err).Error("settlement failed")
		r.recordFailure(ctx, ev, model.FailureStore, err.Error())
		return fmt.Errorf("settle order %d: %w", ev.OrderCode, err)
	}

	entry := log.WithFields(logrus.Fields{"decision": decision, "seat_number": seatNumber, "reservation_id": reservationID})
	switch decision {
	case decisionUnknownOrder, decisionReplay:
		entry.Warn("settlement ignored")
	case decisionLatePayment, decisionConflict:
		entry.Error("settlement needs reconciliation")
	default:
		entry.Info("settlement applied")
	}

	if reservationID != "" {
		r.notify(ctx, reservationID, entry)
	}
	return nil
}

// settlePaid materializes the reservation, closes the intent and books the
// seat, in that order.  A contact or seat collision leaves the intent paid
// with a failure reason and records it for refund handling.
func (r *reconciler) settlePaid(ctx context.Context, repos repository.Repos, in *model.PaymentIntent, payload *string, log logrus.FieldLogger) (string, string, error) {
	dups, err := repos.Reservations.FindActiveByContact(ctx, in.Email, in.Phone)
	if err != nil {
		return "", "", err
	}
	if len(dups) > 0 {
		detail := fmt.Sprintf("contact already owns reservation %s", dups[0].ID)
		return decisionConflict, "", r.flagPaidConflict(ctx, repos, in, payload, model.FailureDuplicateContact, detail)
	}

	seat, err := repos.Seats.GetForUpdate(ctx, in.SeatNumber)
	if err != nil {
		return "", "", err
	}
	if seat.Status == model.SeatBooked {
		detail := fmt.Sprintf("seat %d already booked", in.SeatNumber)
		if seat.ReservationRef != nil {
			detail += " by reservation " + *seat.ReservationRef
		}
		return decisionConflict, "", r.flagPaidConflict(ctx, repos, in, payload, model.FailureSeatConflict, detail)
	}
	if seat.Status == model.SeatHeld && (seat.IntentRef == nil || *seat.IntentRef != in.OrderCode) {
		log.WithField("seat_number", in.SeatNumber).Warn("paid intent displaces a hold it no longer owns")
	}

	res := &model.Reservation{
		ID:            uuid.NewString(),
		OrderCode:     in.OrderCode,
		Name:          in.Name,
		Email:         in.Email,
		Phone:         in.Phone,
		SeatNumber:    in.SeatNumber,
		PaymentStatus: model.PaymentVerified,
	}
	if err := repos.Reservations.Create(ctx, res); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return decisionConflict, "", r.flagPaidConflict(ctx, repos, in, payload, model.FailureDuplicateContact, err.Error())
		}
		return "", "", err
	}

	ref := res.ID
	ok, err := repos.Intents.MarkTerminal(ctx, in.OrderCode, model.IntentPaid, repository.Terminal{ReservationRef: &ref, WebhookPayload: payload})
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", fmt.Errorf("intent %d left pending during settlement", in.OrderCode)
	}

	ok, err = repos.Seats.Book(ctx, in.SeatNumber, res.ID)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", fmt.Errorf("seat %d could not be booked for reservation %s", in.SeatNumber, res.ID)
	}
	return decisionBooked, res.ID, nil
}

func (r *reconciler) flagPaidConflict(ctx context.Context, repos repository.Repos, in *model.PaymentIntent, payload *string, reason, detail string) error {
	if _, err := repos.Intents.MarkTerminal(ctx, in.OrderCode, model.IntentPaid, repository.Terminal{FailureReason: &reason, WebhookPayload: payload}); err != nil {
		return err
	}
	if err := repos.Failures.Record(ctx, &model.SettlementFailure{
		OrderCode: in.OrderCode,
		Outcome:   string(model.OutcomePaid),
		Reason:    reason,
		Detail:    detail,
	}); err != nil {
		return err
	}
	_, err := repos.Seats.ReleaseForIntent(ctx, in.SeatNumber, in.OrderCode)
	return err
}

// settleUnpaid closes the intent and frees its seat while the seat still
// references this intent.
func (r *reconciler) settleUnpaid(ctx context.Context, repos repository.Repos, in *model.PaymentIntent, outcome model.Outcome, payload *string) (string, error) {
	if _, err := repos.Intents.MarkTerminal(ctx, in.OrderCode, outcome.IntentStatus(), repository.Terminal{WebhookPayload: payload}); err != nil {
		return "", err
	}
	released, err := repos.Seats.ReleaseForIntent(ctx, in.SeatNumber, in.OrderCode)
	if err != nil {
		return "", err
	}
	if released {
		return decisionReleased, nil
	}
	return decisionClosed, nil
}

func (r *reconciler) recordFailure(ctx context.Context, ev SettlementEvent, reason, detail string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if len(detail) > 1000 {
		detail = detail[:1000]
	}
	err := r.store.Repos().Failures.Record(ctx, &model.SettlementFailure{
		OrderCode: ev.OrderCode,
		Outcome:   string(ev.Outcome),
		Reason:    reason,
		Detail:    detail,
	})
	if err != nil {
		r.opts.log.WithError(err).WithField("order_code", ev.OrderCode).Error("record settlement failure")
	}
}

// notify hands the paid reservation to the notifier in the background.  The
// settlement reply never waits on it; when too many sends are already
// pending the notification is dropped and logged.
func (r *reconciler) notify(ctx context.Context, reservationID string, log logrus.FieldLogger) {
	if r.notifier == nil {
		return
	}
	if !r.sem.TryAcquire(1) {
		log.Warn("notify paid dropped: too many pending notifications")
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer r.sem.Release(1)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.NotifyTimeout)
		defer cancel()
		if err := r.notifier.NotifyPaid(ctx, reservationID); err != nil {
			log.WithError(err).Warn("notify paid failed")
		}
	}()
}

// VoidBooking is the administrative cancellation of a paid booking.  The
// seat returns to available and the reservation is stamped voided; the
// intent stays paid and a VOIDED failure row feeds the refund trail.
func (r *reconciler) VoidBooking(ctx context.Context, reservationID string) (*model.Reservation, error) {
	var out *model.Reservation
	err := r.store.InTx(ctx, func(repos repository.Repos) error {
		res, err := repos.Reservations.GetForUpdate(ctx, reservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		if res.VoidedAt != nil {
			return ErrAlreadyVoided
		}
		now := r.now()
		ok, err := repos.Reservations.Void(ctx, res.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyVoided
		}
		freed, err := repos.Seats.Unbook(ctx, res.SeatNumber, res.ID)
		if err != nil {
			return err
		}
		if err := repos.Failures.Record(ctx, &model.SettlementFailure{
			OrderCode: res.OrderCode,
			Outcome:   string(model.OutcomePaid),
			Reason:    model.FailureVoided,
			Detail:    fmt.Sprintf("reservation %s voided, seat %d freed=%t", res.ID, res.SeatNumber, freed),
		}); err != nil {
			return err
		}
		res.VoidedAt = &now
		out = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("void reservation %s: %w", reservationID, err)
	}
	r.opts.log.WithFields(logrus.Fields{"reservation_id": out.ID, "seat_number": out.SeatNumber}).Info("reservation voided")
	return out, nil
}

// ListReservations returns all reservations.
func (r *reconciler) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	return r.store.Repos().Reservations.List(ctx)
}

// ListFailures returns the most recent settlement failures.
func (r *reconciler) ListFailures(ctx context.Context, limit int) ([]model.SettlementFailure, error) {
	return r.store.Repos().Failures.List(ctx, limit)
}
