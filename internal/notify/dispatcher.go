// Package notify delivers confirmation and staff messages for paid bookings.
// It runs outside the settlement transaction: nothing here can undo a booking.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/queue"
	"github.com/iliyamo/workshop-seat-booking/internal/repository"
)

// Sender performs the actual outbound delivery.
type Sender interface {
	SendConfirmation(ctx context.Context, r model.Reservation) error
	AlertStaff(ctx context.Context, r model.Reservation) error
}

// Dispatcher turns a BookingPaidEvent into outbound messages and marks the
// reservation sent once the customer confirmation went out.
type Dispatcher struct {
	reservations repository.ReservationRepository
	sender       Sender
	log          logrus.FieldLogger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(reservations repository.ReservationRepository, sender Sender, log logrus.FieldLogger) *Dispatcher {
	if reservations == nil || sender == nil {
		panic("nil dependency passed to NewDispatcher")
	}
	return &Dispatcher{reservations: reservations, sender: sender, log: log}
}

// Handle processes one event.  Voided or already-sent reservations are
// skipped, so a redelivered event does not send twice.
func (d *Dispatcher) Handle(ctx context.Context, ev queue.BookingPaidEvent) error {
	log := d.log.WithField("reservation_id", ev.ReservationID)
	res, err := d.reservations.Get(ctx, ev.ReservationID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("reservation %s not found", ev.ReservationID)
	}
	if err != nil {
		return err
	}
	if res.VoidedAt != nil || res.PaymentStatus == model.PaymentSent {
		log.WithField("payment_status", res.PaymentStatus).Debug("notification skipped")
		return nil
	}

	if err := d.sender.SendConfirmation(ctx, *res); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	if err := d.sender.AlertStaff(ctx, *res); err != nil {
		log.WithError(err).Warn("staff alert failed")
	}
	if _, err := d.reservations.MarkSent(ctx, res.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	log.Info("booking confirmation sent")
	return nil
}

// Inline adapts a Dispatcher to the reconciler's notifier boundary when no
// broker is configured.
type Inline struct {
	D *Dispatcher
}

// NotifyPaid dispatches synchronously.
func (i Inline) NotifyPaid(ctx context.Context, reservationID string) error {
	return i.D.Handle(ctx, queue.BookingPaidEvent{ReservationID: reservationID})
}
