package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

// LogSender writes outbound messages to the structured log.  It stands in
// for the mail provider, which lives outside this service.
type LogSender struct {
	StaffEmail string
	Log        logrus.FieldLogger
}

func (s LogSender) SendConfirmation(ctx context.Context, r model.Reservation) error {
	s.Log.WithFields(logrus.Fields{
		"to":             r.Email,
		"reservation_id": r.ID,
		"seat_number":    r.SeatNumber,
		"order_code":     r.OrderCode,
	}).Info("confirmation queued")
	return nil
}

func (s LogSender) AlertStaff(ctx context.Context, r model.Reservation) error {
	s.Log.WithFields(logrus.Fields{
		"to":             s.StaffEmail,
		"reservation_id": r.ID,
		"name":           r.Name,
		"phone":          r.Phone,
		"seat_number":    r.SeatNumber,
	}).Info("staff alert queued")
	return nil
}
