package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
// Failures are logged and the loop keeps going.
func RunSweeper(ctx context.Context, locks SeatLockManager, interval time.Duration, log logrus.FieldLogger) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := locks.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("hold sweep failed")
			}
		}
	}
}
