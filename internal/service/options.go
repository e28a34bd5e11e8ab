package service

import (
	"time"

	"github.com/sirupsen/logrus"
)

type options struct {
	now func() time.Time
	log logrus.FieldLogger
}

// Option customizes a service.
type Option func(*options)

// WithClock replaces time.Now.  Tests use it to move holds past expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: logrus.StandardLogger()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
