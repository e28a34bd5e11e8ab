// Package gateway defines the boundary between the reconciler and a payment
// provider.  Provider adapters live in subpackages and normalize their own
// wire formats into the types declared here.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

var (
	// ErrInvalidSignature means a webhook body failed authenticity checks.
	ErrInvalidSignature = errors.New("gateway: invalid signature")
	// ErrMalformedPayload means a webhook body could not be decoded.
	ErrMalformedPayload = errors.New("gateway: malformed payload")
	// ErrUnknownOutcome means a webhook carried a status the service does not act on.
	ErrUnknownOutcome = errors.New("gateway: unknown outcome")
)

// CheckoutRequest describes the payment link to create for one intent.
type CheckoutRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	BuyerName   string
	BuyerEmail  string
	BuyerPhone  string
	ReturnURL   string
	CancelURL   string
	ExpiresAt   time.Time
}

// CheckoutLink is what the provider hands back for a created payment link.
type CheckoutLink struct {
	CheckoutURL   string
	PaymentLinkID string
}

// Client creates and cancels payment links.
type Client interface {
	CreatePaymentLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error
}

// Event is a verified settlement callback in canonical form.
type Event struct {
	OrderCode int64
	Outcome   model.Outcome
	Raw       []byte
}

// WebhookVerifier authenticates and normalizes a raw webhook body.
type WebhookVerifier interface {
	ParseWebhook(body []byte) (*Event, error)
}
