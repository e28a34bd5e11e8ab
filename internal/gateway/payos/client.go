// Package payos adapts the PayOS merchant API to the gateway boundary.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/gateway"
)

const (
	DefaultBaseURL = "https://api-merchant.payos.vn"
	successCode    = "00"

	// PayOS rejects descriptions longer than this for non-linked accounts.
	maxDescriptionLen = 25
)

// Config holds merchant credentials.
type Config struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	BaseURL     string
}

// Client talks to the PayOS payment-requests API and verifies its webhooks.
type Client struct {
	cfg  Config
	http *http.Client
	log  logrus.FieldLogger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

// New returns a Client for the given merchant.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var (
	_ gateway.Client          = (*Client)(nil)
	_ gateway.WebhookVerifier = (*Client)(nil)
)

type createRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	BuyerName   string `json:"buyerName,omitempty"`
	BuyerEmail  string `json:"buyerEmail,omitempty"`
	BuyerPhone  string `json:"buyerPhone,omitempty"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	ExpiredAt   int64  `json:"expiredAt,omitempty"`
	Signature   string `json:"signature"`
}

type envelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

type createData struct {
	CheckoutURL   string `json:"checkoutUrl"`
	PaymentLinkID string `json:"paymentLinkId"`
}

// CreatePaymentLink registers a payment request and returns its checkout URL.
func (c *Client) CreatePaymentLink(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutLink, error) {
	desc := req.Description
	if len(desc) > maxDescriptionLen {
		desc = desc[:maxDescriptionLen]
	}
	body := createRequest{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: desc,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		BuyerPhone:  req.BuyerPhone,
		CancelURL:   req.CancelURL,
		ReturnURL:   req.ReturnURL,
		Signature:   paymentRequestSignature(c.cfg.ChecksumKey, req.Amount, req.CancelURL, desc, req.OrderCode, req.ReturnURL),
	}
	if !req.ExpiresAt.IsZero() {
		body.ExpiredAt = req.ExpiresAt.Unix()
	}

	var data createData
	if err := c.do(ctx, http.MethodPost, "/v2/payment-requests", body, &data); err != nil {
		return nil, err
	}
	if data.CheckoutURL == "" {
		return nil, fmt.Errorf("payos: empty checkout url for order %d", req.OrderCode)
	}
	return &gateway.CheckoutLink{CheckoutURL: data.CheckoutURL, PaymentLinkID: data.PaymentLinkID}, nil
}

// CancelPaymentLink cancels an unpaid payment request.
func (c *Client) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	path := "/v2/payment-requests/" + strconv.FormatInt(orderCode, 10) + "/cancel"
	return c.do(ctx, http.MethodPost, path, map[string]string{"cancellationReason": reason}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.cfg.ClientID)
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payos: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payos: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("payos: %s %s: http %d", method, path, resp.StatusCode)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("payos: decode response: %w", err)
	}
	if env.Code != successCode {
		c.log.WithFields(logrus.Fields{"path": path, "code": env.Code, "desc": env.Desc}).Warn("payos request rejected")
		return fmt.Errorf("payos: %s %s: code %s: %s", method, path, env.Code, env.Desc)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("payos: decode data: %w", err)
		}
	}
	return nil
}
