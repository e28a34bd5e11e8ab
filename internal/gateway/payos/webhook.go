package payos

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iliyamo/workshop-seat-booking/internal/gateway"
	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

type webhookBody struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   *bool           `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type webhookData struct {
	OrderCode int64  `json:"orderCode"`
	Code      string `json:"code"`
	Desc      string `json:"desc"`
	Status    string `json:"status"`
}

// ParseWebhook verifies the body's signature against the checksum key and
// reduces it to an order code and an outcome.
func (c *Client) ParseWebhook(body []byte) (*gateway.Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	if len(wb.Data) == 0 || string(wb.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", gateway.ErrMalformedPayload)
	}
	expected, err := dataSignature(c.cfg.ChecksumKey, wb.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	if wb.Signature == "" || !validSignature(expected, wb.Signature) {
		return nil, gateway.ErrInvalidSignature
	}

	var d webhookData
	if err := json.Unmarshal(wb.Data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	if d.OrderCode <= 0 {
		return nil, fmt.Errorf("%w: missing orderCode", gateway.ErrMalformedPayload)
	}
	outcome, err := outcomeOf(wb, d)
	if err != nil {
		return nil, err
	}
	return &gateway.Event{OrderCode: d.OrderCode, Outcome: outcome, Raw: body}, nil
}

// outcomeOf maps the provider's status fields onto a canonical outcome.
// Explicit cancel or expiry markers win over the transport-level code.
func outcomeOf(wb webhookBody, d webhookData) (model.Outcome, error) {
	for _, s := range []string{d.Status, d.Desc, wb.Desc} {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "cancelled", "canceled":
			return model.OutcomeCancelled, nil
		case "expired":
			return model.OutcomeExpired, nil
		}
	}
	if wb.Success != nil && !*wb.Success {
		return "", fmt.Errorf("%w: code=%s desc=%s", gateway.ErrUnknownOutcome, wb.Code, wb.Desc)
	}
	if wb.Code == successCode && (d.Code == "" || d.Code == successCode) {
		return model.OutcomePaid, nil
	}
	if strings.EqualFold(strings.TrimSpace(wb.Desc), "success") || strings.EqualFold(d.Status, "PAID") {
		return model.OutcomePaid, nil
	}
	return "", fmt.Errorf("%w: code=%s desc=%s", gateway.ErrUnknownOutcome, wb.Code, wb.Desc)
}
