package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// sign returns the hex HMAC-SHA256 of payload under key.
func sign(key, payload string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// paymentRequestSignature signs the five fields the payment-requests
// endpoint checks, in the alphabetical order it expects.
func paymentRequestSignature(key string, amount int64, cancelURL, description string, orderCode int64, returnURL string) string {
	payload := "amount=" + strconv.FormatInt(amount, 10) +
		"&cancelUrl=" + cancelURL +
		"&description=" + description +
		"&orderCode=" + strconv.FormatInt(orderCode, 10) +
		"&returnUrl=" + returnURL
	return sign(key, payload)
}

// dataSignature signs a webhook data object: keys sorted, joined as
// key=value with '&', null rendered as the empty string.
func dataSignature(key string, data json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fieldString(fields[k]))
	}
	return sign(key, strings.Join(parts, "&")), nil
}

func fieldString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if t == "null" || t == "undefined" {
			return ""
		}
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func validSignature(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(got)))
}
