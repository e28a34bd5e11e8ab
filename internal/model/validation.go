package model

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation codes surfaced to clients.  Handlers localize them.
const (
	CodeNameRequired  = "NAME_REQUIRED"
	CodeNameTooLong   = "NAME_TOO_LONG"
	CodeEmailInvalid  = "EMAIL_INVALID"
	CodeEmailTooLong  = "EMAIL_TOO_LONG"
	CodePhoneInvalid  = "PHONE_INVALID"
	CodeAmountInvalid = "AMOUNT_INVALID"
	CodeSeatInvalid   = "SEAT_INVALID"
	CodeTokenRequired = "HOLDER_TOKEN_REQUIRED"
	CodeTokenTooLong  = "HOLDER_TOKEN_TOO_LONG"
)

// Column widths in the schema.
const (
	maxNameLen  = 100
	maxEmailLen = 255
	maxTokenLen = 64
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Code)
}

// NormalizeCustomer trims the snapshot, lower-cases the email and strips
// separators from the phone number, then validates the result.
func NormalizeCustomer(c Customer) (Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "").Replace(strings.TrimSpace(c.Phone))

	if c.Name == "" {
		return c, &ValidationError{Field: "name", Code: CodeNameRequired}
	}
	if utf8.RuneCountInString(c.Name) > maxNameLen {
		return c, &ValidationError{Field: "name", Code: CodeNameTooLong}
	}
	if utf8.RuneCountInString(c.Email) > maxEmailLen {
		return c, &ValidationError{Field: "email", Code: CodeEmailTooLong}
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Address != c.Email {
		return c, &ValidationError{Field: "email", Code: CodeEmailInvalid}
	}
	if !phonePattern.MatchString(c.Phone) {
		return c, &ValidationError{Field: "phone", Code: CodePhoneInvalid}
	}
	return c, nil
}

// ValidateAmount rejects non-positive amounts.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Code: CodeAmountInvalid}
	}
	return nil
}

// ValidateSeatRequest checks the parameters every seat operation needs.
func ValidateSeatRequest(seatNumber int, holderToken string) error {
	if seatNumber <= 0 {
		return &ValidationError{Field: "seat_number", Code: CodeSeatInvalid}
	}
	if strings.TrimSpace(holderToken) == "" {
		return &ValidationError{Field: "holder_token", Code: CodeTokenRequired}
	}
	if utf8.RuneCountInString(holderToken) > maxTokenLen {
		return &ValidationError{Field: "holder_token", Code: CodeTokenTooLong}
	}
	return nil
}
