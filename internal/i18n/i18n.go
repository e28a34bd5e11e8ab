// Package i18n localizes client-facing error messages.  Vietnamese is the
// default; English is served when the client asks for it.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supported = []language.Tag{language.Vietnamese, language.English}

var matcher = language.NewMatcher(supported)

var messages = map[string][2]string{ // code -> {vi, en}
	"SEAT_BOOKED":           {"Ghế này đã có người đặt. Vui lòng chọn ghế khác.", "This seat is already booked. Please pick another seat."},
	"SEAT_HELD_BY_OTHER":    {"Ghế này đang được người khác giữ. Vui lòng chọn ghế khác.", "Someone else is holding this seat. Please pick another seat."},
	"SEAT_NOT_FOUND":        {"Không tìm thấy ghế.", "Seat not found."},
	"SEAT_NOT_HELD":         {"Bạn không còn giữ ghế này. Vui lòng chọn lại ghế.", "You no longer hold this seat. Please select it again."},
	"DUPLICATE_CONTACT":     {"Email hoặc số điện thoại này đã đăng ký thành công trước đó.", "This email or phone number already has a paid booking."},
	"CHECKOUT_UNAVAILABLE":  {"Hệ thống thanh toán đang bận. Vui lòng thử lại sau ít phút.", "Checkout is temporarily unavailable. Please try again shortly."},
	"INTENT_SUPERSEDED":     {"Yêu cầu thanh toán này đã được thay bằng yêu cầu mới hơn.", "This payment request was replaced by a newer one."},
	"INTENT_NOT_FOUND":      {"Không tìm thấy yêu cầu thanh toán.", "Payment request not found."},
	"RESERVATION_NOT_FOUND": {"Không tìm thấy đăng ký.", "Reservation not found."},
	"ALREADY_VOIDED":        {"Đăng ký này đã bị huỷ.", "This reservation was already voided."},
	"NAME_REQUIRED":         {"Vui lòng nhập họ tên.", "Please enter your name."},
	"NAME_TOO_LONG":         {"Họ tên quá dài.", "Name is too long."},
	"EMAIL_INVALID":         {"Email không hợp lệ.", "Email address is invalid."},
	"EMAIL_TOO_LONG":        {"Email quá dài.", "Email address is too long."},
	"PHONE_INVALID":         {"Số điện thoại không hợp lệ.", "Phone number is invalid."},
	"AMOUNT_INVALID":        {"Số tiền phải lớn hơn 0.", "Amount must be greater than zero."},
	"SEAT_INVALID":          {"Số ghế không hợp lệ.", "Seat number is invalid."},
	"HOLDER_TOKEN_REQUIRED": {"Thiếu mã phiên giữ ghế.", "Holder token is required."},
	"HOLDER_TOKEN_TOO_LONG": {"Mã phiên giữ ghế không hợp lệ.", "Holder token is too long."},
	"INVALID_BODY":          {"Dữ liệu gửi lên không hợp lệ.", "Request body is invalid."},
	"INTERNAL":              {"Đã có lỗi xảy ra. Vui lòng thử lại.", "Something went wrong. Please try again."},
}

var cat = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.Vietnamese))
	for code, text := range messages {
		_ = b.SetString(language.Vietnamese, code, text[0])
		_ = b.SetString(language.English, code, text[1])
	}
	return b
}

// Negotiate picks the best supported language for an Accept-Language header.
func Negotiate(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.Vietnamese
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Message returns the localized text for code.  Unknown codes fall back to
// the generic internal error text.
func Message(tag language.Tag, code string) string {
	if _, ok := messages[code]; !ok {
		code = "INTERNAL"
	}
	return message.NewPrinter(tag, message.Catalog(cat)).Sprintf(code)
}
