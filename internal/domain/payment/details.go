package payment

import (
	"fmt"
	"strings"

	"github.com/xenking/ecomify/internal/domain/failure"
)

// Method is the payment instrument.
type Method int

const (
	MethodCreditCard Method = iota + 1
	MethodPayPal
)

func (m Method) String() string {
	switch m {
	case MethodCreditCard:
		return "credit_card"
	case MethodPayPal:
		return "paypal"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod parses the name returned by Method.String.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit_card":
		return MethodCreditCard, nil
	case "paypal":
		return MethodPayPal, nil
	default:
		return 0, failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
			failure.FieldError{Field: "method", Message: "unknown method " + s})
	}
}

// Details are the method-specific attributes of a payment. The set of
// implementations is closed: CreditCardDetails and PayPalDetails.
type Details interface {
	Method() Method
	validate(f *failure.Fields)
}

// CreditCardDetails describe a card payment.
type CreditCardDetails struct {
	LastFourDigits string
	CardBrand      string
}

func (CreditCardDetails) Method() Method { return MethodCreditCard }

// PayPalDetails describe a PayPal payment.
type PayPalDetails struct {
	Email   string
	PayerID string
}

func (PayPalDetails) Method() Method { return MethodPayPal }

// MatchDetails calls the handler for the concrete type of d.
func MatchDetails[T any](d Details, onCard func(CreditCardDetails) T, onPayPal func(PayPalDetails) T) T {
	switch v := d.(type) {
	case CreditCardDetails:
		return onCard(v)
	case PayPalDetails:
		return onPayPal(v)
	default:
		panic(fmt.Sprintf("payment: unexpected details %T", d))
	}
}

func (d CreditCardDetails) validate(f *failure.Fields) {
	f.Check(isDigits(d.LastFourDigits, 4), "last_four_digits", "must be exactly 4 digits")
	f.Check(strings.TrimSpace(d.CardBrand) != "", "card_brand", "required")
}

func (d PayPalDetails) validate(f *failure.Fields) {
	at := strings.IndexByte(d.Email, '@')
	f.Check(at > 0 && at < len(d.Email)-1, "email", "must be a valid email")
	f.Check(strings.TrimSpace(d.PayerID) != "", "payer_id", "required")
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
