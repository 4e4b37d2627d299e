package validation

import (
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/pricing"
)

// Field identifies a checkout form input.
type Field string

const (
	FieldFullName   Field = "fullName"
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone"
	FieldAddress    Field = "address"
	FieldCity       Field = "city"
	FieldPostalCode Field = "postalCode"
	FieldShipping   Field = "shipping"
	FieldPayment    Field = "payment"
	FieldCardNumber Field = "cardNumber"
	FieldExpiry     Field = "expiryDate"
	FieldCVV        Field = "cvv"
)

const msgRequired = "this field is required"

// Form is the submitted checkout form.
type Form struct {
	Customer       domain.CustomerInfo `json:"customer"`
	ShippingMethod string              `json:"shippingMethod"`
	PaymentMethod  string              `json:"paymentMethod"`
	CardNumber     string              `json:"cardNumber,omitempty"`
	ExpiryDate     string              `json:"expiryDate,omitempty"`
	CVV            string              `json:"cvv,omitempty"`
}

// FieldError is one failed field with a user-facing message.
type FieldError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

// Error is returned when a form has at least one invalid visible field.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, string(f.Field))
	}
	return "invalid checkout form: " + strings.Join(names, ", ")
}

// Result collects every field failure in form order.
type Result struct {
	Errors []FieldError `json:"errors"`
}

func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// FirstInvalid names the field the caller should focus.
func (r Result) FirstInvalid() (Field, bool) {
	if len(r.Errors) == 0 {
		return "", false
	}
	return r.Errors[0].Field, true
}

// Err returns nil for a valid result and *Error otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &Error{Fields: r.Errors}
}

type rule struct {
	field   Field
	value   func(Form) string
	visible func(Form) bool
	check   func(string, time.Time) bool
	message string
}

func always(Form) bool { return true }

func cardVisible(f Form) bool {
	opt, ok := pricing.LookupPayment(f.PaymentMethod)
	return ok && opt.Method == pricing.PaymentCreditCard
}

func plain(fn func(string) bool) func(string, time.Time) bool {
	return func(v string, _ time.Time) bool { return fn(v) }
}

var rules = []rule{
	{FieldFullName, func(f Form) string { return f.Customer.FullName }, always, plain(FullName), "name must be at least 3 characters"},
	{FieldEmail, func(f Form) string { return f.Customer.Email }, always, plain(Email), "invalid email format (example: name@email.com)"},
	{FieldPhone, func(f Form) string { return f.Customer.Phone }, always, plain(Phone), "invalid phone number (example: 08123456789)"},
	{FieldAddress, func(f Form) string { return f.Customer.Address }, always, plain(Address), "address must be at least 10 characters"},
	{FieldCity, func(f Form) string { return f.Customer.City }, always, plain(Required), msgRequired},
	{FieldPostalCode, func(f Form) string { return f.Customer.PostalCode }, always, plain(PostalCode), "postal code must be 5 digits"},
	{FieldShipping, func(f Form) string { return f.ShippingMethod }, always, plain(validShipping), "please choose a shipping method"},
	{FieldPayment, func(f Form) string { return f.PaymentMethod }, always, plain(validPayment), "please choose a payment method"},
	{FieldCardNumber, func(f Form) string { return f.CardNumber }, cardVisible, plain(CardNumber), "invalid card number"},
	{FieldExpiry, func(f Form) string { return f.ExpiryDate }, cardVisible, Expiry, "format MM/YY and must be in the future"},
	{FieldCVV, func(f Form) string { return f.CVV }, cardVisible, plain(CVV), "CVV must be 3-4 digits"},
}

func validShipping(v string) bool {
	m, err := pricing.ParseShippingMethod(v)
	return err == nil && m != ""
}

func validPayment(v string) bool {
	_, ok := pricing.LookupPayment(v)
	return ok
}

// ValidateForm checks every visible field of f. Hidden fields (card inputs
// when another payment method is selected) are exempt.
func ValidateForm(f Form, now time.Time) Result {
	var res Result
	for _, r := range rules {
		if !r.visible(f) {
			continue
		}
		if msg, ok := checkRule(r, f, now); !ok {
			res.Errors = append(res.Errors, FieldError{Field: r.field, Message: msg})
		}
	}
	return res
}

// ValidateField checks a single field as if it were visible. It returns the
// message and false when invalid; unknown fields only get the required check.
func ValidateField(field Field, value string, now time.Time) (string, bool) {
	for _, r := range rules {
		if r.field != field {
			continue
		}
		f := Form{}
		return checkRule(rule{field: r.field, value: func(Form) string { return value }, check: r.check, message: r.message}, f, now)
	}
	if !Required(value) {
		return msgRequired, false
	}
	return "", true
}

func checkRule(r rule, f Form, now time.Time) (string, bool) {
	v := r.value(f)
	if !Required(v) {
		return msgRequired, false
	}
	if !r.check(v, now) {
		return r.message, false
	}
	return "", true
}
