package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownShipping is returned for a shipping method missing from the table.
var ErrUnknownShipping = errors.New("unknown shipping method")

// ShippingMethod is the typed key of the shipping table.
type ShippingMethod string

const (
	ShippingRegular ShippingMethod = "regular"
	ShippingExpress ShippingMethod = "express"
	ShippingSameDay ShippingMethod = "same_day"
	ShippingFree    ShippingMethod = "free"
)

// ParseShippingMethod normalizes user input ("Same Day", "SAME-DAY", "same_day") into a method.
func ParseShippingMethod(raw string) (ShippingMethod, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch ShippingMethod(s) {
	case ShippingRegular, ShippingExpress, ShippingSameDay, ShippingFree:
		return ShippingMethod(s), nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownShipping, raw)
}

// ShippingOption is one shipping tier: cost in minor units and the delivery window in days.
type ShippingOption struct {
	Method      ShippingMethod `json:"method"`
	Cost        int64          `json:"cost"`
	MinDays     int            `json:"minDays"`
	MaxDays     int            `json:"maxDays"`
	DisplayName string         `json:"displayName"`
}

// ShippingTable maps methods to their options.
type ShippingTable map[ShippingMethod]ShippingOption

// DefaultShippingTable returns the regular, express, same-day and free tiers.
func DefaultShippingTable() ShippingTable {
	return ShippingTable{
		ShippingRegular: {Method: ShippingRegular, Cost: 25000, MinDays: 5, MaxDays: 7, DisplayName: "Regular Delivery"},
		ShippingExpress: {Method: ShippingExpress, Cost: 50000, MinDays: 2, MaxDays: 3, DisplayName: "Express Delivery"},
		ShippingSameDay: {Method: ShippingSameDay, Cost: 75000, MinDays: 0, MaxDays: 0, DisplayName: "Same Day Delivery"},
		ShippingFree:    {Method: ShippingFree, Cost: 0, MinDays: 7, MaxDays: 14, DisplayName: "Free Shipping"},
	}
}

// Lookup returns the option for method.
func (t ShippingTable) Lookup(method ShippingMethod) (ShippingOption, error) {
	opt, ok := t[method]
	if !ok {
		return ShippingOption{}, fmt.Errorf("%w: %q", ErrUnknownShipping, method)
	}
	return opt, nil
}

// Available lists the options a customer may pick for the subtotal, cheapest first.
// The free tier is only listed when eligible.
func (t ShippingTable) Available(subtotal, threshold int64) []ShippingOption {
	out := make([]ShippingOption, 0, len(t))
	for m, opt := range t {
		if m == ShippingFree && subtotal < threshold {
			continue
		}
		out = append(out, opt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// EstimatedDelivery renders the delivery window for opt relative to now.
func EstimatedDelivery(opt ShippingOption, now time.Time) string {
	if opt.MinDays == 0 && opt.MaxDays == 0 {
		return "Today"
	}
	from := now.AddDate(0, 0, opt.MinDays)
	if opt.MinDays == opt.MaxDays {
		return from.Format("Monday, 2 January 2006")
	}
	to := now.AddDate(0, 0, opt.MaxDays)
	return from.Format("2 Jan") + " - " + to.Format("2 Jan")
}

// Promo is a discount rule keyed by a user-entered code.
// DiscountBps is the discount fraction in basis points (1000 = 10%).
type Promo struct {
	Code        string `json:"code"`
	DiscountBps int64  `json:"discountBps"`
	MinPurchase int64  `json:"minPurchase"`
	MaxDiscount int64  `json:"maxDiscount"`
}

// PromoTable maps normalized codes to promos.
type PromoTable map[string]Promo

// DefaultPromoTable returns the storefront promo codes.
func DefaultPromoTable() PromoTable {
	promos := []Promo{
		{Code: "WELCOME10", DiscountBps: 1000, MinPurchase: 0, MaxDiscount: 500000},
		{Code: "DRAGON20", DiscountBps: 2000, MinPurchase: 1000000, MaxDiscount: 1000000},
		{Code: "QIANLUN15", DiscountBps: 1500, MinPurchase: 500000, MaxDiscount: 750000},
		{Code: "LUXURY25", DiscountBps: 2500, MinPurchase: 2000000, MaxDiscount: 2000000},
		{Code: "NEWYEAR30", DiscountBps: 3000, MinPurchase: 3000000, MaxDiscount: 3000000},
	}
	t := make(PromoTable, len(promos))
	for _, p := range promos {
		t[p.Code] = p
	}
	return t
}

// NormalizeCode trims and upper-cases a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Lookup normalizes code and returns its promo.
func (t PromoTable) Lookup(code string) (Promo, bool) {
	p, ok := t[NormalizeCode(code)]
	return p, ok
}

// PaymentMethod is the typed payment selection of the checkout form.
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "creditCard"
	PaymentBankTransfer PaymentMethod = "bankTransfer"
	PaymentEWallet      PaymentMethod = "ewallet"
	PaymentCOD          PaymentMethod = "cod"
)

// PaymentOption describes a payment method and its fee.
type PaymentOption struct {
	Method      PaymentMethod `json:"method"`
	DisplayName string        `json:"displayName"`
	Fee         int64         `json:"fee"`
}

var paymentOptions = map[PaymentMethod]PaymentOption{
	PaymentCreditCard:   {Method: PaymentCreditCard, DisplayName: "Credit Card"},
	PaymentBankTransfer: {Method: PaymentBankTransfer, DisplayName: "Bank Transfer"},
	PaymentEWallet:      {Method: PaymentEWallet, DisplayName: "E-Wallet"},
	PaymentCOD:          {Method: PaymentCOD, DisplayName: "Cash on Delivery", Fee: 10000},
}

// LookupPayment resolves a payment method case-insensitively.
func LookupPayment(raw string) (PaymentOption, bool) {
	s := strings.TrimSpace(raw)
	for m, opt := range paymentOptions {
		if strings.EqualFold(string(m), s) {
			return opt, true
		}
	}
	return PaymentOption{}, false
}
