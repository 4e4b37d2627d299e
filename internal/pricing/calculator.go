// Package pricing computes order totals in integer minor currency units.
//
// Discount is taken before tax: tax = round(taxBps * (subtotal - discount)).
// Free shipping is advisory: the free tier is only honored at or above the
// threshold, but a paid tier chosen above the threshold is kept.
package pricing

import (
	"fmt"

	"storefront/internal/domain"
)

// PromoStatus reports what happened to the promo code of an Input.
type PromoStatus string

const (
	PromoNone         PromoStatus = "none"
	PromoApplied      PromoStatus = "applied"
	PromoUnknown      PromoStatus = "unknown"
	PromoBelowMinimum PromoStatus = "below_minimum"
)

const (
	bpsDenominator      = 10000
	defaultTaxRateBps   = 1100
	defaultFreeShipping = 5000000
)

// Policy is the immutable pricing configuration.
type Policy struct {
	TaxRateBps            int64
	FreeShippingThreshold int64
	Shipping              ShippingTable
	Promos                PromoTable
}

// DefaultPolicy returns 11% tax, a 5,000,000 free-shipping threshold and the default tables.
func DefaultPolicy() Policy {
	return Policy{
		TaxRateBps:            defaultTaxRateBps,
		FreeShippingThreshold: defaultFreeShipping,
		Shipping:              DefaultShippingTable(),
		Promos:                DefaultPromoTable(),
	}
}

// Validate checks the tables for values the calculator cannot honor.
func (p Policy) Validate() error {
	if p.TaxRateBps < 0 {
		return fmt.Errorf("tax rate must not be negative")
	}
	if _, ok := p.Shipping[ShippingRegular]; !ok {
		return fmt.Errorf("shipping table needs a %q tier", ShippingRegular)
	}
	for code, promo := range p.Promos {
		if promo.DiscountBps < 0 || promo.DiscountBps > bpsDenominator {
			return fmt.Errorf("promo %s: discount must be within 0..100%%", code)
		}
		if promo.MaxDiscount < 0 || promo.MinPurchase < 0 {
			return fmt.Errorf("promo %s: amounts must not be negative", code)
		}
	}
	return nil
}

// Input is everything a total depends on.
type Input struct {
	Items     []domain.CartLineItem
	Shipping  ShippingMethod
	PromoCode string
}

// Result carries the totals plus the decisions that produced them.
type Result struct {
	Totals               domain.Totals  `json:"totals"`
	Shipping             ShippingOption `json:"shipping"`
	ShippingAdjusted     bool           `json:"shippingAdjusted"`
	PromoCode            string         `json:"promoCode,omitempty"`
	PromoStatus          PromoStatus    `json:"promoStatus"`
	FreeShippingEligible bool           `json:"freeShippingEligible"`
	AmountToFreeShipping int64          `json:"amountToFreeShipping"`
}

// Subtotal sums price times quantity over items.
func Subtotal(items []domain.CartLineItem) int64 {
	var total int64
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		total += it.LineTotal()
	}
	return total
}

// Discount applies promo to subtotal. The second return is false when the
// code is not applied (subtotal below the minimum purchase).
func Discount(subtotal int64, promo Promo) (int64, bool) {
	if subtotal < promo.MinPurchase {
		return 0, false
	}
	d := applyBps(subtotal, promo.DiscountBps)
	if d > promo.MaxDiscount {
		d = promo.MaxDiscount
	}
	if d > subtotal {
		d = subtotal
	}
	return d, true
}

// Tax rounds half-up to the nearest minor unit.
func Tax(taxableBase, rateBps int64) int64 {
	if taxableBase <= 0 {
		return 0
	}
	return applyBps(taxableBase, rateBps)
}

// FreeShippingEligible reports whether subtotal reaches the free-shipping threshold.
func (p Policy) FreeShippingEligible(subtotal int64) bool {
	return subtotal >= p.FreeShippingThreshold
}

// Calculate derives the totals of in. It fails only for shipping methods
// missing from the table.
func (p Policy) Calculate(in Input) (Result, error) {
	subtotal := Subtotal(in.Items)
	eligible := p.FreeShippingEligible(subtotal)

	res := Result{
		PromoStatus:          PromoNone,
		FreeShippingEligible: eligible,
	}
	if !eligible {
		res.AmountToFreeShipping = p.FreeShippingThreshold - subtotal
	}

	method := in.Shipping
	if method == "" {
		method = ShippingRegular
		if eligible {
			method = ShippingFree
		}
	}
	if method == ShippingFree && !eligible {
		method = ShippingRegular
		res.ShippingAdjusted = true
	}
	opt, err := p.Shipping.Lookup(method)
	if err != nil {
		return Result{}, err
	}
	res.Shipping = opt

	var discount int64
	if code := NormalizeCode(in.PromoCode); code != "" {
		promo, ok := p.Promos[code]
		switch {
		case !ok:
			res.PromoStatus = PromoUnknown
		default:
			d, applied := Discount(subtotal, promo)
			if applied && d > 0 {
				discount = d
				res.PromoCode = code
				res.PromoStatus = PromoApplied
			} else {
				res.PromoStatus = PromoBelowMinimum
			}
		}
	}

	taxable := subtotal - discount
	tax := Tax(taxable, p.TaxRateBps)
	res.Totals = domain.Totals{
		Subtotal:     subtotal,
		ShippingCost: opt.Cost,
		Tax:          tax,
		Discount:     discount,
		GrandTotal:   taxable + tax + opt.Cost,
	}
	return res, nil
}

func applyBps(amount, bps int64) int64 {
	return (amount*bps + bpsDenominator/2) / bpsDenominator
}
