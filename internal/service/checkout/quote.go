package checkout

import (
	"context"
	"fmt"

	"storefront/internal/pricing"
	"storefront/internal/service/analytics"
)

// Quote is the order summary recomputed whenever the checkout form changes.
type Quote struct {
	pricing.Result
	ItemCount         int                      `json:"itemCount"`
	EstimatedDelivery string                   `json:"estimatedDelivery"`
	ShippingOptions   []pricing.ShippingOption `json:"shippingOptions"`
}

// Quote prices the session's cart for the given shipping method and promo
// code. An empty method picks the default tier.
func (s *Service) Quote(ctx context.Context, session, shipping, promoCode string) (Quote, error) {
	method, err := pricing.ParseShippingMethod(shipping)
	if err != nil {
		return Quote{}, err
	}
	c := s.carts.Get(ctx, session)
	items := c.Items()
	res, err := s.policy.Calculate(pricing.Input{Items: items, Shipping: method, PromoCode: promoCode})
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Result:            res,
		ItemCount:         c.ItemCount(),
		EstimatedDelivery: pricing.EstimatedDelivery(res.Shipping, s.now()),
		ShippingOptions:   s.policy.Shipping.Available(res.Totals.Subtotal, s.policy.FreeShippingThreshold),
	}, nil
}

// PromoOutcome tells the customer what happened to an entered code.
type PromoOutcome struct {
	Code     string              `json:"code"`
	Status   pricing.PromoStatus `json:"status"`
	Discount int64               `json:"discount"`
	Message  string              `json:"message"`
}

// ApplyPromo checks code against the current cart subtotal.
func (s *Service) ApplyPromo(ctx context.Context, session, code string) (PromoOutcome, error) {
	normalized := pricing.NormalizeCode(code)
	out := PromoOutcome{Code: normalized, Status: pricing.PromoNone}
	if normalized == "" {
		out.Message = "enter a promo code"
		return out, nil
	}

	subtotal := pricing.Subtotal(s.carts.Get(ctx, session).Items())
	promo, ok := s.policy.Promos.Lookup(normalized)
	if !ok {
		out.Status = pricing.PromoUnknown
		out.Message = "invalid promo code"
		return out, nil
	}
	discount, applied := pricing.Discount(subtotal, promo)
	if !applied || discount == 0 {
		out.Status = pricing.PromoBelowMinimum
		out.Message = fmt.Sprintf("minimum purchase of %d required for %s", promo.MinPurchase, promo.Code)
		return out, nil
	}

	out.Status = pricing.PromoApplied
	out.Discount = discount
	out.Message = fmt.Sprintf("promo code %s applied", promo.Code)
	if s.tracker != nil {
		s.tracker.Track(ctx, session, analytics.EventApplyPromo, map[string]interface{}{
			"code":     promo.Code,
			"discount": discount,
		})
	}
	return out, nil
}
