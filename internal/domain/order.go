package domain

import "time"

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
)

// CustomerInfo is the contact block of the checkout form.
type CustomerInfo struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

type ShippingInfo struct {
	Method            string `json:"method"`
	MethodName        string `json:"methodName"`
	Cost              int64  `json:"cost"`
	EstimatedDelivery string `json:"estimatedDelivery"`
}

// PaymentInfo never holds a full card number, only the last four digits.
type PaymentInfo struct {
	Method        string `json:"method"`
	MethodName    string `json:"methodName"`
	Fee           int64  `json:"fee,omitempty"`
	CardLastFour  string `json:"cardLastFour,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

type Totals struct {
	Subtotal     int64 `json:"subtotal"`
	ShippingCost int64 `json:"shippingCost"`
	Tax          int64 `json:"tax"`
	Discount     int64 `json:"discount"`
	GrandTotal   int64 `json:"grandTotal"`
}

// OrderRecord is an immutable snapshot taken when an order is placed.
type OrderRecord struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Timestamp      time.Time      `json:"timestamp"`
	Items          []CartLineItem `json:"items"`
	Customer       CustomerInfo   `json:"customerInfo"`
	Shipping       ShippingInfo   `json:"shipping"`
	Payment        PaymentInfo    `json:"payment"`
	PromoCode      string         `json:"promoCode,omitempty"`
	Totals         Totals         `json:"totals"`
	Status         string         `json:"status"`
}

// OrderSummary is what the confirmation view reads from last_order.
type OrderSummary struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ItemCount  int       `json:"itemCount"`
	GrandTotal int64     `json:"grandTotal"`
	Status     string    `json:"status"`
}

// Summary derives the confirmation summary of the record.
func (o OrderRecord) Summary() OrderSummary {
	count := 0
	for _, it := range o.Items {
		count += it.Quantity
	}
	return OrderSummary{
		ID:         o.ID,
		Timestamp:  o.Timestamp,
		ItemCount:  count,
		GrandTotal: o.Totals.GrandTotal,
		Status:     o.Status,
	}
}

// AnalyticsEvent is one deferred telemetry entry.
type AnalyticsEvent struct {
	Event     string                 `json:"event"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
