package domain

import "time"

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price"`
	Image       string    `json:"image,omitempty"`
	Category    string    `json:"category"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LineItem converts the product into a cart line with the given quantity.
func (p Product) LineItem(quantity int) CartLineItem {
	return CartLineItem{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.PriceCents,
		Image:    p.Image,
		Category: p.Category,
		Quantity: quantity,
	}
}
