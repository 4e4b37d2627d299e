package domain

// CartLineItem is one product entry in a cart. Price is in minor currency units.
type CartLineItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Image    string `json:"image,omitempty"`
	Category string `json:"category,omitempty"`
	Quantity int    `json:"quantity"`
}

// LineTotal returns price times quantity.
func (l CartLineItem) LineTotal() int64 {
	return l.Price * int64(l.Quantity)
}

// CartEvent names what happened to a cart.
type CartEvent string

const (
	// EventCartUpdated fires after a local mutation.
	EventCartUpdated CartEvent = "cart-updated"
	// EventCartSynced fires after state was reloaded because another instance wrote it.
	EventCartSynced CartEvent = "cart-synced"
	// EventStorageError fires when a mutation could not be persisted.
	EventStorageError CartEvent = "storage-error"
)
