package seed

import (
	"context"
	"fmt"

	"storefront/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// Products is the demo catalog.
func Products() []domain.Product {
	return []domain.Product{
		{
			ID:          "qianlun-watch",
			Name:        "QianLun Luxury Watch",
			Description: "Elegant luxury watch with premium materials and Swiss movement.",
			PriceCents:  299000,
			Image:       "/assets/images/products/QianLun Watch.jpg",
			Category:    "watch",
			Stock:       25,
		},
		{
			ID:          "qianlun-bag",
			Name:        "QianLun Designer Bag",
			Description: "Stylish designer bag made from genuine leather.",
			PriceCents:  450000,
			Image:       "/assets/images/products/QianLun Bag.jpg",
			Category:    "bag",
			Stock:       15,
		},
		{
			ID:          "qianlun-wallet",
			Name:        "QianLun Premium Wallet",
			Description: "Premium leather wallet with RFID protection.",
			PriceCents:  150000,
			Image:       "/assets/images/products/QianLun Wallet.jpg",
			Category:    "wallet",
			Stock:       40,
		},
		{
			ID:          "qianlun-shoes",
			Name:        "QianLun Running Shoes",
			Description: "Lightweight running shoes with responsive cushioning.",
			PriceCents:  350000,
			Image:       "/assets/images/products/QianLun Shoes.jpg",
			Category:    "shoes",
			Stock:       30,
		},
	}
}

// Apply upserts the demo catalog. Running it twice is harmless.
func Apply(ctx context.Context, repo ProductWriter) error {
	for _, p := range Products() {
		if _, err := repo.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	return nil
}
