package importer

import (
	"context"
	"strings"
	"testing"

	"storefront/internal/domain"
)

type stubProductRepo struct {
	items []domain.Product
}

func (s *stubProductRepo) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.items = append(s.items, p)
	return &p, nil
}

func TestCSVImporter_Run(t *testing.T) {
	csvData := `id,name,description,price,image,category,stock
watch-1,QianLun Luxury Watch,Swiss movement,299000,/img/watch.jpg,Watch,25
,,,,,,
bag-1,QianLun Designer Bag,,450000,/img/bag.jpg,bag,`

	repo := &stubProductRepo{}
	imp := NewCSVImporter(strings.NewReader(csvData), repo)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 2 || len(repo.items) != 2 {
		t.Fatalf("expected 2 products imported, got %d", count)
	}
	first := repo.items[0]
	if first.ID != "watch-1" || first.PriceCents != 299000 || first.Category != "watch" || first.Stock != 25 {
		t.Fatalf("unexpected product data: %+v", first)
	}
	if repo.items[1].Stock != 0 || repo.items[1].Description != "" {
		t.Fatalf("unexpected optional fields: %+v", repo.items[1])
	}
}

func TestCSVImporter_ColumnOrderIndependent(t *testing.T) {
	csvData := "price,Name,ID\n150000,Wallet,wallet-1\n"
	repo := &stubProductRepo{}
	count, err := NewCSVImporter(strings.NewReader(csvData), repo).Run(context.Background())
	if err != nil || count != 1 || repo.items[0].Name != "Wallet" {
		t.Fatalf("unexpected result %d %+v (%v)", count, repo.items, err)
	}
}

func TestCSVImporter_InvalidRows(t *testing.T) {
	cases := map[string]string{
		"missing column": "id,name\nx,y\n",
		"bad price":      "id,name,price\nx,y,abc\n",
		"negative price": "id,name,price\nx,y,-5\n",
		"missing name":   "id,name,price\nx,,5\n",
		"bad stock":      "id,name,price,stock\nx,y,5,many\n",
	}
	for name, data := range cases {
		repo := &stubProductRepo{}
		if _, err := NewCSVImporter(strings.NewReader(data), repo).Run(context.Background()); err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if len(repo.items) != 0 {
			t.Fatalf("%s: nothing should be written", name)
		}
	}
}
