package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory catalog keyed by normalized product name.
// Suitable for tests and for running off the default seed catalog.

type MemoryRepo struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryRepo(products []Product) *MemoryRepo {
	r := &MemoryRepo{products: make(map[string]Product, len(products))}
	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = ProductStatusActive
		}
		r.products[NormalizeName(p.Name)] = p
	}
	return r
}

func (r *MemoryRepo) FindByName(ctx context.Context, name string) (Product, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[NormalizeName(name)]
	return p, ok, nil
}

func (r *MemoryRepo) ListActive(ctx context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		if p.Status == ProductStatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

// DefaultProducts is the hotel food-supplies seed catalog the agent sells
// from when no external catalog is configured.
func DefaultProducts() []Product {
	return []Product{
		{Name: "Bottled Water", Category: "beverages", PricePerCaseMinor: 2000, MinCases: 1, UnitsPerCase: 24, Related: []string{"Orange Juice"}},
		{Name: "Orange Juice", Category: "beverages", PricePerCaseMinor: 2400, MinCases: 1, UnitsPerCase: 12, Related: []string{"Bottled Water"}},
		{Name: "Coffee Packets", Category: "beverages", PricePerCaseMinor: 2600, MinCases: 1, UnitsPerCase: 100, Related: []string{"Banana Muffins"}},
		{Name: "Banana Muffins", Category: "bakery", PricePerCaseMinor: 2500, MinCases: 1, UnitsPerCase: 36, Related: []string{"Chocolate Muffins"}},
		{Name: "Chocolate Muffins", Category: "bakery", PricePerCaseMinor: 2700, MinCases: 1, UnitsPerCase: 36, Related: []string{"Banana Muffins"}},
		{Name: "Croissants", Category: "bakery", PricePerCaseMinor: 2800, MinCases: 1, UnitsPerCase: 48, Related: []string{"Assorted Pastries"}},
		{Name: "Assorted Pastries", Category: "bakery", PricePerCaseMinor: 3000, MinCases: 1, UnitsPerCase: 40, Related: []string{"Coffee Packets"}},
		{Name: "Bagels", Category: "bakery", PricePerCaseMinor: 2200, MinCases: 2, UnitsPerCase: 60, Related: []string{"Croissants"}},
	}
}
