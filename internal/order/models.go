package order

// Order models for a single call. Amounts are expressed in minor units
// (cents) using int64.
//
// Money invariant: line and order totals are always recomputed from their
// inputs, never trusted from a stored value after mutation.

// LineItem is one confirmed order line.
type LineItem struct {
	Product string `json:"product"`
	// Quantity is the number of cases; always positive.
	Quantity int `json:"quantity"`
	// PricePerCaseMinor is the per-case price in cents.
	PricePerCaseMinor int64 `json:"price_per_case_minor"`
	// TotalMinor is Quantity × PricePerCaseMinor; derived, see Recompute.
	TotalMinor int64 `json:"total_minor"`
}

// Recompute refreshes the derived line total.
func (li *LineItem) Recompute() {
	li.TotalMinor = int64(li.Quantity) * li.PricePerCaseMinor
}

// maxRecommended bounds the recommendation list; the oldest entry is
// evicted first.
const maxRecommended = 3

// State is the running order extracted over the course of a call.
type State struct {
	CustomerName string `json:"customer_name,omitempty"`
	HotelName    string `json:"hotel_name,omitempty"`

	Products []LineItem `json:"products"`

	// TotalMinor is the sum of line totals; derived, see Recompute.
	TotalMinor int64 `json:"total_minor"`

	RecommendedProducts []string `json:"recommended_products,omitempty"`
}

// AddItem appends a line item and recomputes totals.
func (s *State) AddItem(item LineItem) {
	item.Recompute()
	s.Products = append(s.Products, item)
	s.Recompute()
}

// Recompute refreshes every derived total from its inputs.
func (s *State) Recompute() {
	var total int64
	for i := range s.Products {
		s.Products[i].Recompute()
		total += s.Products[i].TotalMinor
	}
	s.TotalMinor = total
}

// AddRecommendation records a product suggested to the customer, evicting
// the oldest once three are held.
func (s *State) AddRecommendation(product string) {
	if product == "" {
		return
	}
	s.RecommendedProducts = append(s.RecommendedProducts, product)
	if len(s.RecommendedProducts) > maxRecommended {
		s.RecommendedProducts = s.RecommendedProducts[1:]
	}
}
