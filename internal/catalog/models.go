package catalog

// Catalog models for the products the agent sells. Amounts are expressed in
// minor units (cents) using int64.

// Product is one sellable catalog entry, priced per case.
type Product struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	Category string `json:"category" db:"category"`

	// PricePerCaseMinor is the standard per-case price in cents. The agent
	// may quote within the configured discount margin but never below it.
	PricePerCaseMinor int64 `json:"price_per_case_minor" db:"price_per_case_minor"`

	// MinCases is the minimum order quantity for this product.
	MinCases int `json:"min_cases" db:"min_cases"`

	UnitsPerCase int `json:"units_per_case" db:"units_per_case"`

	// Related lists product names to suggest alongside this one.
	Related []string `json:"related,omitempty"`

	Status ProductStatus `json:"status" db:"status"`
}

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Quote is a priced order line for a requested quantity.
type Quote struct {
	Product           string `json:"product"`
	Cases             int    `json:"cases"`
	PricePerCaseMinor int64  `json:"price_per_case_minor"`
	TotalMinor        int64  `json:"total_minor"`
}
