package catalog

import (
	"context"
	"errors"
	"strings"
)

// Repository abstracts catalog persistence.
//
// Lookup is by normalized product name; the conversation layer works in
// product names, not ids.
type Repository interface {
	FindByName(ctx context.Context, name string) (Product, bool, error)
	ListActive(ctx context.Context) ([]Product, error)
}

var (
	ErrProductNotFound = errors.New("catalog: product not found")
	ErrInvalidQuantity = errors.New("catalog: quantity must be positive")
	ErrBelowMinimum    = errors.New("catalog: quantity below minimum order")
)

// Service answers pricing and recommendation questions for the agent.
//
// Contract:
// - Pure calculation + repository lookups; no provider calls.
// - Inactive products behave as absent.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Quote prices a requested quantity of a product, enforcing the minimum
// order size.
func (s *Service) Quote(ctx context.Context, name string, cases int) (Quote, error) {
	if cases <= 0 {
		return Quote{}, ErrInvalidQuantity
	}
	p, err := s.lookup(ctx, name)
	if err != nil {
		return Quote{}, err
	}
	if cases < p.MinCases {
		return Quote{}, ErrBelowMinimum
	}
	return Quote{
		Product:           p.Name,
		Cases:             cases,
		PricePerCaseMinor: p.PricePerCaseMinor,
		TotalMinor:        int64(cases) * p.PricePerCaseMinor,
	}, nil
}

// Related returns one active related product to suggest after the given
// product is ordered. Satisfies the orchestrator's recommender contract.
func (s *Service) Related(product string) (string, bool) {
	ctx := context.Background()
	p, err := s.lookup(ctx, product)
	if err != nil {
		return "", false
	}
	for _, name := range p.Related {
		if rel, err := s.lookup(ctx, name); err == nil {
			return rel.Name, true
		}
	}
	return "", false
}

// Products lists the active catalog, the shape the agent's system prompt is
// built from.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) lookup(ctx context.Context, name string) (Product, error) {
	p, ok, err := s.repo.FindByName(ctx, NormalizeName(name))
	if err != nil {
		return Product{}, err
	}
	if !ok || p.Status != ProductStatusActive {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

// NormalizeName canonicalizes a spoken product name for lookup.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
