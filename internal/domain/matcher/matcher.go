// Package matcher resolves platform order lines to local products.
//
// Strategies are tried in order and the first match wins:
//   - SKU: item code equals the product SKU or its internal code
//   - EAN: item barcode equals the product EAN
//   - Name: case-insensitive equality of names
//   - Fuzzy: one name contains the other (last resort)
//
// The fuzzy strategy produces false positives with short or generic names.
// Callers that cannot tolerate that build a chain without it.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	result := m.FindMatch(item, products)
//	if result != nil {
//		productID := result.Product.ID
//	}
package matcher

import (
	"strings"
	"unicode/utf8"
)

// Strategy finds a product for an item, or reports no match
type Strategy interface {
	Name() string
	Match(item Item, products []Product) (Product, bool)
}

// Matcher runs a chain of strategies
type Matcher struct {
	strategies []Strategy
}

// NewMatcher creates a matcher with the default SKU, EAN, name, fuzzy chain
func NewMatcher(config Config) *Matcher {
	return NewChain(
		BySKU{},
		ByEAN{},
		ByExactName{},
		ByFuzzyName{MinLength: config.FuzzyMinLength},
	)
}

// NewChain creates a matcher from an explicit strategy list
func NewChain(strategies ...Strategy) *Matcher {
	return &Matcher{strategies: strategies}
}

// Strategies returns the strategy names in evaluation order
func (m *Matcher) Strategies() []string {
	names := make([]string, len(m.strategies))
	for i, s := range m.strategies {
		names[i] = s.Name()
	}
	return names
}

// FindMatch returns the first product any strategy accepts.
// Returns nil if no suitable match found.
func (m *Matcher) FindMatch(item Item, products []Product) *MatchResult {
	for _, s := range m.strategies {
		if p, ok := s.Match(item, products); ok {
			confidence := 1.0
			if _, fuzzy := s.(ByFuzzyName); fuzzy {
				confidence = 0.5
			}
			return &MatchResult{Product: p, Strategy: s.Name(), Confidence: confidence}
		}
	}
	return nil
}

// BySKU matches the item code against SKU or internal code
type BySKU struct{}

func (BySKU) Name() string { return "sku" }

func (BySKU) Match(item Item, products []Product) (Product, bool) {
	code := strings.TrimSpace(item.SKU)
	if code == "" {
		return Product{}, false
	}
	for _, p := range products {
		if p.SKU == code || (p.InternalCode != "" && p.InternalCode == code) {
			return p, true
		}
	}
	return Product{}, false
}

// ByEAN matches the item barcode
type ByEAN struct{}

func (ByEAN) Name() string { return "ean" }

func (ByEAN) Match(item Item, products []Product) (Product, bool) {
	ean := strings.TrimSpace(item.EAN)
	if ean == "" {
		return Product{}, false
	}
	for _, p := range products {
		if p.EAN != "" && p.EAN == ean {
			return p, true
		}
	}
	return Product{}, false
}

// ByExactName matches names ignoring case and surrounding whitespace
type ByExactName struct{}

func (ByExactName) Name() string { return "name" }

func (ByExactName) Match(item Item, products []Product) (Product, bool) {
	name := normalize(item.Name)
	if name == "" {
		return Product{}, false
	}
	for _, p := range products {
		if normalize(p.Name) == name {
			return p, true
		}
	}
	return Product{}, false
}

// ByFuzzyName matches when either name contains the other
type ByFuzzyName struct {
	MinLength int
}

func (ByFuzzyName) Name() string { return "fuzzy" }

func (f ByFuzzyName) Match(item Item, products []Product) (Product, bool) {
	name := normalize(item.Name)
	if !f.usable(name) {
		return Product{}, false
	}
	for _, p := range products {
		candidate := normalize(p.Name)
		if !f.usable(candidate) {
			continue
		}
		if strings.Contains(candidate, name) || strings.Contains(name, candidate) {
			return p, true
		}
	}
	return Product{}, false
}

func (f ByFuzzyName) usable(name string) bool {
	return name != "" && utf8.RuneCountInString(name) >= f.MinLength
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
