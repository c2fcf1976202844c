package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() []Product {
	return []Product{
		{ID: 1, SKU: "CAM-001", InternalCode: "7001", EAN: "7891234567895", Name: "Camiseta Básica Preta"},
		{ID: 2, SKU: "CAN-010", EAN: "7890000000017", Name: "Caneca Porcelana"},
		{ID: 3, SKU: "BON-5", Name: "Boné"},
		{ID: 4, SKU: "MOU-77", Name: "Mouse sem fio"},
	}
}

func TestMatcher_SKU(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	result := m.FindMatch(Item{SKU: "CAN-010", Name: "whatever"}, catalog())

	require.NotNil(t, result)
	assert.Equal(t, int64(2), result.Product.ID)
	assert.Equal(t, "sku", result.Strategy)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestMatcher_InternalCode(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	result := m.FindMatch(Item{SKU: "7001"}, catalog())

	require.NotNil(t, result)
	assert.Equal(t, int64(1), result.Product.ID)
}

func TestMatcher_EANWhenSKUUnknown(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	result := m.FindMatch(Item{SKU: "UNKNOWN", EAN: "7890000000017"}, catalog())

	require.NotNil(t, result)
	assert.Equal(t, int64(2), result.Product.ID)
	assert.Equal(t, "ean", result.Strategy)
}

func TestMatcher_ExactNameIgnoresCase(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	result := m.FindMatch(Item{Name: "  mouse SEM fio "}, catalog())

	require.NotNil(t, result)
	assert.Equal(t, int64(4), result.Product.ID)
	assert.Equal(t, "name", result.Strategy)
}

func TestMatcher_FuzzyBothDirections(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	// item name contains product name
	result := m.FindMatch(Item{Name: "Caneca Porcelana 300ml Branca"}, catalog())
	require.NotNil(t, result)
	assert.Equal(t, int64(2), result.Product.ID)
	assert.Equal(t, "fuzzy", result.Strategy)
	assert.Less(t, result.Confidence, 1.0)

	// product name contains item name
	result = m.FindMatch(Item{Name: "camiseta básica"}, catalog())
	require.NotNil(t, result)
	assert.Equal(t, int64(1), result.Product.ID)
}

func TestMatcher_FuzzySkipsShortNames(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	// "Boné" is long enough to be considered, "ca" is not
	assert.Nil(t, m.FindMatch(Item{Name: "ca"}, catalog()))
}

func TestMatcher_PriorityOrder(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	// SKU points to product 1, name points to product 4: SKU wins
	result := m.FindMatch(Item{SKU: "CAM-001", Name: "Mouse sem fio"}, catalog())

	require.NotNil(t, result)
	assert.Equal(t, int64(1), result.Product.ID)
}

func TestMatcher_NoMatch(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	assert.Nil(t, m.FindMatch(Item{SKU: "X", EAN: "Y", Name: "Teclado"}, catalog()))
	assert.Nil(t, m.FindMatch(Item{}, catalog()))
	assert.Nil(t, m.FindMatch(Item{SKU: "CAM-001"}, nil))
}

func TestNewChain_WithoutFuzzy(t *testing.T) {
	m := NewChain(BySKU{}, ByEAN{}, ByExactName{})

	assert.Equal(t, []string{"sku", "ean", "name"}, m.Strategies())
	assert.Nil(t, m.FindMatch(Item{Name: "Caneca Porcelana 300ml"}, catalog()))
}

func TestDefaultChainOrder(t *testing.T) {
	assert.Equal(t, []string{"sku", "ean", "name", "fuzzy"}, NewMatcher(DefaultConfig()).Strategies())
}
