package matcher

// Config holds matcher configuration
type Config struct {
	// FuzzyMinLength is the shortest name (in runes, after trimming) the
	// substring strategy will consider. Very short names match almost anything.
	FuzzyMinLength int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		FuzzyMinLength: 3,
	}
}

// Product is a local catalog entry that order lines can resolve to
type Product struct {
	ID           int64
	SKU          string
	InternalCode string // alternate code some catalogs carry instead of the SKU
	EAN          string
	Name         string
}

// Item is one order line as reported by the platform
type Item struct {
	SKU  string
	EAN  string
	Name string
}

// MatchResult contains match information
type MatchResult struct {
	Product    Product
	Strategy   string  // name of the strategy that matched
	Confidence float64 // 1.0 for identity matches, lower for fuzzy
}
