package matching

import "github.com/mkravets/priceport/internal/domain/catalog"

// Config tunes one matching run. Operations carry tighter thresholds than
// materials: operation names are short and formulaic, so fuzzy scores are
// both higher and less trustworthy.
type Config struct {
	// FuzzyFloor is the minimum combined similarity for a candidate to enter
	// the pool at all.
	FuzzyFloor float64
	// AutoAccept is the combined similarity above which the top candidate is
	// linked without human review.
	AutoAccept float64
	// TopK caps how many ranked candidates are kept for manual resolution.
	TopK int
}

// DefaultConfig returns the tuned thresholds for one item kind.
func DefaultConfig(kind catalog.ItemKind) Config {
	if kind == catalog.KindOperations {
		return Config{FuzzyFloor: 0.4, AutoAccept: 0.85, TopK: 10}
	}
	return Config{FuzzyFloor: 0.3, AutoAccept: 0.7, TopK: 10}
}
