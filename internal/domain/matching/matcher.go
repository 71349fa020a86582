package matching

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mkravets/priceport/internal/domain/catalog"
	"github.com/mkravets/priceport/internal/domain/textnorm"
)

// Method records which stage of the cascade produced a match.
type Method string

const (
	MethodAliasSKU  Method = "alias_sku"
	MethodAliasName Method = "alias_name"
	MethodExact     Method = "exact"
	MethodFuzzyAuto Method = "fuzzy_auto"
	MethodNone      Method = "none"
)

// Input is one price-list row presented to the cascade.
type Input struct {
	SupplierID uuid.UUID
	Kind       catalog.ItemKind
	RawName    string
	// SKU is the supplier's article code, empty when the sheet has none.
	SKU   string
	Scope catalog.Scope
}

// Candidate is one ranked fuzzy candidate.
type Candidate struct {
	Item  catalog.Item
	Score float64
}

// Result is the cascade outcome. Exactly one of three shapes comes back:
// Item set (matched), Item nil with Candidates (ambiguous, needs a human),
// or neither (new item).
type Result struct {
	NormalizedName string
	Method         Method
	Score          float64
	Item           *catalog.Item
	Alias          *catalog.Alias
	Candidates     []Candidate
}

// Matched reports whether the cascade settled on a single item.
func (r *Result) Matched() bool { return r.Item != nil }

// Ambiguous reports whether the row needs manual resolution.
func (r *Result) Ambiguous() bool { return r.Item == nil && len(r.Candidates) > 0 }

// Matcher runs the alias, exact and fuzzy stages against the catalog.
// The zero value is not usable; construct with NewMatcher.
type Matcher struct {
	reader catalog.Reader
	guard  *Guard
	config func(catalog.ItemKind) Config
}

// NewMatcher builds a matcher over a catalog reader with default thresholds.
func NewMatcher(reader catalog.Reader) *Matcher {
	return &Matcher{reader: reader, guard: NewGuard(), config: DefaultConfig}
}

// WithConfig overrides per-kind thresholds, for tests and tuning.
func (m *Matcher) WithConfig(fn func(catalog.ItemKind) Config) *Matcher {
	m.config = fn
	return m
}

// Match runs the cascade for one row. Stages short-circuit in order of
// trustworthiness: a learned alias beats an exact name match beats fuzzy
// similarity. Fuzzy candidates that fail the semantic guard are discarded
// before ranking, whatever their string score.
func (m *Matcher) Match(ctx context.Context, in Input) (*Result, error) {
	normalized := textnorm.Normalize(in.RawName)
	res := &Result{NormalizedName: normalized, Method: MethodNone}
	if normalized == "" {
		return res, nil
	}

	item, alias, method, err := m.trustedAlias(ctx, in, normalized)
	if err != nil {
		return nil, err
	}
	if item != nil {
		res.Method = method
		res.Score = 1
		res.Item = item
		res.Alias = alias
		return res, nil
	}

	item, err = m.reader.ItemByNormalizedName(ctx, in.Kind, normalized, in.Scope)
	if err != nil {
		return nil, err
	}
	if item != nil {
		res.Method = MethodExact
		res.Score = 1
		res.Item = item
		return res, nil
	}

	return m.matchFuzzy(ctx, in, res)
}

// trustedAlias walks the alias stages in trust order: supplier SKU first,
// then the normalized-name hash. A dangling alias or one whose target fails
// the guard is distrusted; the next stage still gets its chance.
func (m *Matcher) trustedAlias(ctx context.Context, in Input, normalized string) (*catalog.Item, *catalog.Alias, Method, error) {
	type stage struct {
		key    string
		method Method
	}
	var stages []stage
	if in.SKU != "" {
		stages = append(stages, stage{SKUKey(in.SKU), MethodAliasSKU})
	}
	stages = append(stages, stage{NameKeyFor(normalized), MethodAliasName})

	for _, st := range stages {
		alias, err := m.reader.AliasByKey(ctx, in.SupplierID, st.key, in.Kind)
		if err != nil {
			return nil, nil, MethodNone, fmt.Errorf("alias by %s: %w", st.method, err)
		}
		if alias == nil {
			continue
		}
		item, err := m.reader.ItemByID(ctx, alias.Item.Kind, alias.Item.ID)
		if err != nil {
			return nil, nil, MethodNone, err
		}
		if item == nil || !m.guard.Consistent(normalized, item.NormalizedName) {
			continue
		}
		return item, alias, st.method, nil
	}
	return nil, nil, MethodNone, nil
}

func (m *Matcher) matchFuzzy(ctx context.Context, in Input, res *Result) (*Result, error) {
	cfg := m.config(in.Kind)

	// The store's floor is a coarse pre-filter; pull a wider pool and
	// re-score with the combined metric before ranking.
	pool, err := m.reader.SimilarItems(ctx, in.Kind, res.NormalizedName, cfg.FuzzyFloor/2, cfg.TopK*3, in.Scope)
	if err != nil {
		return nil, fmt.Errorf("similar items: %w", err)
	}

	var candidates []Candidate
	for _, it := range pool {
		if !m.guard.Consistent(res.NormalizedName, it.NormalizedName) {
			continue
		}
		score := textnorm.CombinedSimilarity(res.NormalizedName, it.NormalizedName)
		if score < cfg.FuzzyFloor {
			continue
		}
		candidates = append(candidates, Candidate{Item: it, Score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > cfg.TopK {
		candidates = candidates[:cfg.TopK]
	}

	if len(candidates) == 0 {
		return res, nil
	}

	res.Score = candidates[0].Score
	res.Candidates = candidates
	if candidates[0].Score >= cfg.AutoAccept {
		res.Method = MethodFuzzyAuto
		top := candidates[0].Item
		res.Item = &top
		// Audit keeps the single winning candidate for auto matches.
		res.Candidates = candidates[:1]
	}
	return res, nil
}

// SKUKey is the alias key form for a supplier article code.
func SKUKey(sku string) string {
	return "sku:" + textnorm.Normalize(sku)
}

// NameKeyFor is the alias key form for a normalized name.
func NameKeyFor(normalized string) string {
	return "name:" + textnorm.NameKey(normalized)
}
