package matching

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// markerGroups are families of substrings that flip the meaning of a name.
// Two names that disagree on any group are different things no matter how
// close their spelling is: "порезка ЛДСП" must never fuzzy-link to
// "кромкование ЛДСП".
var markerGroups = [][]string{
	{"порезк", "распил", "раскрой"},
	{"кромк", "кромлен"},
	{"криволин"},
	{"прямолин"},
	{"сверл", "присадк"},
	{"фрезер"},
	{"глянц"},
	{"матов"},
	{"покрыт", "облицов"},
	{"лакир", " лак ", " лак"},
	{"шлифов"},
	{"врезк"},
}

var (
	// 1200х600, 1200x600, 1200×600, with optional decimals and a third axis.
	dimensionRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[xх*](\s*\d+(?:\.\d+)?)(?:\s*[xх*]\s*(\d+(?:\.\d+)?))?`)
	// диаметром 5, диаметр 5, d5, д 5. The marker must start a word:
	// without the anchor every noun ending in these letters ("фасад 5",
	// "шкаф 3") would read as a diameter.
	diameterRe = regexp.MustCompile(`(?:^|\s)(?:диаметром|диаметр|ф|d|д)\s*(\d+(?:\.\d+)?)`)
)

// Guard is the semantic-consistency check applied to fuzzy candidates. It is
// symmetric: Consistent(a, b) == Consistent(b, a).
type Guard struct {
	matcher *ahocorasick.Matcher
	// group index per pattern, parallel to the matcher's dictionary.
	groupOf []int
}

// NewGuard builds the guard over the built-in marker families.
func NewGuard() *Guard {
	var dict []string
	var groupOf []int
	for gi, group := range markerGroups {
		for _, marker := range group {
			dict = append(dict, marker)
			groupOf = append(groupOf, gi)
		}
	}
	return &Guard{matcher: ahocorasick.NewStringMatcher(dict), groupOf: groupOf}
}

// Consistent reports whether two normalized names may refer to the same item.
// They are inconsistent when they disagree on any marker family, on declared
// dimensions, or on declared diameters.
func (g *Guard) Consistent(a, b string) bool {
	if g.groupsOf(a) != g.groupsOf(b) {
		return false
	}
	if da, db := dimensionsOf(a), dimensionsOf(b); da != "" && db != "" && da != db {
		return false
	}
	if da, db := diametersOf(a), diametersOf(b); da != "" && db != "" && da != db {
		return false
	}
	return true
}

// groupsOf returns the set of marker families present in the name, packed
// into a bitmask.
func (g *Guard) groupsOf(name string) uint64 {
	var mask uint64
	for _, hit := range g.matcher.Match([]byte(name)) {
		mask |= 1 << uint(g.groupOf[hit])
	}
	return mask
}

func dimensionsOf(name string) string {
	var dims []string
	for _, m := range dimensionRe.FindAllStringSubmatch(name, -1) {
		dim := strings.TrimSpace(m[1]) + "х" + strings.TrimSpace(m[2])
		if m[3] != "" {
			dim += "х" + strings.TrimSpace(m[3])
		}
		dims = append(dims, dim)
	}
	return strings.Join(dims, "|")
}

func diametersOf(name string) string {
	var ds []string
	for _, m := range diameterRe.FindAllStringSubmatch(name, -1) {
		ds = append(ds, m[1])
	}
	return strings.Join(ds, "|")
}
