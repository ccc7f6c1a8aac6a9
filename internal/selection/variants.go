package selection

import (
	"sort"
	"strings"

	"brickkit/internal/catalog"
)

var desirabilityTable = []struct {
	fragment string
	value    float64
}{
	{"main", 1.0},
	{"small", 0.8},
	{"large", 0.7},
	{"alternate", 0.5},
}

const defaultDesirability = 0.6

// Desirability rates a variant label. The first table fragment found in the
// lowercased label wins.
func Desirability(label string) float64 {
	lower := strings.ToLower(label)
	for _, entry := range desirabilityTable {
		if strings.Contains(lower, entry.fragment) {
			return entry.value
		}
	}
	return defaultDesirability
}

// RankVariants returns a copy of variants with desirability assigned, sorted
// by descending desirability. Equal values keep their input order.
func RankVariants(variants []catalog.Variant) []catalog.Variant {
	ranked := make([]catalog.Variant, len(variants))
	for i, v := range variants {
		v.Desirability = Desirability(v.Label)
		ranked[i] = v
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Desirability > ranked[j].Desirability
	})
	return ranked
}
