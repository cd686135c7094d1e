package parser

import (
	"sort"
	"strings"

	"github.com/voxterra/maitred/internal/catalog"
)

// aliasMatch is one catalog alias located in the utterance.
type aliasMatch struct {
	item  catalog.Item
	alias string
	start int // first claimed token index
	end   int // one past the last claimed token
}

// findAliases locates catalog aliases in the token stream. Aliases are
// tried longest first and claim their tokens, so "garlic naan" wins over
// the bare "naan" inside it. Matches are returned in utterance order.
func findAliases(tokens []string, cat *catalog.Snapshot) []aliasMatch {
	claimed := make([]bool, len(tokens))
	var out []aliasMatch

	for _, entry := range cat.AliasesLongestFirst() {
		aliasTokens := strings.Fields(entry.Alias)
		if len(aliasTokens) == 0 || len(aliasTokens) > len(tokens) {
			continue
		}
	scan:
		for i := 0; i+len(aliasTokens) <= len(tokens); i++ {
			for j, at := range aliasTokens {
				if claimed[i+j] || tokens[i+j] != at {
					continue scan
				}
			}
			for j := range aliasTokens {
				claimed[i+j] = true
			}
			item, ok := cat.Item(entry.ItemID)
			if !ok {
				continue
			}
			out = append(out, aliasMatch{
				item:  item,
				alias: entry.Alias,
				start: i,
				end:   i + len(aliasTokens),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// quantityFor picks the quantity that belongs to match: the nearest
// quantity word before the alias, else the first anywhere in the
// utterance, else 1.
func quantityFor(tokens []string, language string, match aliasMatch) (int, bool) {
	best, bestIdx := 0, -1
	for i := 0; i < match.start; i++ {
		if n, ok := Quantity(tokens[i], language); ok {
			best, bestIdx = n, i
		}
	}
	if bestIdx >= 0 {
		return best, true
	}
	if n, _, ok := findQuantity(tokens, language); ok {
		return n, true
	}
	return 1, false
}
