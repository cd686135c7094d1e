package parser

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/voxterra/maitred/internal/catalog"
)

// Fuzzy matching thresholds. A candidate that shares a Double Metaphone
// code with the spoken span is accepted at the lower phonetic threshold;
// without phonetic overlap plain Jaro-Winkler similarity must clear the
// higher bar.
const (
	phoneticThreshold = 0.70
	fuzzyThreshold    = 0.85

	// ambiguityMargin is how close a runner-up from a different item may
	// score before the whole match is declared ambiguous.
	ambiguityMargin = 0.03

	// maxNGram bounds the token-span width tested against aliases.
	maxNGram = 3
)

// fuzzyCandidate is the outcome of the phonetic pass over one utterance.
type fuzzyCandidate struct {
	item  catalog.Item
	alias string
	score float64
}

// fuzzyAlias finds the catalog alias most phonetically similar to any
// token n-gram of the utterance. It reports ambiguous=true when a second
// distinct item scores within ambiguityMargin of the winner, in which
// case the caller must not guess.
func fuzzyAlias(tokens []string, cat *catalog.Snapshot) (best fuzzyCandidate, ok, ambiguous bool) {
	entries := cat.AliasesLongestFirst()
	if len(entries) == 0 || len(tokens) == 0 {
		return fuzzyCandidate{}, false, false
	}

	var runnerUp fuzzyCandidate

	for n := 1; n <= maxNGram && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			span := tokens[i : i+n]
			spanFull := strings.Join(span, " ")
			spanCodes := metaphoneCodes(span)

			for _, entry := range entries {
				aliasTokens := strings.Fields(entry.Alias)
				score := bestSimilarity(span, aliasTokens, spanFull, entry.Alias)

				threshold := fuzzyThreshold
				if codesOverlap(spanCodes, metaphoneCodes(aliasTokens)) {
					threshold = phoneticThreshold
				}
				if score < threshold {
					continue
				}

				item, found := cat.Item(entry.ItemID)
				if !found {
					continue
				}
				cand := fuzzyCandidate{item: item, alias: entry.Alias, score: score}
				switch {
				case cand.score > best.score:
					if best.item.ID != "" && best.item.ID != cand.item.ID {
						runnerUp = best
					}
					best = cand
				case cand.item.ID != best.item.ID && cand.score > runnerUp.score:
					runnerUp = cand
				}
			}
		}
	}

	if best.item.ID == "" {
		return fuzzyCandidate{}, false, false
	}
	if runnerUp.item.ID != "" && best.score-runnerUp.score < ambiguityMargin {
		return fuzzyCandidate{}, false, true
	}
	return best, true, false
}

// metaphoneCodes returns the union of Double Metaphone codes for tokens.
// Empty codes (short or vowel-only words) are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler score between the
// spoken span and the alias, comparing both the full strings and their
// space-stripped forms. Pairwise single-token comparison is deliberately
// not used: a shared word would score a multi-word alias at 1.0 and make
// every variant of a category collide with its siblings.
func bestSimilarity(spanTokens, aliasTokens []string, spanFull, aliasFull string) float64 {
	score := matchr.JaroWinkler(spanFull, aliasFull, false)

	if len(spanTokens) > 1 || len(aliasTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(spanTokens, ""), strings.Join(aliasTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
