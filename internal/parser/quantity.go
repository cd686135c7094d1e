package parser

import "strconv"

// quantityWords maps spoken number words to values per language. Values
// 1–10 are covered in every supported language; larger quantities arrive
// as digits from STT.
var quantityWords = map[string]map[string]int{
	"en": {
		"a": 1, "an": 1,
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	},
	"nl": {
		"een": 1, "één": 1,
		"twee": 2, "drie": 3, "vier": 4, "vijf": 5,
		"zes": 6, "zeven": 7, "acht": 8, "negen": 9, "tien": 10,
	},
}

// maxSpokenQuantity bounds digit quantities; anything larger is almost
// certainly an STT artifact, not an order.
const maxSpokenQuantity = 99

// Quantity parses a single token as a quantity in the given language:
// either a number word or a digit string.
func Quantity(token, language string) (int, bool) {
	if n, ok := quantityWords[language][token]; ok {
		return n, true
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 || n > maxSpokenQuantity {
		return 0, false
	}
	return n, true
}

// findQuantity scans tokens for the first quantity word and returns its
// value and token index.
func findQuantity(tokens []string, language string) (qty, index int, ok bool) {
	for i, t := range tokens {
		if n, match := Quantity(t, language); match {
			return n, i, true
		}
	}
	return 0, -1, false
}
