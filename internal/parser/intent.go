package parser

import "strings"

// Control phrasing tables per language. All matching happens on the
// canonical (lowercased, punctuation-stripped) text.
var (
	affirmWords = map[string][]string{
		"en": {"yes", "yeah", "yep", "yup", "sure", "correct", "right", "ok", "okay", "please do"},
		"nl": {"ja", "jawel", "klopt", "prima", "graag", "is goed", "doe maar"},
	}
	denyWords = map[string][]string{
		"en": {"no", "nope", "nah", "dont", "do not", "cancel that", "never mind that"},
		"nl": {"nee", "neen", "niet", "liever niet", "toch niet"},
	}
	menuQueryPhrases = map[string][]string{
		"en": {"menu", "what do you have", "what do you serve", "what can i order", "what is there"},
		"nl": {"menu", "wat hebben jullie", "wat heb je", "wat kan ik bestellen"},
	}
	orderQueryPhrases = map[string][]string{
		"en": {"my order", "whats in my order", "what did i order", "order so far", "summary"},
		"nl": {"mijn bestelling", "wat heb ik besteld", "bestelling tot nu toe"},
	}
	recommendPhrases = map[string][]string{
		"en": {"which is best", "whats best", "what do you recommend", "recommendation", "which one is good", "what would you suggest"},
		"nl": {"wat raad je aan", "wat is het lekkerst", "welke is het beste", "aanrader"},
	}
	resetPhrases = map[string][]string{
		"en": {"never mind", "start over", "forget it", "from the top", "reset"},
		"nl": {"laat maar", "opnieuw beginnen", "vergeet het", "begin opnieuw"},
	}
	removeMarkers = map[string][]string{
		"en": {"remove", "take off", "take out", "without the", "drop the", "scratch the", "cancel the"},
		"nl": {"verwijder", "haal weg", "weg ermee", "schrap de", "annuleer de"},
	}
	setMarkers = map[string][]string{
		"en": {"make it", "make that", "change to", "change that to", "instead", "actually"},
		"nl": {"maak er", "verander naar", "doe toch", "eigenlijk"},
	}
	donePhrases = map[string][]string{
		"en": {"that s all", "thats all", "that s it", "that is all", "that is it", "that will be all", "nothing else", "i m done", "that s everything"},
		"nl": {"dat is alles", "dat was het", "meer niet", "verder niets", "dat is het"},
	}
)

// containsPhrase reports whether any of phrases occurs in canonical text
// on word boundaries.
func containsPhrase(canonical string, phrases []string) bool {
	padded := " " + canonical + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// controlIntent classifies utterances that carry no catalog alias:
// confirmations, refusals, menu queries, order-summary queries,
// recommendation requests and topic resets.
func controlIntent(canonical, language string) (Intent, bool) {
	switch {
	case containsPhrase(canonical, resetPhrases[language]):
		return IntentReset, true
	case containsPhrase(canonical, recommendPhrases[language]):
		return IntentRecommend, true
	case containsPhrase(canonical, orderQueryPhrases[language]):
		return IntentOrderQuery, true
	case containsPhrase(canonical, menuQueryPhrases[language]):
		return IntentMenuQuery, true
	case containsPhrase(canonical, donePhrases[language]):
		return IntentConfirm, true
	case startsWithAny(canonical, denyWords[language]):
		return IntentDeny, true
	case startsWithAny(canonical, affirmWords[language]):
		return IntentConfirm, true
	}
	return IntentUnknown, false
}

// startsWithAny reports whether canonical begins with one of the given
// phrases on a word boundary. Affirmation and refusal are recognised only
// in leading position so "the one with no onions" is not read as a
// refusal.
func startsWithAny(canonical string, phrases []string) bool {
	for _, p := range phrases {
		if canonical == p || strings.HasPrefix(canonical, p+" ") {
			return true
		}
	}
	return false
}

// hasRemoveMarker reports an explicit removal phrase. Removal is never
// inferred from context alone; without one of these markers an utterance
// cannot shrink the cart.
func hasRemoveMarker(canonical, language string) bool {
	return containsPhrase(canonical, removeMarkers[language])
}

// hasSetMarker reports an explicit change-of-quantity phrase.
func hasSetMarker(canonical, language string) bool {
	return containsPhrase(canonical, setMarkers[language])
}
