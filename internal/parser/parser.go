// Package parser turns one normalized transcript plus a session context
// snapshot into a single immutable [Result].
//
// The parser is stateless across calls and deterministic: identical
// input snapshots produce identical results. It never panics past its
// boundary — any internal failure is converted into a Result with
// [StatusError], which callers treat as a no-match.
//
// Resolution order per utterance: catalog alias and quantity extraction
// first, then contextual quantity-only updates, then control intents
// (confirm, deny, menu query, order query, recommendation, reset), and
// finally the most specific no-match reason.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voxterra/maitred/internal/catalog"
	"github.com/voxterra/maitred/internal/normalize"
)

// Status is the overall outcome class of one parse.
type Status string

// Status values.
const (
	StatusMatch        Status = "MATCH"
	StatusPartialMatch Status = "PARTIAL_MATCH"
	StatusNoMatch      Status = "NO_MATCH"
	StatusError        Status = "ERROR"
)

// Reason refines a non-MATCH status.
type Reason string

// Reason codes, most specific first.
const (
	ReasonNone                  Reason = ""
	ReasonPartialMissingVariant Reason = "PARTIAL_MISSING_VARIANT"
	ReasonEmptyInput            Reason = "EMPTY_INPUT"
	ReasonTooShort              Reason = "TOO_SHORT"
	ReasonUnsupportedLanguage   Reason = "UNSUPPORTED_LANGUAGE"
	ReasonAmbiguous             Reason = "AMBIGUOUS"
	ReasonOutOfVocabulary       Reason = "OUT_OF_VOCABULARY"
	ReasonErrorException        Reason = "ERROR_EXCEPTION"
)

// Intent is what the caller is asking for.
type Intent string

// Intent values.
const (
	IntentUnknown     Intent = "UNKNOWN"
	IntentAddItem     Intent = "ADD_ITEM"
	IntentSetQuantity Intent = "SET_QUANTITY"
	IntentRemoveItem  Intent = "REMOVE_ITEM"
	IntentConfirm     Intent = "CONFIRM"
	IntentDeny        Intent = "DENY"
	IntentMenuQuery   Intent = "MENU_QUERY"
	IntentOrderQuery  Intent = "ORDER_QUERY"
	IntentRecommend   Intent = "RECOMMEND"
	IntentReset       Intent = "RESET"
)

// Op is the cart mutation kind a Delta carries.
type Op string

// Op values.
const (
	OpAdd    Op = "ADD"
	OpSet    Op = "SET"
	OpRemove Op = "REMOVE"
)

// Delta is one proposed cart mutation. OpSet replaces the line's
// quantity outright; it never increments. An empty ItemID marks a
// contextual delta the controller must bind (e.g. the quantity of a
// pending disambiguation).
type Delta struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Op       Op     `json:"op"`
}

// NextAction tells the controller what follow-up the parser suggests.
type NextAction struct {
	// Kind is "disambiguate" for the category-variant path.
	Kind string `json:"kind"`

	// CategoryID is the matched category head.
	CategoryID string `json:"category_id,omitempty"`

	// Options are the item IDs the follow-up must choose between.
	Options []string `json:"options,omitempty"`
}

// LatchKind mirrors the controller's pending-question state in the
// context snapshot the parser receives.
type LatchKind string

// LatchKind values.
const (
	LatchNone               LatchKind = ""
	LatchConfirm            LatchKind = "confirm"
	LatchDisambiguate       LatchKind = "disambiguate"
	LatchCollectName        LatchKind = "collect_name"
	LatchCollectFulfillment LatchKind = "collect_fulfillment"
)

// Context is the read-only session snapshot a parse runs against. The
// parser holds no state of its own; everything contextual arrives here.
type Context struct {
	// Language is the session's resolved BCP-47 primary subtag.
	Language string

	// CartItems maps item IDs to current quantities.
	CartItems map[string]int

	// PendingLatch is the kind of outstanding question, if any.
	PendingLatch LatchKind

	// LastCategoryHead is the category most recently shown to the
	// caller, for sticky recommendations.
	LastCategoryHead string

	// Catalog is the immutable menu snapshot.
	Catalog *catalog.Snapshot
}

// Result is the immutable outcome of one parse.
type Result struct {
	Status     Status            `json:"status"`
	Intent     Intent            `json:"intent"`
	Reason     Reason            `json:"reason,omitempty"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Delta      *Delta            `json:"delta,omitempty"`
	NextAction *NextAction       `json:"next_action,omitempty"`

	// Normalization is the trace of the rewrite that produced the text
	// this result was parsed from.
	Normalization normalize.Trace `json:"normalization"`
}

// supportedLanguages is the fixed language set of the decision core.
var supportedLanguages = map[string]bool{"en": true, "nl": true}

// Parse resolves one normalized transcript against the session context.
// It never panics: internal failures surface as StatusError with
// ReasonErrorException, which the controller treats as a no-match.
func Parse(sctx Context, normalized string, trace normalize.Trace) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Status:        StatusError,
				Intent:        IntentUnknown,
				Reason:        ReasonErrorException,
				Entities:      map[string]string{"panic": fmt.Sprint(r)},
				Normalization: trace,
			}
		}
	}()
	return parse(sctx, normalized, trace)
}

func parse(sctx Context, normalized string, trace normalize.Trace) Result {
	canonical := catalog.CanonicalAlias(normalized)
	tokens := strings.Fields(canonical)

	if len(tokens) == 0 {
		return noMatch(ReasonEmptyInput, trace)
	}
	if !supportedLanguages[sctx.Language] {
		return noMatch(ReasonUnsupportedLanguage, trace)
	}

	qty, _, hasQty := findQuantity(tokens, sctx.Language)
	matches := findAliases(tokens, sctx.Catalog)

	if len(matches) > 0 {
		return resolveAlias(sctx, canonical, tokens, matches[0], matches[1:], trace, 1.0)
	}

	if intent, ok := controlIntent(canonical, sctx.Language); ok {
		return Result{
			Status:        StatusMatch,
			Intent:        intent,
			Confidence:    0.9,
			Normalization: trace,
		}
	}

	// Phonetic pass: a misheard alias may still be recoverable.
	if cand, ok, ambiguous := fuzzyAlias(tokens, sctx.Catalog); ok {
		m := aliasMatch{item: cand.item, alias: cand.alias}
		return resolveAlias(sctx, canonical, tokens, m, nil, trace, cand.score)
	} else if ambiguous {
		return noMatch(ReasonAmbiguous, trace)
	}

	if hasRemoveMarker(canonical, sctx.Language) {
		return bindContextual(sctx, OpRemove, 0, trace)
	}
	if hasQty {
		return bindContextual(sctx, OpSet, qty, trace)
	}

	if len(canonical) < 3 {
		return noMatch(ReasonTooShort, trace)
	}
	return noMatch(ReasonOutOfVocabulary, trace)
}

// resolveAlias handles an utterance anchored on one located catalog item.
// exactness scales the confidence: 1.0 for a literal alias hit, the
// similarity score for a phonetic recovery.
func resolveAlias(sctx Context, canonical string, tokens []string, m aliasMatch, rest []aliasMatch, trace normalize.Trace, exactness float64) Result {
	entities := map[string]string{"item_id": m.item.ID, "alias": m.alias}
	if len(rest) > 0 {
		extra := make([]string, len(rest))
		for i, r := range rest {
			extra[i] = r.item.ID
		}
		entities["extra_items"] = strings.Join(extra, ",")
	}

	qty, explicitQty := quantityFor(tokens, sctx.Language, m)
	if explicitQty {
		entities["quantity"] = strconv.Itoa(qty)
	}

	if m.item.IsCategory {
		children := sctx.Catalog.Children(m.item.ID)
		if len(children) == 0 {
			// Validated snapshots cannot produce this; fail closed.
			return noMatch(ReasonOutOfVocabulary, trace)
		}
		options := make([]string, len(children))
		for i, c := range children {
			options[i] = c.ID
		}
		entities["category_id"] = m.item.ID
		return Result{
			Status:     StatusPartialMatch,
			Intent:     IntentAddItem,
			Reason:     ReasonPartialMissingVariant,
			Confidence: 0.8 * exactness,
			Entities:   entities,
			NextAction: &NextAction{
				Kind:       "disambiguate",
				CategoryID: m.item.ID,
				Options:    options,
			},
			Normalization: trace,
		}
	}

	switch {
	case hasRemoveMarker(canonical, sctx.Language):
		return Result{
			Status:        StatusMatch,
			Intent:        IntentRemoveItem,
			Confidence:    0.9 * exactness,
			Entities:      entities,
			Delta:         &Delta{ItemID: m.item.ID, Op: OpRemove},
			Normalization: trace,
		}
	case explicitQty && (hasSetMarker(canonical, sctx.Language) || referencesCartLine(sctx, m.item.ID)):
		return Result{
			Status:        StatusMatch,
			Intent:        IntentSetQuantity,
			Confidence:    confidence(exactness, explicitQty),
			Entities:      entities,
			Delta:         &Delta{ItemID: m.item.ID, Quantity: qty, Op: OpSet},
			Normalization: trace,
		}
	default:
		return Result{
			Status:        StatusMatch,
			Intent:        IntentAddItem,
			Confidence:    confidence(exactness, explicitQty),
			Entities:      entities,
			Delta:         &Delta{ItemID: m.item.ID, Quantity: qty, Op: OpAdd},
			Normalization: trace,
		}
	}
}

// referencesCartLine reports whether a quantity utterance naming an item
// already in the cart should be read as a quantity change rather than an
// addition. That reading only applies while the controller is waiting on
// a follow-up about that item.
func referencesCartLine(sctx Context, itemID string) bool {
	if sctx.PendingLatch != LatchConfirm && sctx.PendingLatch != LatchDisambiguate {
		return false
	}
	_, inCart := sctx.CartItems[itemID]
	return inCart
}

// bindContextual resolves an utterance that mutates "the" line without
// naming one: a bare quantity change or an explicit removal. Binding
// succeeds when the context identifies exactly one target — a pending
// disambiguation or a single-line cart. Anything else is ambiguous or
// out of vocabulary.
func bindContextual(sctx Context, op Op, qty int, trace normalize.Trace) Result {
	if op == OpSet && sctx.PendingLatch == LatchDisambiguate {
		// Unbound delta: the controller applies it to the pending
		// disambiguation quantity.
		return Result{
			Status:        StatusMatch,
			Intent:        IntentSetQuantity,
			Confidence:    0.75,
			Delta:         &Delta{Quantity: qty, Op: OpSet},
			Normalization: trace,
		}
	}

	switch len(sctx.CartItems) {
	case 0:
		return noMatch(ReasonOutOfVocabulary, trace)
	case 1:
		var itemID string
		for id := range sctx.CartItems {
			itemID = id
		}
		intent := IntentSetQuantity
		if op == OpRemove {
			intent = IntentRemoveItem
		}
		return Result{
			Status:        StatusMatch,
			Intent:        intent,
			Confidence:    0.75,
			Entities:      map[string]string{"item_id": itemID},
			Delta:         &Delta{ItemID: itemID, Quantity: qty, Op: op},
			Normalization: trace,
		}
	default:
		return noMatch(ReasonAmbiguous, trace)
	}
}

func confidence(exactness float64, explicitQty bool) float64 {
	base := 0.85
	if explicitQty {
		base = 0.95
	}
	return base * exactness
}

func noMatch(reason Reason, trace normalize.Trace) Result {
	return Result{
		Status:        StatusNoMatch,
		Intent:        IntentUnknown,
		Reason:        reason,
		Normalization: trace,
	}
}
