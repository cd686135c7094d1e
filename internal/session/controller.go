// Package session owns the per-call conversation state: the cart, the
// pending-question latches and the turn loop that binds transcripts to
// deterministic decisions.
//
// The controller is the only writer of the cart. The parser proposes
// deltas, the LLM fallback proposes text, and both proposals pass
// through the controller's invariant checks before anything the caller
// hears reflects them. A reply produced by the fallback path never
// mutates the cart, and any reply that contradicts the cart's ground
// truth is rewritten from the cart before playback.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voxterra/maitred/internal/catalog"
	"github.com/voxterra/maitred/internal/normalize"
	"github.com/voxterra/maitred/internal/observe"
	"github.com/voxterra/maitred/internal/parser"
	"github.com/voxterra/maitred/internal/telemetry"
	"github.com/voxterra/maitred/pkg/provider/llm"
	"github.com/voxterra/maitred/pkg/types"
)

// Route labels which path produced a reply.
const (
	RouteDeterministic = "deterministic"
	RouteFallback      = "fallback"
	RouteScripted      = "scripted"
)

// maxHistoryTurns bounds the conversation window handed to the fallback.
const maxHistoryTurns = 6

// Reply is the controller's answer to one transcript.
type Reply struct {
	// Text is what the agent speaks.
	Text string

	// Route is RouteDeterministic, RouteFallback or RouteScripted.
	Route string

	// EndSession is set once the order is confirmed or abandoned and
	// the runtime should play Text and then tear the session down.
	EndSession bool
}

// ControllerConfig wires one controller instance.
type ControllerConfig struct {
	SessionID string
	TenantID  string

	// Language is the resolved primary subtag for the whole session.
	Language string

	Catalog   *catalog.Snapshot
	Normalize *normalize.Pipeline

	// Fallback answers turns the parser could not. Nil disables the
	// LLM path entirely; such turns get the scripted re-prompt.
	Fallback llm.Provider

	// Persona is the system-prompt framing for fallback completions.
	Persona string

	Telemetry *telemetry.Emitter
	Metrics   *observe.Metrics
	Logger    *slog.Logger
}

// Controller drives the decision loop of one call. Methods are safe for
// one goroutine at a time per session; the runtime serializes turns, and
// the heartbeat takes the same lock through [Controller.NudgeText].
type Controller struct {
	cfg ControllerConfig
	log *slog.Logger

	mu           sync.Mutex
	cart         *Cart
	confirm      *confirmLatch
	disambiguate *disambiguateLatch
	checkout     *checkoutLatch
	lastCategory string
	offeredItem  string
	history      []types.TurnRecord
	customerName string
	fulfillment  string
	closed       bool
}

// NewController validates the wiring and returns a controller with an
// empty cart.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("session: controller needs a catalog snapshot")
	}
	if cfg.Normalize == nil {
		return nil, errors.New("session: controller needs a normalization pipeline")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Persona == "" {
		cfg.Persona = defaultPersona
	}
	return &Controller{
		cfg:  cfg,
		log:  cfg.Logger.With("session_id", cfg.SessionID),
		cart: NewCart(),
	}, nil
}

// Cart returns a copy of the current line quantities.
func (c *Controller) Cart() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Quantities()
}

// HandleTranscript runs one full turn: normalize, parse, resolve any
// pending latch, mutate the cart, and produce the reply. It never
// returns an error to the runtime — every failure mode maps to a
// speakable reply — and it never lets a panic escape.
func (c *Controller) HandleTranscript(ctx context.Context, raw string) (reply Reply) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			// The cart mutation either completed or never started;
			// partial application cannot occur because Apply is the
			// single mutation point. Answer with the scripted re-prompt.
			c.log.Error("turn panic recovered", "panic", fmt.Sprint(r))
			reply = Reply{Text: scriptedReprompt, Route: RouteScripted}
		}
		c.cfg.Metrics.RecordTurn(ctx, reply.Route, time.Since(start))
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	normalized, trace := c.cfg.Normalize.Normalize(c.cfg.Language, raw)
	res := parser.Parse(c.parserContext(), normalized, trace)
	c.cfg.Metrics.RecordParserResult(ctx, string(res.Status), string(res.Reason))
	c.emit(telemetry.KindDecision, res, raw)

	if res.Status == parser.StatusError {
		c.log.Error("parser error treated as no-match", "detail", res.Entities["panic"])
		res.Status = parser.StatusNoMatch
		res.Reason = parser.ReasonErrorException
	}

	reply = c.resolve(ctx, res, normalized, raw)
	c.remember(raw, normalized, reply)
	return reply
}

// resolve dispatches one parse result: latches first, then ordering.
func (c *Controller) resolve(ctx context.Context, res parser.Result, normalized, raw string) Reply {
	if c.checkout != nil {
		if reply, done := c.resolveCheckout(ctx, res, normalized, raw); done {
			return reply
		}
	}
	if c.confirm != nil {
		if reply, done := c.resolveConfirm(ctx, res, raw); done {
			return reply
		}
	}
	if c.disambiguate != nil {
		if reply, done := c.resolveDisambiguation(ctx, res, normalized, raw); done {
			return reply
		}
	}
	if c.offeredItem != "" {
		if reply, done := c.resolveOffer(res, normalized, raw); done {
			return reply
		}
	}
	return c.resolveOrdering(ctx, res, normalized, raw)
}

// resolveOffer consumes a turn answering a standing recommendation
// ("the Lamb Biryani is popular, shall I add one?"). An affirmation or a
// "that one" pickup adds the offered item; anything concrete moves on.
func (c *Controller) resolveOffer(res parser.Result, normalized, raw string) (Reply, bool) {
	offered := c.offeredItem
	c.offeredItem = ""

	takesOffer := res.Intent == parser.IntentConfirm ||
		strings.Contains(" "+catalog.CanonicalAlias(normalized)+" ", " that one ") ||
		(c.cfg.Language == "nl" && strings.Contains(" "+catalog.CanonicalAlias(normalized)+" ", " die dan "))
	if takesOffer {
		qty := 1
		if q, ok := res.Entities["quantity"]; ok {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				qty = n
			}
		}
		delta := parser.Delta{ItemID: offered, Quantity: qty, Op: parser.OpAdd}
		if err := c.cart.Apply(delta); err != nil {
			c.log.Error("cart apply failed", "error", err, "item_id", offered)
			return Reply{Text: scriptedReprompt, Route: RouteScripted}, true
		}
		return Reply{Text: c.addedText(offered, qty), Route: RouteDeterministic}, true
	}
	if res.Intent == parser.IntentDeny {
		return Reply{Text: "No worries. Anything else?", Route: RouteDeterministic}, true
	}
	// The caller went somewhere else; the offer lapses.
	return Reply{}, false
}

// resolveConfirm consumes a turn against a pending yes/no question.
func (c *Controller) resolveConfirm(ctx context.Context, res parser.Result, raw string) (Reply, bool) {
	latch := c.confirm
	switch res.Intent {
	case parser.IntentConfirm:
		c.confirm = nil
		c.emit(telemetry.KindConfirmation, res, raw)
		text := latch.OnAffirm()
		return Reply{Text: text, Route: RouteDeterministic, EndSession: c.closed}, true
	case parser.IntentDeny, parser.IntentRemoveItem:
		// "No, remove it" denies the question and abandons whatever the
		// latch staged; the refusal handler owns any cleanup.
		c.confirm = nil
		c.emit(telemetry.KindRefusal, res, raw)
		return Reply{Text: latch.OnRefuse(), Route: RouteDeterministic}, true
	}

	// A concrete new request overrides the question.
	if res.Status == parser.StatusMatch && res.Delta != nil && res.Delta.ItemID != "" {
		c.confirm = nil
		return Reply{}, false
	}

	latch.Attempts++
	if latch.Attempts <= maxConfirmAttempts {
		return Reply{Text: latch.Prompt, Route: RouteDeterministic}, true
	}
	c.confirm = nil
	return c.fallbackReply(ctx, res, raw, "confirm question unresolved"), true
}

// resolveDisambiguation consumes a turn against a pending category
// choice.
func (c *Controller) resolveDisambiguation(ctx context.Context, res parser.Result, normalized, raw string) (Reply, bool) {
	latch := c.disambiguate
	options := latch.optionSet()

	// A parse that landed on one of the offered variants settles it. A
	// quantity of one is treated as the pronoun reading ("the lamb one")
	// and does not override a quantity given earlier.
	if res.Delta != nil && res.Delta.ItemID != "" && options[res.Delta.ItemID] {
		override := res.Entities["quantity"] != "" && res.Delta.Quantity > 1
		return c.settleDisambiguation(res.Delta.ItemID, res.Delta.Quantity, override), true
	}

	// A bare quantity ("make it three") updates the pending amount and
	// re-asks with the new number attached.
	if res.Intent == parser.IntentSetQuantity && res.Delta != nil && res.Delta.ItemID == "" {
		latch.PendingQty = res.Delta.Quantity
		latch.QtyKnown = true
		return Reply{Text: c.disambiguationPrompt(latch), Route: RouteDeterministic}, true
	}

	// Try the option display names directly: "the lamb one".
	if id, ok := c.matchOption(normalized, latch.Options); ok {
		return c.settleDisambiguation(id, latch.PendingQty, latch.QtyKnown), true
	}

	// Denial abandons the pending category outright.
	if res.Intent == parser.IntentDeny {
		c.disambiguate = nil
		c.emit(telemetry.KindRefusal, res, raw)
		return Reply{Text: "No problem. Anything else?", Route: RouteDeterministic}, true
	}

	// A clean match on something else is a topic change; drop the latch
	// and let ordering handle it.
	if res.Status == parser.StatusMatch && ((res.Delta != nil && res.Delta.ItemID != "") || res.Intent == parser.IntentReset || res.Intent == parser.IntentOrderQuery || res.Intent == parser.IntentMenuQuery) {
		if res.Intent != parser.IntentOrderQuery && res.Intent != parser.IntentMenuQuery {
			c.disambiguate = nil
		}
		return Reply{}, false
	}

	latch.Attempts++
	if latch.Attempts <= maxDisambiguateAttempts {
		return Reply{Text: c.disambiguationPrompt(latch), Route: RouteDeterministic}, true
	}
	c.disambiguate = nil
	return c.fallbackReply(ctx, res, raw, "disambiguation unresolved"), true
}

// settleDisambiguation applies the chosen variant and clears the latch.
func (c *Controller) settleDisambiguation(itemID string, qty int, qtyKnown bool) Reply {
	latch := c.disambiguate
	c.disambiguate = nil
	if !qtyKnown && latch.QtyKnown {
		qty = latch.PendingQty
	}
	if qty <= 0 {
		qty = 1
	}
	delta := parser.Delta{ItemID: itemID, Quantity: qty, Op: parser.OpAdd}
	if err := c.cart.Apply(delta); err != nil {
		c.log.Error("cart apply failed", "error", err)
		return Reply{Text: scriptedReprompt, Route: RouteScripted}
	}
	return Reply{Text: c.addedText(itemID, qty), Route: RouteDeterministic}
}

// matchOption matches the normalized utterance against option display
// names and aliases: "lamb" picks biryani_lamb when it is the only
// option whose name contains the token.
func (c *Controller) matchOption(normalized string, options []string) (string, bool) {
	tokens := strings.Fields(catalog.CanonicalAlias(normalized))
	if len(tokens) == 0 {
		return "", false
	}
	var hit string
	hits := 0
	for _, id := range options {
		it, ok := c.cfg.Catalog.Item(id)
		if !ok {
			continue
		}
		names := append([]string{catalog.CanonicalAlias(it.DisplayName)}, it.Aliases...)
		for _, name := range names {
			nameTokens := strings.Fields(catalog.CanonicalAlias(name))
			if containsAnyToken(nameTokens, tokens) {
				hit = id
				hits++
				break
			}
		}
	}
	if hits == 1 {
		return hit, true
	}
	return "", false
}

func containsAnyToken(nameTokens, utteranceTokens []string) bool {
	for _, nt := range nameTokens {
		for _, ut := range utteranceTokens {
			if nt == ut {
				return true
			}
		}
	}
	return false
}

// resolveOrdering handles a turn with no latch armed (or one the latch
// declined to consume).
func (c *Controller) resolveOrdering(ctx context.Context, res parser.Result, normalized, raw string) Reply {
	switch {
	case res.Status == parser.StatusMatch && res.Delta != nil && res.Delta.ItemID != "":
		return c.applyDelta(res)

	case res.Status == parser.StatusPartialMatch && res.NextAction != nil && res.NextAction.Kind == "disambiguate":
		qty, qtyKnown := 0, false
		if q, ok := res.Entities["quantity"]; ok {
			qty, _ = strconv.Atoi(q)
			qtyKnown = qty > 0
		}
		c.disambiguate = &disambiguateLatch{
			CategoryID: res.NextAction.CategoryID,
			Options:    res.NextAction.Options,
			PendingQty: qty,
			QtyKnown:   qtyKnown,
		}
		c.lastCategory = res.NextAction.CategoryID
		return Reply{Text: c.disambiguationPrompt(c.disambiguate), Route: RouteDeterministic}

	case res.Intent == parser.IntentConfirm:
		if c.cart.IsEmpty() {
			return Reply{Text: "You haven't ordered anything yet. What would you like?", Route: RouteDeterministic}
		}
		return c.beginCheckout()

	case res.Intent == parser.IntentDeny:
		return Reply{Text: "Alright. Anything else?", Route: RouteDeterministic}

	case res.Intent == parser.IntentMenuQuery:
		return Reply{Text: c.menuText(), Route: RouteDeterministic}

	case res.Intent == parser.IntentOrderQuery:
		return Reply{Text: c.orderText(), Route: RouteDeterministic}

	case res.Intent == parser.IntentRecommend:
		return Reply{Text: c.recommendText(), Route: RouteDeterministic}

	case res.Intent == parser.IntentReset:
		c.cart = NewCart()
		c.disambiguate = nil
		c.confirm = nil
		c.checkout = nil
		c.offeredItem = ""
		return Reply{Text: "Okay, I've cleared your order. What would you like?", Route: RouteDeterministic}
	}

	return c.fallbackReply(ctx, res, raw, string(res.Reason))
}

// applyDelta runs one bound cart mutation and phrases the receipt.
func (c *Controller) applyDelta(res parser.Result) Reply {
	d := *res.Delta
	switch d.Op {
	case parser.OpRemove:
		if c.cart.Quantity(d.ItemID) == 0 {
			return Reply{Text: fmt.Sprintf("%s isn't in your order.", c.displayName(d.ItemID)), Route: RouteDeterministic}
		}
	case parser.OpSet:
		if c.cart.Quantity(d.ItemID) == 0 && d.Quantity > 0 {
			// Setting a quantity on an absent line reads as an add.
			d.Op = parser.OpAdd
		}
	}
	if err := c.cart.Apply(d); err != nil {
		c.log.Error("cart apply failed", "error", err, "item_id", d.ItemID)
		return Reply{Text: scriptedReprompt, Route: RouteScripted}
	}
	switch d.Op {
	case parser.OpRemove:
		return Reply{Text: fmt.Sprintf("Removed %s. %s", c.displayName(d.ItemID), c.orderTail()), Route: RouteDeterministic}
	case parser.OpSet:
		return Reply{Text: fmt.Sprintf("Done, that's %d %s now. Anything else?", d.Quantity, c.displayName(d.ItemID)), Route: RouteDeterministic}
	default:
		return Reply{Text: c.addedText(d.ItemID, d.Quantity), Route: RouteDeterministic}
	}
}

// beginCheckout arms the fulfillment question.
func (c *Controller) beginCheckout() Reply {
	c.checkout = &checkoutLatch{Stage: collectFulfillment}
	return Reply{
		Text:  fmt.Sprintf("So that's %s. Will that be pickup or delivery?", c.cart.Summary(c.cfg.Catalog)),
		Route: RouteDeterministic,
	}
}

// resolveCheckout walks the fulfillment-then-name micro-flow.
func (c *Controller) resolveCheckout(ctx context.Context, res parser.Result, normalized, raw string) (Reply, bool) {
	latch := c.checkout

	// A fresh cart mutation re-opens the order.
	if res.Status == parser.StatusMatch && res.Delta != nil && res.Delta.ItemID != "" {
		c.checkout = nil
		return Reply{}, false
	}
	if res.Intent == parser.IntentDeny || res.Intent == parser.IntentReset {
		c.checkout = nil
		if res.Intent == parser.IntentReset {
			c.cart = NewCart()
			return Reply{Text: "Okay, I've cleared your order. What would you like?", Route: RouteDeterministic}, true
		}
		c.emit(telemetry.KindRefusal, res, raw)
		return Reply{Text: "No problem, we can keep going. What else would you like?", Route: RouteDeterministic}, true
	}

	switch latch.Stage {
	case collectFulfillment:
		mode, ok := fulfillmentMode(normalized, c.cfg.Language)
		if !ok {
			latch.Attempts++
			if latch.Attempts > maxDisambiguateAttempts {
				c.checkout = nil
				return c.fallbackReply(ctx, res, raw, "fulfillment unresolved"), true
			}
			return Reply{Text: "Sorry, will that be pickup or delivery?", Route: RouteDeterministic}, true
		}
		latch.Fulfillment = mode
		latch.Stage = collectName
		latch.Attempts = 0
		return Reply{Text: "Got it. And what name should I put on the order?", Route: RouteDeterministic}, true

	case collectName:
		name := strings.TrimSpace(raw)
		if name == "" || res.Intent == parser.IntentConfirm {
			latch.Attempts++
			if latch.Attempts > maxDisambiguateAttempts {
				c.checkout = nil
				return c.fallbackReply(ctx, res, raw, "name unresolved"), true
			}
			return Reply{Text: "Sorry, what name should I put on the order?", Route: RouteDeterministic}, true
		}
		latch.Name = name
		c.fulfillment = latch.Fulfillment
		c.customerName = latch.Name
		c.checkout = nil
		summary := c.cart.Summary(c.cfg.Catalog)
		c.confirm = &confirmLatch{
			Prompt: fmt.Sprintf("To confirm: %s, %s for %s. Is that right?", summary, latch.Fulfillment, name),
			OnAffirm: func() string {
				c.closed = true
				return fmt.Sprintf("Perfect, your order is in. %s for %s, see you soon!", summary, name)
			},
			OnRefuse: func() string {
				return "Okay, let's fix that. What should be different?"
			},
		}
		return Reply{Text: c.confirm.Prompt, Route: RouteDeterministic}, true
	}
	return Reply{}, false
}

// fulfillmentMode maps an utterance to "pickup" or "delivery".
func fulfillmentMode(normalized, language string) (string, bool) {
	text := " " + catalog.CanonicalAlias(normalized) + " "
	pickup := []string{"pickup", "pick up", "collect", "takeaway", "take away"}
	delivery := []string{"delivery", "deliver", "delivered", "bring"}
	if language == "nl" {
		pickup = append(pickup, "afhalen", "ophalen", "meenemen")
		delivery = append(delivery, "bezorgen", "bezorging", "thuisbezorgd")
	}
	for _, w := range pickup {
		if strings.Contains(text, " "+w+" ") {
			return "pickup", true
		}
	}
	for _, w := range delivery {
		if strings.Contains(text, " "+w+" ") {
			return "delivery", true
		}
	}
	return "", false
}

// Closed reports whether the order was confirmed and the session should
// wind down after the current reply.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// NudgeText is the heartbeat's idle prompt, phrased from whatever
// question is currently open.
func (c *Controller) NudgeText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.confirm != nil:
		return c.confirm.Prompt
	case c.disambiguate != nil:
		return c.disambiguationPrompt(c.disambiguate)
	case c.checkout != nil && c.checkout.Stage == collectName:
		return "Sorry, what name should I put on the order?"
	case c.checkout != nil:
		return "Are you still there? Will that be pickup or delivery?"
	case !c.cart.IsEmpty():
		return fmt.Sprintf("Are you still there? So far I have %s.", c.cart.Summary(c.cfg.Catalog))
	default:
		return "Are you still there? What would you like to order?"
	}
}

func (c *Controller) parserContext() parser.Context {
	latch := parser.LatchNone
	switch {
	case c.confirm != nil:
		latch = parser.LatchConfirm
	case c.disambiguate != nil:
		latch = parser.LatchDisambiguate
	case c.checkout != nil && c.checkout.Stage == collectName:
		latch = parser.LatchCollectName
	case c.checkout != nil:
		latch = parser.LatchCollectFulfillment
	}
	return parser.Context{
		Language:         c.cfg.Language,
		CartItems:        c.cart.Quantities(),
		PendingLatch:     latch,
		LastCategoryHead: c.lastCategory,
		Catalog:          c.cfg.Catalog,
	}
}

func (c *Controller) disambiguationPrompt(latch *disambiguateLatch) string {
	head := c.displayName(latch.CategoryID)
	names := make([]string, 0, len(latch.Options))
	for _, id := range latch.Options {
		names = append(names, c.displayName(id))
	}
	var qty string
	if latch.QtyKnown && latch.PendingQty > 1 {
		qty = fmt.Sprintf("%d ", latch.PendingQty)
	}
	return fmt.Sprintf("Which %s%s would you like: %s?", qty, head, joinSpoken(names))
}

func (c *Controller) addedText(itemID string, qty int) string {
	name := c.displayName(itemID)
	if qty == 1 {
		return fmt.Sprintf("One %s, got it. Anything else?", name)
	}
	return fmt.Sprintf("%d %s, got it. Anything else?", qty, name)
}

func (c *Controller) menuText() string {
	var heads []string
	// Category heads first; loose leaves only when there are no heads.
	for _, id := range c.sortedCatalogIDs() {
		it, _ := c.cfg.Catalog.Item(id)
		if it.IsCategory {
			heads = append(heads, it.DisplayName)
		}
	}
	if len(heads) == 0 {
		for _, id := range c.sortedCatalogIDs() {
			it, _ := c.cfg.Catalog.Item(id)
			if it.ParentID == "" {
				heads = append(heads, it.DisplayName)
			}
		}
	}
	if len(heads) == 0 {
		return "I'm sorry, the menu isn't available right now."
	}
	return fmt.Sprintf("We have %s. What would you like?", joinSpoken(heads))
}

func (c *Controller) sortedCatalogIDs() []string {
	return c.cfg.Catalog.IDs()
}

func (c *Controller) orderText() string {
	if c.cart.IsEmpty() {
		return "Your order is empty so far. What would you like?"
	}
	return fmt.Sprintf("So far I have %s. Anything else?", c.cart.Summary(c.cfg.Catalog))
}

// recommendText suggests only from the sticky category when one is set;
// the agent never invents items outside the catalog. The suggested item
// is remembered so a bare "yes" or "that one" on the next turn adds it.
func (c *Controller) recommendText() string {
	if c.lastCategory != "" {
		children := c.cfg.Catalog.Children(c.lastCategory)
		if len(children) > 0 {
			c.offeredItem = children[0].ID
			return fmt.Sprintf("The %s is popular. Shall I add one?", children[0].DisplayName)
		}
	}
	for _, id := range c.sortedCatalogIDs() {
		it, _ := c.cfg.Catalog.Item(id)
		if !it.IsCategory {
			c.offeredItem = it.ID
			return fmt.Sprintf("The %s is popular. Shall I add one?", it.DisplayName)
		}
	}
	return "Everything on the menu is good! What sounds nice to you?"
}

func (c *Controller) orderTail() string {
	if c.cart.IsEmpty() {
		return "Your order is empty now. Anything else?"
	}
	return fmt.Sprintf("That leaves %s. Anything else?", c.cart.Summary(c.cfg.Catalog))
}

func (c *Controller) displayName(itemID string) string {
	if it, ok := c.cfg.Catalog.Item(itemID); ok {
		return it.DisplayName
	}
	return itemID
}

func (c *Controller) remember(raw, normalized string, reply Reply) {
	c.history = append(c.history, types.TurnRecord{
		UserText:  normalized,
		RawText:   raw,
		AgentText: reply.Text,
		Route:     reply.Route,
		At:        time.Now(),
	})
	if len(c.history) > maxHistoryTurns {
		c.history = c.history[len(c.history)-maxHistoryTurns:]
	}
}

func (c *Controller) emit(kind string, res parser.Result, raw string) {
	if c.cfg.Telemetry == nil {
		return
	}
	redacted, pii := telemetry.Redact(raw)
	c.cfg.Telemetry.Emit(telemetry.Event{
		SessionID:    c.cfg.SessionID,
		TenantID:     c.cfg.TenantID,
		Kind:         kind,
		ParserStatus: string(res.Status),
		ParserReason: string(res.Reason),
		Utterance:    redacted,
		PIIRedacted:  pii,
		Timestamp:    time.Now(),
	})
}
