package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voxterra/maitred/internal/parser"
	"github.com/voxterra/maitred/internal/telemetry"
	"github.com/voxterra/maitred/pkg/provider/llm"
)

const defaultPersona = "You are a friendly restaurant phone assistant taking a voice order. " +
	"Answer in one or two short spoken sentences. Only mention items that are on the menu. " +
	"Never claim the order contains something it does not, and never confirm the order yourself; " +
	"steer the caller back to ordering."

// scriptedReprompt is the zero-dependency reply of last resort.
const scriptedReprompt = "Sorry, I didn't quite catch that. Could you say it again?"

// fallbackTimeout bounds the LLM round trip so a slow model cannot stall
// the turn loop past conversational patience.
const fallbackTimeout = 8 * time.Second

// fallbackReply answers a turn the deterministic path could not. The
// completion sees the menu, the cart and the recent turns; its text is
// tether-checked against the cart before it is spoken. The fallback
// never mutates the cart.
func (c *Controller) fallbackReply(ctx context.Context, res parser.Result, raw, why string) Reply {
	c.cfg.Metrics.RecordFallback(ctx, why)
	c.emit(telemetry.KindFallback, res, raw)

	if c.cfg.Fallback == nil {
		return Reply{Text: scriptedReprompt, Route: RouteScripted}
	}

	fctx, cancel := context.WithTimeout(ctx, fallbackTimeout)
	defer cancel()

	text, err := c.cfg.Fallback.Complete(fctx, llm.CompletionRequest{
		System:      c.fallbackSystemPrompt(),
		User:        c.fallbackUserPrompt(raw),
		Temperature: 0.4,
		MaxTokens:   120,
	})
	if err != nil {
		c.log.Warn("fallback completion failed", "error", err)
		return Reply{Text: scriptedReprompt, Route: RouteScripted}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: scriptedReprompt, Route: RouteScripted}
	}
	return Reply{Text: c.enforceTether(ctx, text, res.Intent), Route: RouteFallback}
}

func (c *Controller) fallbackSystemPrompt() string {
	var b strings.Builder
	b.WriteString(c.cfg.Persona)
	b.WriteString("\n\nMenu: ")
	b.WriteString(strings.Join(c.cfg.Catalog.Vocabulary(), ", "))
	b.WriteString("\nCurrent order: ")
	if c.cart.IsEmpty() {
		b.WriteString("nothing yet")
	} else {
		b.WriteString(c.cart.Summary(c.cfg.Catalog))
	}
	b.WriteString("\nReply language: ")
	b.WriteString(c.cfg.Language)
	return b.String()
}

func (c *Controller) fallbackUserPrompt(raw string) string {
	var b strings.Builder
	for _, t := range c.history {
		fmt.Fprintf(&b, "Caller: %s\nAgent: %s\n", t.RawText, t.AgentText)
	}
	fmt.Fprintf(&b, "Caller: %s", raw)
	return b.String()
}

// emptyOrderClaims are phrasings a completion uses to assert the order
// has nothing in it. Case-insensitive substring match on the reply.
var emptyOrderClaims = []string{
	"your order is empty",
	"order is empty",
	"nothing in your order",
	"nothing in the order",
	"no items in your order",
	"you haven't ordered",
	"you have not ordered",
	"haven't added anything",
	"your cart is empty",
	"je bestelling is leeg",
	"nog niets besteld",
}

// removalClaims are phrasings a completion uses to assert something was
// taken off the order. Only the deterministic path removes lines, so a
// fallback reply may never carry one of these.
var removalClaims = []string{
	"i've removed",
	"i have removed",
	"i removed",
	"has been removed",
	"taken that off",
	"took that off",
	"taken it off",
	"ik heb verwijderd",
	"is verwijderd",
}

// enforceTether rewrites a fallback reply that contradicts the cart.
// The cart is the single source of truth: if the text claims the order
// is empty while lines exist, or claims a removal the caller never asked
// for, the claim is replaced with the authoritative summary before
// playback.
func (c *Controller) enforceTether(ctx context.Context, text string, intent parser.Intent) string {
	lower := strings.ToLower(text)

	if intent != parser.IntentRemoveItem {
		for _, claim := range removalClaims {
			if strings.Contains(lower, claim) {
				c.cfg.Metrics.RecordTetherRewrite(ctx)
				c.log.Warn("fallback reply claimed a removal, rewriting")
				if c.cart.IsEmpty() {
					return "Did you want to remove something? You haven't ordered anything yet."
				}
				return fmt.Sprintf("Did you want to remove something? So far I have %s.", c.cart.Summary(c.cfg.Catalog))
			}
		}
	}

	if c.cart.IsEmpty() {
		return text
	}
	for _, claim := range emptyOrderClaims {
		if strings.Contains(lower, claim) {
			c.cfg.Metrics.RecordTetherRewrite(ctx)
			c.log.Warn("fallback reply contradicted cart, rewriting")
			return fmt.Sprintf("So far I have %s. Anything else?", c.cart.Summary(c.cfg.Catalog))
		}
	}
	return text
}

// joinSpoken renders a list the way it is said aloud: "a, b or c".
func joinSpoken(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}
