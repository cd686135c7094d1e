package session

import (
	"fmt"
	"strings"

	"github.com/voxterra/maitred/internal/catalog"
	"github.com/voxterra/maitred/internal/parser"
)

// Cart is the session order state: item IDs mapped to quantities, always
// positive. It is owned exclusively by the [Controller] and mutated only
// through [Cart.Apply] — the parser and the fallback path never touch it.
type Cart struct {
	quantities map[string]int
	order      []string // insertion order for stable summaries
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{quantities: make(map[string]int)}
}

// Apply executes one mutation. OpAdd increments the line, OpSet replaces
// its quantity outright, and OpRemove (or a set to zero or below) deletes
// it. Applying the same OpSet twice yields the same quantity, not double.
func (c *Cart) Apply(d parser.Delta) error {
	if d.ItemID == "" {
		return fmt.Errorf("session: delta has no item id")
	}
	switch d.Op {
	case parser.OpAdd:
		if d.Quantity <= 0 {
			return fmt.Errorf("session: add of %d %q", d.Quantity, d.ItemID)
		}
		if _, ok := c.quantities[d.ItemID]; !ok {
			c.order = append(c.order, d.ItemID)
		}
		c.quantities[d.ItemID] += d.Quantity
	case parser.OpSet:
		if d.Quantity <= 0 {
			c.remove(d.ItemID)
			return nil
		}
		if _, ok := c.quantities[d.ItemID]; !ok {
			c.order = append(c.order, d.ItemID)
		}
		c.quantities[d.ItemID] = d.Quantity
	case parser.OpRemove:
		c.remove(d.ItemID)
	default:
		return fmt.Errorf("session: unknown cart op %q", d.Op)
	}
	return nil
}

func (c *Cart) remove(itemID string) {
	if _, ok := c.quantities[itemID]; !ok {
		return
	}
	delete(c.quantities, itemID)
	for i, id := range c.order {
		if id == itemID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.quantities) == 0
}

// Len reports the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.quantities)
}

// Quantity returns the quantity of one line, zero when absent.
func (c *Cart) Quantity(itemID string) int {
	return c.quantities[itemID]
}

// Quantities returns a copy of the line map for context snapshots.
func (c *Cart) Quantities() map[string]int {
	out := make(map[string]int, len(c.quantities))
	for id, q := range c.quantities {
		out[id] = q
	}
	return out
}

// Summary renders the cart as spoken text: "2x Garlic Naan, 1x Mango
// Lassi". Lines appear in the order they were first added. Unknown item
// IDs fall back to the raw ID so a stale catalog never hides a line.
func (c *Cart) Summary(cat *catalog.Snapshot) string {
	if c.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(c.order))
	for _, id := range c.order {
		qty, ok := c.quantities[id]
		if !ok {
			continue
		}
		name := id
		if it, found := cat.Item(id); found {
			name = it.DisplayName
		}
		parts = append(parts, fmt.Sprintf("%dx %s", qty, name))
	}
	return strings.Join(parts, ", ")
}
