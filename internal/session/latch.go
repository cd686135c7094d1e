package session

// A latch pins the next user turn to a pending question. While one is
// armed the controller resolves the transcript against the latch before
// general ordering, and the latch decides whether it consumed the turn.

const (
	// maxConfirmAttempts is how many re-prompts a yes/no question gets
	// before the controller gives up and hands the turn to the fallback.
	maxConfirmAttempts = 1

	// maxDisambiguateAttempts bounds option re-prompts the same way.
	maxDisambiguateAttempts = 2
)

// confirmLatch holds a pending yes/no question. OnAffirm and OnRefuse
// run when the user answers and return the reply text; either may
// mutate controller state (apply the staged delta, advance checkout).
type confirmLatch struct {
	Prompt   string
	OnAffirm func() string
	OnRefuse func() string
	Attempts int
}

// disambiguateLatch holds a pending category expansion: the user named a
// category head and must pick a concrete variant. PendingQty carries a
// quantity given before or during disambiguation so "three" followed by
// "the lamb one" yields three.
type disambiguateLatch struct {
	CategoryID string
	Options    []string
	PendingQty int
	QtyKnown   bool
	Attempts   int
}

// collectStage sequences the checkout micro-flow: fulfillment mode first,
// then the name, then the final confirmation.
type collectStage int

const (
	collectFulfillment collectStage = iota
	collectName
)

// checkoutLatch walks the caller through closing the order.
type checkoutLatch struct {
	Stage       collectStage
	Fulfillment string
	Name        string
	Attempts    int
}

// optionSet reports whether itemID is one of the latched options.
func (l *disambiguateLatch) optionSet() map[string]bool {
	set := make(map[string]bool, len(l.Options))
	for _, id := range l.Options {
		set[id] = true
	}
	return set
}
