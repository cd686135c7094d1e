// Package catalog holds the tenant menu tree the parser resolves
// utterances against.
//
// The tree has depth 1: category heads group orderable leaf variants, and
// nothing nests below a variant. A [Snapshot] is built once per session
// from the tenant store, validated, and then shared read-only — sessions
// never see mid-conversation menu edits.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Item is one catalog node: either an orderable leaf or a non-orderable
// category head grouping its variants.
type Item struct {
	// ID is the tenant-unique item identifier.
	ID string

	// DisplayName is the spoken/rendered name.
	DisplayName string

	// Aliases are the spoken forms that resolve to this item, in
	// addition to the display name itself.
	Aliases []string

	// IsCategory marks a non-orderable grouping node.
	IsCategory bool

	// ParentID links a leaf variant to its category head. Empty for
	// top-level leaves and for category heads themselves.
	ParentID string
}

// AliasEntry pairs one canonical alias with the item it resolves to.
type AliasEntry struct {
	Alias  string
	ItemID string
}

// Snapshot is an immutable, validated view of one tenant's catalog.
// Safe for concurrent use.
type Snapshot struct {
	items    map[string]Item
	children map[string][]string
	aliases  map[string]string

	// ordered longest-alias-first so multi-word aliases win over their
	// substrings during extraction
	ordered []AliasEntry
}

// NewSnapshot validates items and builds the lookup indexes. It rejects
// trees that violate the depth-1 invariant the parser's disambiguation
// relies on.
func NewSnapshot(items []Item) (*Snapshot, error) {
	s := &Snapshot{
		items:    make(map[string]Item, len(items)),
		children: make(map[string][]string),
		aliases:  make(map[string]string),
	}

	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("catalog: item with display name %q has no id", it.DisplayName)
		}
		if it.DisplayName == "" {
			return nil, fmt.Errorf("catalog: item %q has no display name", it.ID)
		}
		if _, dup := s.items[it.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate item id %q", it.ID)
		}
		s.items[it.ID] = it
	}

	for _, it := range items {
		if it.ParentID == "" {
			continue
		}
		parent, ok := s.items[it.ParentID]
		if !ok {
			return nil, fmt.Errorf("catalog: item %q references unknown parent %q", it.ID, it.ParentID)
		}
		if !parent.IsCategory {
			return nil, fmt.Errorf("catalog: item %q has non-category parent %q", it.ID, it.ParentID)
		}
		if it.IsCategory {
			return nil, fmt.Errorf("catalog: category %q must not have a parent", it.ID)
		}
		s.children[it.ParentID] = append(s.children[it.ParentID], it.ID)
	}

	for _, it := range items {
		if it.IsCategory && len(s.children[it.ID]) == 0 {
			return nil, fmt.Errorf("catalog: category %q has no variants", it.ID)
		}
		for _, alias := range append([]string{it.DisplayName}, it.Aliases...) {
			key := CanonicalAlias(alias)
			if key == "" {
				continue
			}
			if existingID, taken := s.aliases[key]; taken {
				if existingID == it.ID {
					continue
				}
				// A shared alias resolves to the category head, so a
				// generic term routes into disambiguation rather than
				// silently picking one variant.
				if s.items[existingID].IsCategory {
					continue
				}
				if !it.IsCategory {
					return nil, fmt.Errorf("catalog: alias %q claimed by both %q and %q", key, existingID, it.ID)
				}
			}
			s.aliases[key] = it.ID
		}
	}

	s.ordered = make([]AliasEntry, 0, len(s.aliases))
	for alias, id := range s.aliases {
		s.ordered = append(s.ordered, AliasEntry{Alias: alias, ItemID: id})
	}
	sort.Slice(s.ordered, func(i, j int) bool {
		if len(s.ordered[i].Alias) != len(s.ordered[j].Alias) {
			return len(s.ordered[i].Alias) > len(s.ordered[j].Alias)
		}
		return s.ordered[i].Alias < s.ordered[j].Alias
	})

	return s, nil
}

// CanonicalAlias lowercases s, strips punctuation to spaces and collapses
// runs of whitespace — the same canonical form utterance tokens take
// before lookup.
func CanonicalAlias(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 0x00C0: // keep accented letters
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Item returns the item with the given id.
func (s *Snapshot) Item(id string) (Item, bool) {
	it, ok := s.items[id]
	return it, ok
}

// Resolve looks up a canonical alias and returns the item it names.
func (s *Snapshot) Resolve(alias string) (Item, bool) {
	id, ok := s.aliases[CanonicalAlias(alias)]
	if !ok {
		return Item{}, false
	}
	return s.items[id], true
}

// Children returns the variant items of a category head, sorted by
// display name for stable prompt wording.
func (s *Snapshot) Children(categoryID string) []Item {
	ids := s.children[categoryID]
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// AliasesLongestFirst returns every alias paired with its item, ordered
// longest alias first. The parser scans this order so "garlic naan" is
// claimed before "naan" can match inside it.
func (s *Snapshot) AliasesLongestFirst() []AliasEntry {
	return s.ordered
}

// IDs returns every item ID, sorted, for deterministic iteration.
func (s *Snapshot) IDs() []string {
	out := make([]string, 0, len(s.items))
	for id := range s.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Vocabulary returns every display name for STT recognition biasing.
func (s *Snapshot) Vocabulary() []string {
	out := make([]string, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.DisplayName)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of items in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.items)
}
