package catalog

import (
	"testing"
)

// testItems is a small menu with one category head and standalone leaves.
func testItems() []Item {
	return []Item{
		{ID: "biryani", DisplayName: "Biryani", Aliases: []string{"biriani"}, IsCategory: true},
		{ID: "biryani_chicken", DisplayName: "Chicken Biryani", ParentID: "biryani"},
		{ID: "biryani_lamb", DisplayName: "Lamb Biryani", ParentID: "biryani"},
		{ID: "biryani_veg", DisplayName: "Vegetable Biryani", Aliases: []string{"veggie biryani"}, ParentID: "biryani"},
		{ID: "garlic_naan", DisplayName: "Garlic Naan"},
		{ID: "plain_naan", DisplayName: "Plain Naan", Aliases: []string{"naan"}},
	}
}

func TestNewSnapshotValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		items   []Item
		wantErr bool
	}{
		{name: "valid tree", items: testItems()},
		{
			name:    "unknown parent",
			items:   []Item{{ID: "a", DisplayName: "A", ParentID: "nope"}},
			wantErr: true,
		},
		{
			name: "leaf parent",
			items: []Item{
				{ID: "a", DisplayName: "A"},
				{ID: "b", DisplayName: "B", ParentID: "a"},
			},
			wantErr: true,
		},
		{
			name: "nested category",
			items: []Item{
				{ID: "a", DisplayName: "A", IsCategory: true},
				{ID: "b", DisplayName: "B", IsCategory: true, ParentID: "a"},
				{ID: "c", DisplayName: "C", ParentID: "a"},
			},
			wantErr: true,
		},
		{
			name: "empty category",
			items: []Item{
				{ID: "a", DisplayName: "A", IsCategory: true},
			},
			wantErr: true,
		},
		{
			name: "duplicate leaf alias",
			items: []Item{
				{ID: "a", DisplayName: "A", Aliases: []string{"same"}},
				{ID: "b", DisplayName: "B", Aliases: []string{"same"}},
			},
			wantErr: true,
		},
		{
			name:    "duplicate id",
			items:   []Item{{ID: "a", DisplayName: "A"}, {ID: "a", DisplayName: "A2"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewSnapshot(tt.items)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSnapshot error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshotResolveAndChildren(t *testing.T) {
	t.Parallel()

	s, err := NewSnapshot(testItems())
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}

	if it, ok := s.Resolve("Garlic Naan"); !ok || it.ID != "garlic_naan" {
		t.Errorf("Resolve(Garlic Naan) = %+v, %v", it, ok)
	}
	if it, ok := s.Resolve("veggie biryani"); !ok || it.ID != "biryani_veg" {
		t.Errorf("Resolve(veggie biryani) = %+v, %v", it, ok)
	}
	if _, ok := s.Resolve("pizza"); ok {
		t.Error("Resolve(pizza) matched, want miss")
	}

	kids := s.Children("biryani")
	if len(kids) != 3 {
		t.Fatalf("Children(biryani) = %d items, want 3", len(kids))
	}
	// Sorted by display name.
	if kids[0].ID != "biryani_chicken" || kids[1].ID != "biryani_lamb" || kids[2].ID != "biryani_veg" {
		t.Errorf("Children order = %s, %s, %s", kids[0].ID, kids[1].ID, kids[2].ID)
	}
}

func TestSnapshotSharedAliasPrefersCategoryHead(t *testing.T) {
	t.Parallel()

	// "biryani curry" style menus often give a variant the bare category
	// word as an alias; the shared alias must route to the head so the
	// generic term triggers disambiguation.
	items := []Item{
		{ID: "cat", DisplayName: "Biryani", IsCategory: true},
		{ID: "leaf", DisplayName: "Chicken Biryani", Aliases: []string{"biryani"}, ParentID: "cat"},
	}
	s, err := NewSnapshot(items)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if it, ok := s.Resolve("biryani"); !ok || it.ID != "cat" {
		t.Errorf("Resolve(biryani) = %+v, want category head", it)
	}

	// Same menu with the category listed second.
	s, err = NewSnapshot([]Item{items[1], items[0]})
	if err != nil {
		t.Fatalf("NewSnapshot (reordered): %v", err)
	}
	if it, ok := s.Resolve("biryani"); !ok || it.ID != "cat" {
		t.Errorf("Resolve(biryani) reordered = %+v, want category head", it)
	}
}

func TestAliasesLongestFirst(t *testing.T) {
	t.Parallel()

	s, err := NewSnapshot(testItems())
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}

	entries := s.AliasesLongestFirst()
	for i := 1; i < len(entries); i++ {
		if len(entries[i-1].Alias) < len(entries[i].Alias) {
			t.Fatalf("aliases not longest-first at %d: %q before %q",
				i, entries[i-1].Alias, entries[i].Alias)
		}
	}

	// "garlic naan" must sort before the bare "naan".
	posGarlic, posNaan := -1, -1
	for i, e := range entries {
		switch e.Alias {
		case "garlic naan":
			posGarlic = i
		case "naan":
			posNaan = i
		}
	}
	if posGarlic == -1 || posNaan == -1 || posGarlic > posNaan {
		t.Errorf("garlic naan at %d, naan at %d; want garlic naan first", posGarlic, posNaan)
	}
}

func TestCanonicalAlias(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Garlic Naan", "garlic naan"},
		{"  Chicken,  Tikka!  ", "chicken tikka"},
		{"crème brûlée", "crème brûlée"},
		{"---", ""},
	}

	for _, tt := range tests {
		if got := CanonicalAlias(tt.in); got != tt.want {
			t.Errorf("CanonicalAlias(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
