package normalize

import (
	"reflect"
	"testing"
)

func TestNormalizeLayerOrder(t *testing.T) {
	t.Parallel()

	rs := Ruleset{
		Rules: map[string][]Rule{
			LanguageAny: {
				{ID: "any-first", Pattern: `foo`, Replacement: "bar"},
			},
			"en": {
				// Operates on the output of the any layer, not the raw
				// input.
				{ID: "en-second", Pattern: `bar`, Replacement: "baz"},
			},
		},
	}
	p, err := NewPipeline(rs)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	got, trace := p.Normalize("en", "foo")
	if got != "baz" {
		t.Errorf("Normalize = %q, want %q", got, "baz")
	}
	if want := []string{"any-first", "en-second"}; !reflect.DeepEqual(trace.AppliedRules, want) {
		t.Errorf("AppliedRules = %v, want %v", trace.AppliedRules, want)
	}
	if !trace.Changed {
		t.Error("Changed = false, want true")
	}
}

func TestNormalizeOtherLanguageLayerSkipped(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(Ruleset{
		Rules: map[string][]Rule{
			"nl": {{ID: "nl-only", Pattern: `kip`, Replacement: "chicken"}},
		},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	got, trace := p.Normalize("en", "kip tikka")
	if got != "kip tikka" {
		t.Errorf("Normalize = %q, want input unchanged", got)
	}
	if trace.Changed {
		t.Error("Changed = true, want false")
	}
	if len(trace.AppliedRules) != 0 {
		t.Errorf("AppliedRules = %v, want empty", trace.AppliedRules)
	}
}

func TestNormalizeGatedCorrection(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(DefaultRuleset())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	tests := []struct {
		name     string
		language string
		in       string
		want     string
	}{
		{
			name:     "quantity cue fires correction",
			language: "en",
			in:       "two nan please",
			want:     "two naan please",
		},
		{
			name:     "intent cue fires correction",
			language: "en",
			in:       "i want a nan",
			want:     "i want a naan",
		},
		{
			name:     "no cue preserves literal text",
			language: "en",
			in:       "my nan is visiting tomorrow",
			want:     "my nan is visiting tomorrow",
		},
		{
			name:     "dutch quantity cue",
			language: "nl",
			in:       "twee nan alsjeblieft",
			want:     "twee naan alsjeblieft",
		},
		{
			name:     "cue from other language does not gate",
			language: "nl",
			in:       "i want a nan",
			want:     "i want a nan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, _ := p.Normalize(tt.language, tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q, %q) = %q, want %q", tt.language, tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTraceRecordsGatedRule(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(DefaultRuleset())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	_, trace := p.Normalize("en", "two nan")
	found := false
	for _, id := range trace.AppliedRules {
		if id == "en-nan-naan" {
			found = true
		}
	}
	if !found {
		t.Errorf("AppliedRules = %v, want to contain en-nan-naan", trace.AppliedRules)
	}
	if trace.Raw != "two nan" || trace.Normalized != "two naan" {
		t.Errorf("trace = %+v, want raw/normalized recorded", trace)
	}
}

func TestNewPipelineRejectsBadRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rs   Ruleset
	}{
		{
			name: "missing id",
			rs: Ruleset{Rules: map[string][]Rule{
				"en": {{Pattern: `x`, Replacement: "y"}},
			}},
		},
		{
			name: "invalid pattern",
			rs: Ruleset{Rules: map[string][]Rule{
				"en": {{ID: "bad", Pattern: `(`, Replacement: "y"}},
			}},
		},
		{
			name: "gated rule without cues",
			rs: Ruleset{Gated: map[string][]GatedRule{
				"en": {{Rule: Rule{ID: "g", Pattern: `x`, Replacement: "y"}}},
			}},
		},
		{
			name: "gated rule with invalid cue",
			rs: Ruleset{Gated: map[string][]GatedRule{
				"en": {{Rule: Rule{ID: "g", Pattern: `x`, Replacement: "y"}, Cues: []string{`(`}}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewPipeline(tt.rs); err == nil {
				t.Error("NewPipeline succeeded, want error")
			}
		})
	}
}
