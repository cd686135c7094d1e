package normalize

import (
	"fmt"
	"regexp"
)

// LanguageAny is the rule-layer key for language-agnostic rules. The any
// layer always runs before the layer of the resolved language.
const LanguageAny = "*"

// Rule is one tenant-configured rewrite. Rules run in listed order, each
// operating on the cumulative output of the rules before it.
type Rule struct {
	// ID names the rule in traces. Required and unique per ruleset.
	ID string `yaml:"id"`

	// Pattern is an RE2 regular expression matched against the text.
	Pattern string `yaml:"pattern"`

	// Replacement is the substitution text. $1-style group references
	// are expanded.
	Replacement string `yaml:"replacement"`

	// CaseInsensitive makes the pattern match regardless of case.
	CaseInsensitive bool `yaml:"case_insensitive"`
}

// GatedRule is a homophone correction that fires only when the utterance
// carries a contextual cue — a quantity word or an explicit ordering
// phrase. Without a cue the literal text is preserved, so a common word
// that merely sounds like a menu term never corrupts unrelated sentences.
type GatedRule struct {
	Rule `yaml:",inline"`

	// Cues are RE2 patterns; the rule is eligible when at least one cue
	// matches anywhere in the current text. Matched case-insensitively.
	Cues []string `yaml:"cues"`
}

// Ruleset is the tenant normalization configuration: plain rule layers
// and gated correction layers, both keyed by language ("*" for the
// language-agnostic layer).
type Ruleset struct {
	Rules map[string][]Rule      `yaml:"rules"`
	Gated map[string][]GatedRule `yaml:"gated"`
}

type compiledRule struct {
	id   string
	re   *regexp.Regexp
	repl string
}

type compiledGated struct {
	compiledRule
	cues []*regexp.Regexp
}

func compileRule(r Rule) (compiledRule, error) {
	if r.ID == "" {
		return compiledRule{}, fmt.Errorf("normalize: rule with pattern %q has no id", r.Pattern)
	}
	pattern := r.Pattern
	if r.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return compiledRule{}, fmt.Errorf("normalize: rule %q: %w", r.ID, err)
	}
	return compiledRule{id: r.ID, re: re, repl: r.Replacement}, nil
}

func compileGated(g GatedRule) (compiledGated, error) {
	base, err := compileRule(g.Rule)
	if err != nil {
		return compiledGated{}, err
	}
	if len(g.Cues) == 0 {
		return compiledGated{}, fmt.Errorf("normalize: gated rule %q has no cues", g.ID)
	}
	out := compiledGated{compiledRule: base}
	for _, cue := range g.Cues {
		re, err := regexp.Compile("(?i)" + cue)
		if err != nil {
			return compiledGated{}, fmt.Errorf("normalize: gated rule %q cue %q: %w", g.ID, cue, err)
		}
		out.cues = append(out.cues, re)
	}
	return out, nil
}

// DefaultRuleset returns the built-in rules used when a tenant supplies
// none: whitespace cleanup plus a handful of STT homophone fixes for the
// English and Dutch menus.
func DefaultRuleset() Ruleset {
	return Ruleset{
		Rules: map[string][]Rule{
			LanguageAny: {
				{ID: "collapse-whitespace", Pattern: `\s+`, Replacement: " "},
			},
			"en": {
				{ID: "en-biriyani", Pattern: `\bbiri?yani\b`, Replacement: "biryani", CaseInsensitive: true},
			},
			"nl": {
				{ID: "nl-birjani", Pattern: `\bbirjani\b`, Replacement: "biryani", CaseInsensitive: true},
			},
		},
		Gated: map[string][]GatedRule{
			"en": {
				{
					Rule: Rule{ID: "en-nan-naan", Pattern: `\bnans?\b`, Replacement: "naan", CaseInsensitive: true},
					Cues: []string{
						`\b(one|two|three|four|five|six|seven|eight|nine|ten)\b`,
						`\b\d+\b`,
						`\b(i(?:'d| would)? like|i want|can i (?:get|have)|add|order)\b`,
					},
				},
			},
			"nl": {
				{
					Rule: Rule{ID: "nl-nan-naan", Pattern: `\bnans?\b`, Replacement: "naan", CaseInsensitive: true},
					Cues: []string{
						`\b(een|twee|drie|vier|vijf|zes|zeven|acht|negen|tien)\b`,
						`\b\d+\b`,
						`\b(ik wil|mag ik|doe maar|graag)\b`,
					},
				},
			},
		},
	}
}
