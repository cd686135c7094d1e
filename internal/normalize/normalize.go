// Package normalize rewrites raw STT transcripts into the canonical form
// the deterministic parser expects.
//
// Two rule layers run in fixed order: language-agnostic rules (keyed "*")
// and rules for the resolved language. A separate gated layer corrects
// ambiguous homophones, firing only when the utterance carries an
// ordering cue. Every pass produces a [Trace] recording which named rules
// fired, in order, for observability and regression testing; the trace
// stores rule identifiers only, never regex objects, so it stays
// serializable.
package normalize

import "strings"

// Trace records one normalization pass over one utterance. Immutable
// once returned.
type Trace struct {
	// Raw is the transcript as received from STT.
	Raw string `json:"raw"`

	// Normalized is the rewritten transcript.
	Normalized string `json:"normalized"`

	// Changed reports whether any rule altered the text.
	Changed bool `json:"changed"`

	// AppliedRules lists the IDs of the rules that fired, in order.
	AppliedRules []string `json:"applied_rules,omitempty"`
}

// Pipeline applies a compiled tenant ruleset. Safe for concurrent use
// once constructed; compiled state is read-only.
type Pipeline struct {
	layers map[string][]compiledRule
	gated  map[string][]compiledGated
}

// NewPipeline compiles rs into a Pipeline. Every rule pattern and cue is
// validated here so a bad tenant rule fails at session start, not
// mid-conversation.
func NewPipeline(rs Ruleset) (*Pipeline, error) {
	p := &Pipeline{
		layers: make(map[string][]compiledRule, len(rs.Rules)),
		gated:  make(map[string][]compiledGated, len(rs.Gated)),
	}
	for lang, rules := range rs.Rules {
		for _, r := range rules {
			c, err := compileRule(r)
			if err != nil {
				return nil, err
			}
			p.layers[lang] = append(p.layers[lang], c)
		}
	}
	for lang, rules := range rs.Gated {
		for _, g := range rules {
			c, err := compileGated(g)
			if err != nil {
				return nil, err
			}
			p.gated[lang] = append(p.gated[lang], c)
		}
	}
	return p, nil
}

// Normalize rewrites raw for the given language and returns the result
// with its trace. The language-agnostic layer runs first, then the
// language layer, then the gated corrections in the same layer order.
func (p *Pipeline) Normalize(language, raw string) (string, Trace) {
	text := strings.TrimSpace(raw)
	trace := Trace{Raw: raw}

	for _, layer := range []string{LanguageAny, language} {
		for _, rule := range p.layers[layer] {
			out := rule.re.ReplaceAllString(text, rule.repl)
			if out != text {
				trace.AppliedRules = append(trace.AppliedRules, rule.id)
				text = out
			}
		}
	}

	for _, layer := range []string{LanguageAny, language} {
		for _, rule := range p.gated[layer] {
			if !rule.cueMatches(text) {
				continue
			}
			out := rule.re.ReplaceAllString(text, rule.repl)
			if out != text {
				trace.AppliedRules = append(trace.AppliedRules, rule.id)
				text = out
			}
		}
	}

	trace.Normalized = text
	trace.Changed = text != raw
	return text, trace
}

func (g compiledGated) cueMatches(text string) bool {
	for _, cue := range g.cues {
		if cue.MatchString(text) {
			return true
		}
	}
	return false
}
