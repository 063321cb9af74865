// Package guard compares an original report with a rewritten candidate and
// decides whether the candidate may be accepted.
//
// The checks are lexical: numbers, presence of left/right terms and
// introduction of high-risk diagnostic stems. They are a safety net for
// silent drift, not a clinical validator.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// Integer or decimal, '.' or ',' as decimal separator.
var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// Word start/end for terms that may contain non-ASCII letters. Go's \b is
// ASCII only, which would split "Ödem" and "rechtsseitig" wrongly.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

type keywordMatcher struct {
	name    string
	pattern *regexp.Regexp
}

// Engine runs the guard checks. It holds only compiled patterns and is safe
// for concurrent use.
type Engine struct {
	lateral  *regexp.Regexp
	keywords []keywordMatcher
}

// NewEngine compiles a vocabulary into an engine
func NewEngine(v Vocabulary) (*Engine, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vocabulary: %w", err)
	}

	e := &Engine{}

	if len(v.LateralTerms) > 0 {
		re, err := regexp.Compile(`(?i)` + wordStart + `(?:` + alternation(v.LateralTerms) + `)` + wordEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to compile lateral terms: %w", err)
		}
		e.lateral = re
	}

	for _, kw := range v.MedicalKeywords {
		re, err := regexp.Compile(`(?i)` + wordStart + `(?:` + alternation(kw.Stems) + `)`)
		if err != nil {
			return nil, fmt.Errorf("failed to compile keyword %q: %w", kw.Name, err)
		}
		e.keywords = append(e.keywords, keywordMatcher{name: strings.ToLower(kw.Name), pattern: re})
	}

	return e, nil
}

// Diff compares original with candidate. It is deterministic: the same
// inputs always produce the same report, reasons included.
func (e *Engine) Diff(original, candidate string) Report {
	origNumbers := extractNumbers(original)
	candNumbers := extractNumbers(candidate)

	d := Diff{
		AddedNumbers:       difference(candNumbers, origNumbers),
		RemovedNumbers:     difference(origNumbers, candNumbers),
		LateralityChanged:  e.hasLateral(original) != e.hasLateral(candidate),
		NewMedicalKeywords: e.newKeywords(original, candidate),
	}

	return newReport(d)
}

// hasLateral is presence-only: moving a term between sentences, or swapping
// "links" for "rechts", does not change the result.
func (e *Engine) hasLateral(text string) bool {
	if e.lateral == nil {
		return false
	}
	return e.lateral.MatchString(text)
}

// newKeywords returns the canonical names present in candidate and absent
// from original, in vocabulary order. Removals are not reported.
func (e *Engine) newKeywords(original, candidate string) []string {
	original = normalizeSpace(original)
	candidate = normalizeSpace(candidate)

	added := []string{}
	for _, kw := range e.keywords {
		if kw.pattern.MatchString(candidate) && !kw.pattern.MatchString(original) {
			added = append(added, kw.name)
		}
	}
	return added
}

// extractNumbers returns the distinct number tokens of text in order of
// first appearance. Tokens are compared as strings: "5.0" and "5" differ.
func extractNumbers(text string) []string {
	var numbers []string
	seen := make(map[string]bool)
	for _, tok := range numberPattern.FindAllString(text, -1) {
		tok = strings.ReplaceAll(tok, ",", ".")
		if seen[tok] {
			continue
		}
		seen[tok] = true
		numbers = append(numbers, tok)
	}
	return numbers
}

// difference returns the elements of a not in b, preserving a's order
func difference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}

	out := []string{}
	for _, s := range a {
		if !inB[s] {
			out = append(out, s)
		}
	}
	return out
}

func alternation(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, regexp.QuoteMeta(strings.TrimSpace(t)))
	}
	return strings.Join(quoted, "|")
}

func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
