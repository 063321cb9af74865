// Package deid implements the reversible de-identification transform applied
// to report text before it leaves the trust boundary.
package deid

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultNameKeywords are the title and relation words that introduce a name
var DefaultNameKeywords = []string{
	"Patient", "Patientin", "Herr", "Frau", "Name",
	"Mr", "Mrs", "Ms",
}

var (
	// Day/month/year with '.', '/' or '-' separators, and ISO yyyy-mm-dd.
	// An ISO date may run straight into a time part (2024-03-12T10:15); the
	// date is group 1 so the T stays in the text.
	datePattern = regexp.MustCompile(`\b(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[./-]\d{1,2}[./-](?:\d{4}|\d{2}))(?:\b|T)`)

	// Accession numbers and patient ids. A 13+ digit run never matches.
	longNumberPattern = regexp.MustCompile(`\b\d{6,12}\b`)

	// One name word: starts upper case and has at least one lower case
	// letter, so inner capitals (McDonald, DeLuca, O'Neill) and hyphenated
	// parts (Müller-Lüdenscheidt) are taken whole while acronyms (CT, MRT) are not.
	// The letter runs are greedy: a match always ends at a non-letter.
	nameLetters = `[\p{L}\p{M}]*\p{Ll}[\p{L}\p{M}]*`
	nameWord    = `(?:\p{Lu}['’])?\p{Lu}` + nameLetters + `(?:-\p{Lu}` + nameLetters + `)*`

	// Academic titles between the keyword and the name (Herr Prof. Dr. med. Meier)
	nameTitles = `(?:(?:Dr|Prof|med|Dipl|PD)(?:\.[ \t]*|[ \t]+))*`
)

// Result is the output of a redaction run
type Result struct {
	Text   string
	Ledger Ledger
}

// pass is one lexical redaction step. find returns the [start, end) byte
// spans to replace, in ascending order.
type pass struct {
	class Class
	find  func(text string) [][2]int
}

// Redactor runs a fixed, ordered sequence of passes over a text. It holds
// only compiled patterns and is safe for concurrent use.
type Redactor struct {
	passes []pass
}

// NewRedactor builds a redactor whose name pass is triggered by keywords.
// An empty keyword list falls back to DefaultNameKeywords.
func NewRedactor(keywords []string) (*Redactor, error) {
	if len(keywords) == 0 {
		keywords = DefaultNameKeywords
	}

	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			return nil, fmt.Errorf("empty name keyword")
		}
		quoted = append(quoted, keywordPattern(kw))
	}

	namePattern, err := regexp.Compile(
		`(?:` + strings.Join(quoted, "|") + `):?[ \t]+` + nameTitles + `(` + nameWord + `(?:[ \t]+` + nameWord + `)?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile name pattern: %w", err)
	}

	return &Redactor{
		passes: []pass{
			// Dates first: a date is also a digit run with separators.
			{class: ClassDate, find: groupMatches(datePattern, 1)},
			{class: ClassID, find: wholeMatches(longNumberPattern)},
			// Only the captured name is replaced, the keyword stays.
			{class: ClassName, find: groupMatches(namePattern, 1)},
		},
	}, nil
}

// Redact replaces sensitive spans with placeholders and returns the
// redacted text together with the ledger needed to reverse it. Ledger
// indices follow the order of the spans in the source text.
func (r *Redactor) Redact(text string) Result {
	var ledger Ledger
	for _, p := range r.passes {
		text, ledger = p.apply(text, ledger)
	}
	text, ledger = renumber(text, ledger)
	return Result{Text: text, Ledger: ledger}
}

// renumber re-mints the placeholders of ledger in order of appearance in
// text. Replacing a span keeps its position relative to the others, so this
// is the order of first match in the source. Tokens not in ledger are left
// alone.
func renumber(text string, ledger Ledger) (string, Ledger) {
	if ledger.Len() < 2 {
		return text, ledger
	}

	byID := make(map[string]Placeholder, ledger.Len())
	for _, p := range ledger.entries {
		byID[p.ID] = p
	}

	var out Ledger
	newIDs := make(map[string]string, ledger.Len())
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(text, -1) {
		old := text[loc[0]:loc[1]]
		p, ok := byID[old]
		if !ok {
			continue
		}
		id, seen := newIDs[old]
		if !seen {
			var minted Placeholder
			out, minted = out.mint(p.Class, p.Original)
			id = minted.ID
			newIDs[old] = id
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(id)
		last = loc[1]
	}
	b.WriteString(text[last:])

	return b.String(), out
}

// apply runs one pass. Spans overlapping a placeholder minted by an earlier
// pass are skipped, so a redacted span is never redacted twice.
func (p pass) apply(text string, ledger Ledger) (string, Ledger) {
	spans := p.find(text)
	if len(spans) == 0 {
		return text, ledger
	}

	reserved := placeholderPattern.FindAllStringIndex(text, -1)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, span := range spans {
		if span[0] < last || overlapsAny(span, reserved) {
			continue
		}
		var ph Placeholder
		ledger, ph = ledger.mint(p.class, text[span[0]:span[1]])
		b.WriteString(text[last:span[0]])
		b.WriteString(ph.ID)
		last = span[1]
	}
	b.WriteString(text[last:])

	return b.String(), ledger
}

// keywordPattern anchors a keyword with \b only on the sides that are word
// characters, so "Dr." still matches before a space.
func keywordPattern(kw string) string {
	pat := regexp.QuoteMeta(kw)
	if isWordByte(kw[0]) {
		pat = `\b` + pat
	}
	if isWordByte(kw[len(kw)-1]) {
		pat += `\b`
	}
	return pat
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func wholeMatches(re *regexp.Regexp) func(string) [][2]int {
	return func(text string) [][2]int {
		var spans [][2]int
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
		return spans
	}
}

func groupMatches(re *regexp.Regexp, group int) func(string) [][2]int {
	return func(text string) [][2]int {
		var spans [][2]int
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*group], loc[2*group+1]
			if start < 0 || end <= start {
				continue
			}
			spans = append(spans, [2]int{start, end})
		}
		return spans
	}
}

func overlapsAny(span [2]int, reserved [][]int) bool {
	for _, r := range reserved {
		if span[0] < r[1] && r[0] < span[1] {
			return true
		}
	}
	return false
}
