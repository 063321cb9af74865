package deid

import (
	"fmt"
	"regexp"
	"slices"
)

// Class identifies which redaction pass produced a placeholder
type Class string

const (
	// ClassDate covers day/month/year and ISO dates
	ClassDate Class = "DATE"
	// ClassID covers accession numbers and patient ids
	ClassID Class = "ID"
	// ClassName covers names following a title or relation keyword
	ClassName Class = "NAME"
)

// Placeholder is a reserved token standing in for one redacted span
type Placeholder struct {
	ID       string `json:"id"`
	Class    Class  `json:"class"`
	Original string `json:"-"` // Never serialize the redacted span
}

// placeholderPattern is the reserved token grammar. The underscore in front
// of the index keeps \b-anchored digit patterns from matching inside a token.
var placeholderPattern = regexp.MustCompile(`\[\[PHI_[A-Z]+_[0-9]+\]\]`)

// Ledger is the ordered, append-only list of placeholders minted for a
// single request. The zero value is an empty ledger.
type Ledger struct {
	entries []Placeholder
}

// mint appends a placeholder for original and returns the extended ledger.
// The receiver is left untouched: the slice is clipped so the append always
// copies instead of writing into a shared backing array.
func (l Ledger) mint(class Class, original string) (Ledger, Placeholder) {
	p := Placeholder{
		ID:       formatToken(class, len(l.entries)+1),
		Class:    class,
		Original: original,
	}
	return Ledger{entries: append(slices.Clip(l.entries), p)}, p
}

// Len returns the number of placeholders in the ledger
func (l Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the placeholders in mint order
func (l Ledger) Entries() []Placeholder {
	return slices.Clone(l.entries)
}

// Lookup returns the placeholder with the given id
func (l Ledger) Lookup(id string) (Placeholder, bool) {
	for _, p := range l.entries {
		if p.ID == id {
			return p, true
		}
	}
	return Placeholder{}, false
}

// CountByClass returns how many placeholders each pass minted
func (l Ledger) CountByClass() map[Class]int {
	counts := make(map[Class]int)
	for _, p := range l.entries {
		counts[p.Class]++
	}
	return counts
}

// ContainsPlaceholder reports whether text contains anything shaped like a
// placeholder token.
func ContainsPlaceholder(text string) bool {
	return placeholderPattern.MatchString(text)
}

// FindPlaceholders returns every placeholder-shaped token in text, in order
// of appearance, including repeats.
func FindPlaceholders(text string) []string {
	return placeholderPattern.FindAllString(text, -1)
}

func formatToken(class Class, index int) string {
	return fmt.Sprintf("[[PHI_%s_%d]]", class, index)
}
