package deid

import "strings"

// Reinsertion describes how a rewritten candidate related to the ledger
type Reinsertion struct {
	Text string `json:"-"`

	// Missing lists ledger ids the rewriter dropped. The span is lost
	// from the candidate, which the guard may or may not notice.
	Missing []string `json:"missing,omitempty"`

	// Duplicated lists ledger ids that appeared more than once
	Duplicated []string `json:"duplicated,omitempty"`

	// Unknown lists placeholder-shaped tokens with no ledger entry.
	// They are left verbatim in Text.
	Unknown []string `json:"unknown,omitempty"`
}

// HasAnomalies reports whether the candidate contained tokens the ledger
// never issued.
func (r Reinsertion) HasAnomalies() bool {
	return len(r.Unknown) > 0
}

// Clean reports whether every ledger id appeared exactly once and no
// unknown token was found
func (r Reinsertion) Clean() bool {
	return len(r.Missing) == 0 && len(r.Duplicated) == 0 && len(r.Unknown) == 0
}

// Reinsert restores every placeholder in text from the ledger
func Reinsert(text string, ledger Ledger) string {
	return ReinsertWithReport(text, ledger).Text
}

// ReinsertWithReport restores every occurrence of every ledger id and
// reports dropped, duplicated and unknown tokens. Replacement order does not
// matter: ids are closed by "]]" so no id is a prefix of another.
func ReinsertWithReport(text string, ledger Ledger) Reinsertion {
	var r Reinsertion

	seenUnknown := make(map[string]bool)
	for _, tok := range FindPlaceholders(text) {
		if _, ok := ledger.Lookup(tok); ok || seenUnknown[tok] {
			continue
		}
		seenUnknown[tok] = true
		r.Unknown = append(r.Unknown, tok)
	}

	for _, p := range ledger.entries {
		switch n := strings.Count(text, p.ID); {
		case n == 0:
			r.Missing = append(r.Missing, p.ID)
			continue
		case n > 1:
			r.Duplicated = append(r.Duplicated, p.ID)
		}
		text = strings.ReplaceAll(text, p.ID, p.Original)
	}

	r.Text = text
	return r
}
