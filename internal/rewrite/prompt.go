package rewrite

import (
	"fmt"
	"strings"

	"github.com/raaihank/report-sentinel/internal/deid"
)

var styleHints = map[string]string{
	"concise":    "Keep the report short. Remove redundant phrasing.",
	"structured": "Use short labelled sections such as Findings and Impression.",
	"formal":     "Use formal radiological terminology.",
}

var languageNames = map[string]string{
	"de": "German",
	"en": "English",
}

// BuildInstructions turns caller options into a system prompt. When the
// ledger holds placeholders, a legend is appended telling the model to keep
// them verbatim.
func BuildInstructions(opts Options, defaultLanguage string, ledger deid.Ledger) Instructions {
	var b strings.Builder

	b.WriteString("You are an assistant that edits radiology reports for style and terminology.\n")
	b.WriteString("Do not change measurements, numbers, laterality or findings. Do not add diagnoses.\n")

	lang := opts.Language
	if lang == "" {
		lang = defaultLanguage
	}
	if name, ok := languageNames[lang]; ok {
		fmt.Fprintf(&b, "Answer in %s.\n", name)
	} else if lang != "" {
		fmt.Fprintf(&b, "Answer in the language with code %q.\n", lang)
	}

	if hint, ok := styleHints[strings.ToLower(opts.Style)]; ok {
		b.WriteString(hint + "\n")
	}
	if opts.Restructure {
		b.WriteString("You may reorder sentences so that related findings are grouped.\n")
	} else {
		b.WriteString("Keep the original order of sentences.\n")
	}
	if opts.Commentary {
		b.WriteString("After the report, add a separate section headed \"Comment\" with brief remarks on clarity.\n")
	} else {
		b.WriteString("Return only the edited report, without commentary.\n")
	}

	if legend := Legend(ledger); legend != "" {
		b.WriteString("\n")
		b.WriteString(legend)
	}

	return Instructions{System: b.String()}
}

// Legend lists the placeholders of a ledger by class. It never includes
// the original values.
func Legend(ledger deid.Ledger) string {
	if ledger.Len() == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("IMPORTANT: Patient data in the report is replaced with tokens like [[PHI_NAME_1]].\n")
	b.WriteString("Copy every token exactly once and unchanged. Do not invent values for them.\n\n")
	b.WriteString("Token legend:\n")
	for _, p := range ledger.Entries() {
		fmt.Fprintf(&b, "  %s = [%s]\n", p.ID, strings.ToLower(string(p.Class)))
	}
	return b.String()
}
