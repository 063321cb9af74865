package guard

// Status is the terminal state of a guarded request
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusBlocked  Status = "blocked"
)

// Outcome is the result of the decision policy. Exactly one of FinalText
// (accepted) or Suggestion (blocked) is meaningful.
type Outcome struct {
	Status     Status `json:"status"`
	FinalText  string `json:"-"`
	Suggestion string `json:"-"`
	Report     Report `json:"report"`

	// Overridden marks a blocked report accepted on the caller's request.
	// The report is kept for the audit trail.
	Overridden bool `json:"overridden"`
}

// Accepted reports whether the candidate was accepted
func (o Outcome) Accepted() bool {
	return o.Status == StatusAccepted
}

// Decide applies the acceptance policy to a guard report. A blocked
// candidate is never discarded: it is returned as the suggestion.
func Decide(report Report, candidate string, allowContentChanges bool) Outcome {
	switch {
	case !report.Blocked:
		return Outcome{Status: StatusAccepted, FinalText: candidate, Report: report}
	case allowContentChanges:
		return Outcome{Status: StatusAccepted, FinalText: candidate, Report: report, Overridden: true}
	default:
		return Outcome{Status: StatusBlocked, Suggestion: candidate, Report: report}
	}
}

// Response is the wire shape returned to existing callers
type Response struct {
	Blocked    bool     `json:"blocked"`
	Reasons    []string `json:"reasons,omitempty"`
	Diff       *Diff    `json:"diff,omitempty"`
	Answer     string   `json:"answer,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Response converts the outcome to its wire shape. Overridden outcomes are
// reported as accepted; their report lives in the audit trail.
func (o Outcome) Response() Response {
	if o.Accepted() {
		return Response{Blocked: false, Answer: o.FinalText}
	}

	diff := o.Report.Diff
	return Response{
		Blocked:    true,
		Reasons:    o.Report.Reasons,
		Diff:       &diff,
		Suggestion: o.Suggestion,
	}
}
