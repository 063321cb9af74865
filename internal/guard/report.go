package guard

// Fixed reason sentences, always emitted in this order
const (
	ReasonNumbers    = "Numeric values differ between the original and the rewritten report."
	ReasonLaterality = "Laterality terms (left/right) were added to or removed from the report."
	ReasonKeywords   = "The rewritten report introduces findings not present in the original."
)

// Diff holds the per-category drift between two texts. Field names are
// part of the wire format.
type Diff struct {
	AddedNumbers       []string `json:"addedNumbers"`
	RemovedNumbers     []string `json:"removedNumbers"`
	LateralityChanged  bool     `json:"lateralityChanged"`
	NewMedicalKeywords []string `json:"newMedicalKeywords"`
}

// Report is the guard verdict for one (original, candidate) pair. It is a
// value derived by Engine.Diff and is not modified afterwards.
type Report struct {
	Diff
	Blocked bool     `json:"blocked"`
	Reasons []string `json:"reasons"`
}

// newReport aggregates the category results into a report
func newReport(d Diff) Report {
	r := Report{Diff: d, Reasons: []string{}}

	if len(d.AddedNumbers) > 0 || len(d.RemovedNumbers) > 0 {
		r.Reasons = append(r.Reasons, ReasonNumbers)
	}
	if d.LateralityChanged {
		r.Reasons = append(r.Reasons, ReasonLaterality)
	}
	if len(d.NewMedicalKeywords) > 0 {
		r.Reasons = append(r.Reasons, ReasonKeywords)
	}

	r.Blocked = len(r.Reasons) > 0
	return r
}
