// Package audit keeps a PHI-free trail of guard decisions. Records hold the
// guard report, placeholder counts and reinsertion anomalies, never report
// text or original values.
package audit

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/raaihank/report-sentinel/internal/deid"
	"github.com/raaihank/report-sentinel/internal/guard"
)

// Record statuses. StatusFailed marks a request whose rewrite call failed.
const (
	StatusAccepted = string(guard.StatusAccepted)
	StatusBlocked  = string(guard.StatusBlocked)
	StatusFailed   = "failed"
)

// Record is one audited request
type Record struct {
	ID        int64     `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"requestId"`
	Status    string    `db:"status" json:"status"`
	Provider  string    `db:"provider" json:"provider"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`

	// Guard report
	Blocked            bool           `db:"blocked" json:"blocked"`
	Overridden         bool           `db:"overridden" json:"overridden"`
	Reasons            pq.StringArray `db:"reasons" json:"reasons"`
	AddedNumbers       pq.StringArray `db:"added_numbers" json:"addedNumbers"`
	RemovedNumbers     pq.StringArray `db:"removed_numbers" json:"removedNumbers"`
	LateralityChanged  bool           `db:"laterality_changed" json:"lateralityChanged"`
	NewMedicalKeywords pq.StringArray `db:"new_medical_keywords" json:"newMedicalKeywords"`

	// Ledger and reinsertion
	DateCount              int            `db:"date_count" json:"dateCount"`
	IDCount                int            `db:"id_count" json:"idCount"`
	NameCount              int            `db:"name_count" json:"nameCount"`
	MissingPlaceholders    pq.StringArray `db:"missing_placeholders" json:"missingPlaceholders,omitempty"`
	DuplicatedPlaceholders pq.StringArray `db:"duplicated_placeholders" json:"duplicatedPlaceholders,omitempty"`
	UnknownPlaceholders    pq.StringArray `db:"unknown_placeholders" json:"unknownPlaceholders,omitempty"`

	Error      string `db:"error" json:"error,omitempty"`
	DurationMS int64  `db:"duration_ms" json:"durationMs"`
}

// PlaceholderCount is the ledger size of the audited request
func (r Record) PlaceholderCount() int {
	return r.DateCount + r.IDCount + r.NameCount
}

// Sink stores and retrieves audit records
type Sink interface {
	Record(ctx context.Context, r *Record) error
	ListByRequest(ctx context.Context, requestID string) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// NewRecord builds the audit record of a decided request
func NewRecord(requestID, provider string, outcome guard.Outcome, ledger deid.Ledger, reinsertion deid.Reinsertion, duration time.Duration) *Record {
	r := newBaseRecord(requestID, provider, ledger, duration)
	r.Status = string(outcome.Status)
	r.Overridden = outcome.Overridden

	report := outcome.Report
	r.Blocked = report.Blocked
	r.Reasons = pq.StringArray(report.Reasons)
	r.AddedNumbers = pq.StringArray(report.AddedNumbers)
	r.RemovedNumbers = pq.StringArray(report.RemovedNumbers)
	r.LateralityChanged = report.LateralityChanged
	r.NewMedicalKeywords = pq.StringArray(report.NewMedicalKeywords)

	r.MissingPlaceholders = pq.StringArray(reinsertion.Missing)
	r.DuplicatedPlaceholders = pq.StringArray(reinsertion.Duplicated)
	r.UnknownPlaceholders = pq.StringArray(reinsertion.Unknown)
	return r
}

// NewFailureRecord builds the audit record of a request whose rewrite failed
func NewFailureRecord(requestID, provider string, ledger deid.Ledger, cause error, duration time.Duration) *Record {
	r := newBaseRecord(requestID, provider, ledger, duration)
	r.Status = StatusFailed
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}

func newBaseRecord(requestID, provider string, ledger deid.Ledger, duration time.Duration) *Record {
	counts := ledger.CountByClass()
	return &Record{
		RequestID:  requestID,
		Provider:   provider,
		DateCount:  counts[deid.ClassDate],
		IDCount:    counts[deid.ClassID],
		NameCount:  counts[deid.ClassName],
		DurationMS: duration.Milliseconds(),
	}
}
