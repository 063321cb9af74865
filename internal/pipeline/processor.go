// Package pipeline runs a report through redaction, rewriting, reinsertion,
// the guard and the decision policy. It is the single entry point shared by
// the HTTP server and the command line tools.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/audit"
	"github.com/raaihank/report-sentinel/internal/deid"
	"github.com/raaihank/report-sentinel/internal/guard"
	"github.com/raaihank/report-sentinel/internal/logger"
	"github.com/raaihank/report-sentinel/internal/rewrite"
	"github.com/raaihank/report-sentinel/internal/websocket"
)

// Stage is a step of the request state machine
type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageRedacted         Stage = "REDACTED"
	StageRewritten        Stage = "REWRITTEN"
	StageReinserted       Stage = "REINSERTED"
	StageGuarded          Stage = "GUARDED"
	StageBlockedForReview Stage = "BLOCKED_FOR_REVIEW"
	StageAccepted         Stage = "ACCEPTED"
	StageFailed           Stage = "FAILED"
)

// Request is one report submitted for rewriting
type Request struct {
	RequestID           string          `json:"-"`
	Text                string          `json:"text"`
	AllowContentChanges bool            `json:"allowContentChanges"`
	Options             rewrite.Options `json:"options"`
}

// Publisher receives live events. The websocket hub implements it.
type Publisher interface {
	PublishDecision(websocket.DecisionEvent)
	PublishAnomaly(websocket.AnomalyEvent)
}

// Config contains processing limits
type Config struct {
	MaxTextLength   int
	RewriteTimeout  time.Duration
	DefaultLanguage string
}

// Processor is safe for concurrent use. The guard engine can be swapped at
// runtime when the vocabulary is reloaded.
type Processor struct {
	redactor  *deid.Redactor
	engine    atomic.Pointer[guard.Engine]
	provider  rewrite.Provider
	sink      audit.Sink
	publisher Publisher
	config    Config
	logger    *logger.Logger
}

// NewProcessor wires the pipeline. publisher may be nil.
func NewProcessor(
	redactor *deid.Redactor,
	engine *guard.Engine,
	provider rewrite.Provider,
	sink audit.Sink,
	publisher Publisher,
	config Config,
	log *logger.Logger,
) *Processor {
	p := &Processor{
		redactor:  redactor,
		provider:  provider,
		sink:      sink,
		publisher: publisher,
		config:    config,
		logger:    log.WithComponent("pipeline"),
	}
	p.engine.Store(engine)
	return p
}

// SetEngine replaces the guard engine for subsequent requests
func (p *Processor) SetEngine(engine *guard.Engine) {
	p.engine.Store(engine)
}

// Guard compares two texts with the current engine. No provider is called.
func (p *Processor) Guard(original, candidate string) guard.Report {
	return p.engine.Load().Diff(original, candidate)
}

// Audit returns the audit records of a request
func (p *Processor) Audit(ctx context.Context, requestID string) ([]audit.Record, error) {
	return p.sink.ListByRequest(ctx, requestID)
}

// Provider returns the name of the rewrite provider
func (p *Processor) Provider() string {
	return p.provider.Name()
}

// Process runs one request through the pipeline. A blocked candidate is a
// normal outcome, not an error. Errors are *ValidationError or
// *RewriteProviderError.
func (p *Processor) Process(ctx context.Context, req Request) (guard.Outcome, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	log := p.logger.WithRequestID(req.RequestID)

	if err := p.validate(req.Text); err != nil {
		log.Info("Request rejected", zap.Error(err))
		return guard.Outcome{}, err
	}
	logStage(log, StageReceived, zap.Int("length", utf8.RuneCountInString(req.Text)))

	redacted := p.redactor.Redact(req.Text)
	counts := redacted.Ledger.CountByClass()
	logStage(log, StageRedacted,
		zap.Int("placeholders", redacted.Ledger.Len()),
		zap.Int("dates", counts[deid.ClassDate]),
		zap.Int("ids", counts[deid.ClassID]),
		zap.Int("names", counts[deid.ClassName]))

	instructions := rewrite.BuildInstructions(req.Options, p.config.DefaultLanguage, redacted.Ledger)
	candidate, err := p.rewrite(ctx, redacted.Text, instructions)
	if err != nil {
		logStage(log, StageFailed)
		log.Warn("Rewrite failed", zap.String("provider", p.provider.Name()), zap.Error(err))
		p.record(ctx, log, audit.NewFailureRecord(req.RequestID, p.provider.Name(), redacted.Ledger, err, time.Since(start)))
		return guard.Outcome{}, &RewriteProviderError{Provider: p.provider.Name(), Err: err}
	}
	logStage(log, StageRewritten)

	reinsertion := deid.ReinsertWithReport(candidate, redacted.Ledger)
	logStage(log, StageReinserted)
	if !reinsertion.Clean() {
		p.reportAnomaly(log, req.RequestID, reinsertion)
	}

	report := p.engine.Load().Diff(req.Text, reinsertion.Text)
	logStage(log, StageGuarded, zap.Bool("blocked", report.Blocked))

	outcome := guard.Decide(report, reinsertion.Text, req.AllowContentChanges)
	switch {
	case !outcome.Accepted():
		logStage(log, StageBlockedForReview, zap.Strings("reasons", report.Reasons))
	case outcome.Overridden:
		log.Info("Guard override accepted", zap.Strings("reasons", report.Reasons))
		logStage(log, StageAccepted)
	default:
		logStage(log, StageAccepted)
	}

	duration := time.Since(start)
	p.record(ctx, log, audit.NewRecord(req.RequestID, p.provider.Name(), outcome, redacted.Ledger, reinsertion, duration))
	p.publishDecision(req.RequestID, outcome, redacted.Ledger.Len(), duration)

	return outcome, nil
}

func (p *Processor) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(text); n > p.config.MaxTextLength {
		return &ValidationError{Field: "text", Reason: "exceeds the maximum length"}
	}
	if deid.ContainsPlaceholder(text) {
		return &ValidationError{Field: "text", Reason: "contains reserved placeholder tokens"}
	}
	return nil
}

// rewrite calls the provider under the configured deadline
func (p *Processor) rewrite(ctx context.Context, text string, in rewrite.Instructions) (string, error) {
	if p.config.RewriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RewriteTimeout)
		defer cancel()
	}

	candidate, err := p.provider.Rewrite(ctx, text, in)
	if err == nil && strings.TrimSpace(candidate) == "" {
		err = rewrite.ErrEmptyCompletion
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		// Some clients hide the context error behind their own
		err = errors.Join(err, ctx.Err())
	}
	return candidate, err
}

func (p *Processor) reportAnomaly(log *logger.Logger, requestID string, r deid.Reinsertion) {
	fields := []zap.Field{
		zap.Strings("missing", r.Missing),
		zap.Strings("duplicated", r.Duplicated),
		zap.Strings("unknown", r.Unknown),
	}
	if r.HasAnomalies() {
		log.Warn("Reinsertion anomaly: unknown placeholders left verbatim", fields...)
	} else {
		log.Info("Placeholders not preserved one-to-one by the rewrite", fields...)
	}

	if p.publisher != nil {
		p.publisher.PublishAnomaly(websocket.AnomalyEvent{
			RequestID:  requestID,
			Missing:    r.Missing,
			Duplicated: r.Duplicated,
			Unknown:    r.Unknown,
		})
	}
}

// record writes the audit entry. A failing sink is logged, not fatal.
func (p *Processor) record(ctx context.Context, log *logger.Logger, r *audit.Record) {
	if err := p.sink.Record(context.WithoutCancel(ctx), r); err != nil {
		log.Error("Failed to write audit record", zap.Error(err))
	}
}

func (p *Processor) publishDecision(requestID string, o guard.Outcome, placeholders int, duration time.Duration) {
	if p.publisher == nil {
		return
	}
	p.publisher.PublishDecision(websocket.DecisionEvent{
		RequestID:          requestID,
		Status:             string(o.Status),
		Blocked:            o.Report.Blocked,
		Overridden:         o.Overridden,
		Reasons:            o.Report.Reasons,
		AddedNumbers:       len(o.Report.AddedNumbers),
		RemovedNumbers:     len(o.Report.RemovedNumbers),
		LateralityChanged:  o.Report.LateralityChanged,
		NewMedicalKeywords: o.Report.NewMedicalKeywords,
		Placeholders:       placeholders,
		Provider:           p.provider.Name(),
		ProcessingMS:       float64(duration.Microseconds()) / 1000,
	})
}

func logStage(log *logger.Logger, stage Stage, fields ...zap.Field) {
	log.Debug("Stage transition", append([]zap.Field{zap.String("stage", string(stage))}, fields...)...)
}
