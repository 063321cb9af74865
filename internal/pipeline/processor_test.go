package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/report-sentinel/internal/audit"
	"github.com/raaihank/report-sentinel/internal/deid"
	"github.com/raaihank/report-sentinel/internal/guard"
	"github.com/raaihank/report-sentinel/internal/logger"
	"github.com/raaihank/report-sentinel/internal/rewrite"
	"github.com/raaihank/report-sentinel/internal/websocket"
)

// funcProvider adapts a function to rewrite.Provider
type funcProvider struct {
	fn   func(ctx context.Context, text string) (string, error)
	seen []string
	mu   sync.Mutex
}

func (p *funcProvider) Name() string { return "fake" }

func (p *funcProvider) Rewrite(ctx context.Context, text string, _ rewrite.Instructions) (string, error) {
	p.mu.Lock()
	p.seen = append(p.seen, text)
	p.mu.Unlock()
	return p.fn(ctx, text)
}

type recordingPublisher struct {
	mu        sync.Mutex
	decisions []websocket.DecisionEvent
	anomalies []websocket.AnomalyEvent
}

func (r *recordingPublisher) PublishDecision(d websocket.DecisionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func (r *recordingPublisher) PublishAnomaly(a websocket.AnomalyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies = append(r.anomalies, a)
}

type fixture struct {
	processor *Processor
	provider  *funcProvider
	sink      *audit.MemoryStore
	publisher *recordingPublisher
}

func newFixture(t *testing.T, fn func(ctx context.Context, text string) (string, error)) *fixture {
	t.Helper()
	redactor, err := deid.NewRedactor(nil)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := guard.NewEngine(guard.DefaultVocabulary())
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		provider:  &funcProvider{fn: fn},
		sink:      audit.NewMemoryStore(100),
		publisher: &recordingPublisher{},
	}
	f.processor = NewProcessor(redactor, engine, f.provider, f.sink, f.publisher, Config{
		MaxTextLength:   200,
		RewriteTimeout:  100 * time.Millisecond,
		DefaultLanguage: "de",
	}, logger.NewNop())
	return f
}

func echo(_ context.Context, text string) (string, error) { return text, nil }

func replacer(old, new string) func(context.Context, string) (string, error) {
	return func(_ context.Context, text string) (string, error) {
		return strings.ReplaceAll(text, old, new), nil
	}
}

const report = "Patient Anna Schmidt, geb. 03.04.1961, Fallnummer 20240117. Knoten 5mm rechts im Oberlappen."

func TestProcessAccepted(t *testing.T) {
	f := newFixture(t, replacer("Knoten", "Rundherd"))

	outcome, err := f.processor.Process(context.Background(), Request{RequestID: "req-1", Text: report})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !outcome.Accepted() || outcome.Overridden {
		t.Fatalf("expected acceptance, got %+v", outcome)
	}
	want := strings.ReplaceAll(report, "Knoten", "Rundherd")
	if outcome.FinalText != want {
		t.Errorf("final text = %q, want %q", outcome.FinalText, want)
	}

	t.Run("ProviderSawNoPHI", func(t *testing.T) {
		sent := f.provider.seen[0]
		for _, secret := range []string{"Anna", "Schmidt", "03.04.1961", "20240117"} {
			if strings.Contains(sent, secret) {
				t.Errorf("provider received %q in %q", secret, sent)
			}
		}
		if !strings.Contains(sent, "[[PHI_NAME_") {
			t.Errorf("expected name placeholder in %q", sent)
		}
	})

	t.Run("AuditedAndPublished", func(t *testing.T) {
		records, _ := f.sink.ListByRequest(context.Background(), "req-1")
		if len(records) != 1 || records[0].Status != audit.StatusAccepted {
			t.Fatalf("unexpected audit %+v", records)
		}
		if records[0].PlaceholderCount() != 3 {
			t.Errorf("placeholders = %d", records[0].PlaceholderCount())
		}
		if len(f.publisher.decisions) != 1 || f.publisher.decisions[0].Blocked {
			t.Errorf("unexpected decisions %+v", f.publisher.decisions)
		}
		if len(f.publisher.anomalies) != 0 {
			t.Errorf("unexpected anomalies %+v", f.publisher.anomalies)
		}
	})
}

func TestProcessBlocked(t *testing.T) {
	f := newFixture(t, replacer("5mm", "10mm"))

	outcome, err := f.processor.Process(context.Background(), Request{Text: report})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Accepted() {
		t.Fatal("expected blocked outcome")
	}
	if !slices.Equal(outcome.Report.AddedNumbers, []string{"10"}) || !slices.Equal(outcome.Report.RemovedNumbers, []string{"5"}) {
		t.Errorf("diff = %+v", outcome.Report.Diff)
	}
	if !strings.Contains(outcome.Suggestion, "Anna Schmidt") || !strings.Contains(outcome.Suggestion, "10mm") {
		t.Errorf("suggestion should be the reinserted candidate, got %q", outcome.Suggestion)
	}
}

func TestProcessOverride(t *testing.T) {
	f := newFixture(t, replacer("rechts", ""))

	outcome, err := f.processor.Process(context.Background(), Request{RequestID: "req-o", Text: report, AllowContentChanges: true})
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Accepted() || !outcome.Overridden {
		t.Fatalf("expected overridden acceptance, got %+v", outcome)
	}
	if resp := outcome.Response(); resp.Blocked || resp.Answer == "" {
		t.Errorf("override must look accepted on the wire, got %+v", resp)
	}

	records, err := f.processor.Audit(context.Background(), "req-o")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(records))
	}
	r := records[0]
	if !r.Overridden || !r.Blocked || !r.LateralityChanged {
		t.Errorf("override record must keep the report, got %+v", r)
	}
	if !slices.Equal(r.Reasons, []string{guard.ReasonLaterality}) {
		t.Errorf("reasons = %v", r.Reasons)
	}
}

func TestProcessValidation(t *testing.T) {
	f := newFixture(t, echo)

	cases := map[string]string{
		"empty":       "",
		"whitespace":  " \n\t ",
		"too long":    strings.Repeat("x", 201),
		"placeholder": "Befund [[PHI_NAME_1]] unauffällig",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.processor.Process(context.Background(), Request{Text: text})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	if len(f.provider.seen) != 0 {
		t.Errorf("provider must not be called for invalid input, got %d calls", len(f.provider.seen))
	}

	t.Run("LengthCountsRunes", func(t *testing.T) {
		if _, err := f.processor.Process(context.Background(), Request{Text: strings.Repeat("ö", 200)}); err != nil {
			t.Errorf("200 runes should be accepted: %v", err)
		}
	})
}

func TestProcessProviderFailure(t *testing.T) {
	cause := errors.New("upstream unavailable")
	f := newFixture(t, func(context.Context, string) (string, error) { return "", cause })

	_, err := f.processor.Process(context.Background(), Request{RequestID: "req-f", Text: report})
	var perr *RewriteProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected RewriteProviderError, got %v", err)
	}
	if !errors.Is(err, cause) || !perr.Retryable() {
		t.Errorf("error should wrap the cause and be retryable: %v", err)
	}
	if len(f.provider.seen) != 1 {
		t.Errorf("provider must not be retried, got %d calls", len(f.provider.seen))
	}

	records, _ := f.sink.ListByRequest(context.Background(), "req-f")
	if len(records) != 1 || records[0].Status != audit.StatusFailed {
		t.Errorf("failure should be audited, got %+v", records)
	}
	if strings.Contains(records[0].Error, "Schmidt") {
		t.Error("audit error leaks PHI")
	}
}

func TestProcessTimeout(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", errors.New("request aborted")
	})

	start := time.Now()
	_, err := f.processor.Process(context.Background(), Request{Text: report})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	var perr *RewriteProviderError
	if !errors.As(err, &perr) {
		t.Errorf("expected RewriteProviderError, got %T", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not applied, took %s", elapsed)
	}
}

func TestProcessCallerCancel(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.processor.Process(ctx, Request{Text: report}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProcessEmptyCandidate(t *testing.T) {
	f := newFixture(t, func(context.Context, string) (string, error) { return "  ", nil })

	_, err := f.processor.Process(context.Background(), Request{Text: report})
	if !errors.Is(err, rewrite.ErrEmptyCompletion) {
		t.Errorf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestProcessReinsertionAnomaly(t *testing.T) {
	f := newFixture(t, func(_ context.Context, text string) (string, error) {
		return text + " Rücksprache mit [[PHI_NAME_7]].", nil
	})

	outcome, err := f.processor.Process(context.Background(), Request{RequestID: "req-a", Text: report})
	if err != nil {
		t.Fatal(err)
	}
	// The stray token's index surfaces as an added number
	if outcome.Accepted() || !slices.Equal(outcome.Report.AddedNumbers, []string{"7"}) {
		t.Errorf("expected numeric block, got %+v", outcome.Report)
	}
	if !strings.Contains(outcome.Suggestion, "[[PHI_NAME_7]]") {
		t.Errorf("unknown token must be left verbatim, got %q", outcome.Suggestion)
	}
	if len(f.publisher.anomalies) != 1 || !slices.Equal(f.publisher.anomalies[0].Unknown, []string{"[[PHI_NAME_7]]"}) {
		t.Errorf("unexpected anomalies %+v", f.publisher.anomalies)
	}

	records, _ := f.sink.ListByRequest(context.Background(), "req-a")
	if len(records) != 1 || !slices.Equal(records[0].UnknownPlaceholders, []string{"[[PHI_NAME_7]]"}) {
		t.Errorf("anomaly not audited: %+v", records)
	}
}

func TestProcessDroppedPlaceholder(t *testing.T) {
	// The rewrite drops the case number; the guard sees the missing number
	f := newFixture(t, func(_ context.Context, text string) (string, error) {
		return strings.Replace(text, ", Fallnummer [[PHI_ID_3]]", "", 1), nil
	})

	outcome, err := f.processor.Process(context.Background(), Request{Text: report})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Accepted() {
		t.Fatal("dropping an identifier changes the numbers and must block")
	}
	if !slices.Equal(outcome.Report.RemovedNumbers, []string{"20240117"}) {
		t.Errorf("removed numbers = %v", outcome.Report.RemovedNumbers)
	}
	if len(f.publisher.anomalies) != 1 || len(f.publisher.anomalies[0].Missing) != 1 {
		t.Errorf("expected a missing placeholder anomaly, got %+v", f.publisher.anomalies)
	}
}

func TestGuardAndSetEngine(t *testing.T) {
	f := newFixture(t, echo)

	r := f.processor.Guard("Unauffälliger Befund", "Unauffälliger Befund, Verdacht auf Tumor")
	if !r.Blocked {
		t.Fatal("expected keyword block with default vocabulary")
	}

	engine, err := guard.NewEngine(guard.Vocabulary{})
	if err != nil {
		t.Fatal(err)
	}
	f.processor.SetEngine(engine)

	r = f.processor.Guard("Unauffälliger Befund", "Unauffälliger Befund, Verdacht auf Tumor")
	if r.Blocked {
		t.Error("empty vocabulary should not flag keywords")
	}
}

func TestProcessConcurrent(t *testing.T) {
	f := newFixture(t, echo)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.processor.Process(context.Background(), Request{Text: report})
			if err != nil {
				errs <- err
				return
			}
			if outcome.FinalText != report {
				errs <- errors.New("round trip changed the report")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
