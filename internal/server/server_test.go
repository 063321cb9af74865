package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/raaihank/report-sentinel/internal/audit"
	"github.com/raaihank/report-sentinel/internal/config"
	"github.com/raaihank/report-sentinel/internal/deid"
	"github.com/raaihank/report-sentinel/internal/guard"
	"github.com/raaihank/report-sentinel/internal/logger"
	"github.com/raaihank/report-sentinel/internal/pipeline"
	"github.com/raaihank/report-sentinel/internal/rewrite"
)

type stubProvider struct {
	fn func(text string) (string, error)
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Rewrite(_ context.Context, text string, _ rewrite.Instructions) (string, error) {
	return p.fn(text)
}

func newTestServer(t *testing.T, fn func(string) (string, error), mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.WebSocket.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	redactor, err := deid.NewRedactor(nil)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := guard.NewEngine(guard.DefaultVocabulary())
	if err != nil {
		t.Fatal(err)
	}

	processor := pipeline.NewProcessor(redactor, engine, stubProvider{fn: fn}, audit.NewMemoryStore(100), nil,
		pipeline.Config{MaxTextLength: cfg.Pipeline.MaxTextLength, RewriteTimeout: cfg.Rewrite.Timeout, DefaultLanguage: "de"},
		logger.NewNop())

	return New(cfg, processor, nil, logger.NewNop())
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return body
}

const report = `{"text":"Patient Anna Schmidt, geb. 03.04.1961. Knoten 5mm rechts."}`

func echo(text string) (string, error) { return text, nil }

func TestProcessEndpoint(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		s := newTestServer(t, echo, nil)
		rec := do(s, http.MethodPost, "/v1/process", report, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}

		body := decodeBody(t, rec)
		if body["blocked"] != false {
			t.Errorf("expected blocked=false, got %v", body["blocked"])
		}
		if body["answer"] != "Patient Anna Schmidt, geb. 03.04.1961. Knoten 5mm rechts." {
			t.Errorf("unexpected answer %v", body["answer"])
		}
		for _, key := range []string{"reasons", "diff", "suggestion"} {
			if _, ok := body[key]; ok {
				t.Errorf("accepted response should not carry %q", key)
			}
		}
	})

	t.Run("Blocked", func(t *testing.T) {
		s := newTestServer(t, func(text string) (string, error) {
			return strings.ReplaceAll(text, "5mm", "10mm"), nil
		}, nil)
		rec := do(s, http.MethodPost, "/v1/process", report, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}

		body := decodeBody(t, rec)
		if body["blocked"] != true {
			t.Fatalf("expected blocked=true, got %v", body)
		}
		if _, ok := body["answer"]; ok {
			t.Error("blocked response should not carry an answer")
		}
		if !strings.Contains(body["suggestion"].(string), "10mm") {
			t.Errorf("suggestion should be the candidate, got %v", body["suggestion"])
		}
		diff := body["diff"].(map[string]any)
		for _, key := range []string{"addedNumbers", "removedNumbers", "lateralityChanged", "newMedicalKeywords"} {
			if _, ok := diff[key]; !ok {
				t.Errorf("diff missing %q", key)
			}
		}
		if reasons := body["reasons"].([]any); len(reasons) != 1 {
			t.Errorf("expected one reason, got %v", reasons)
		}
	})

	t.Run("OverrideThenAudit", func(t *testing.T) {
		s := newTestServer(t, func(text string) (string, error) {
			return strings.ReplaceAll(text, "5mm", "10mm"), nil
		}, nil)
		requestID := uuid.NewString()
		body := `{"text":"Knoten 5mm rechts.","allowContentChanges":true}`
		rec := do(s, http.MethodPost, "/v1/process", body, map[string]string{"X-Request-ID": requestID})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		if got := decodeBody(t, rec); got["blocked"] != false || got["answer"] != "Knoten 10mm rechts." {
			t.Fatalf("expected accepted override, got %v", got)
		}

		rec = do(s, http.MethodGet, "/v1/audit/"+requestID, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from audit, got %d", rec.Code)
		}
		var trail struct {
			Records []audit.Record `json:"records"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &trail); err != nil {
			t.Fatal(err)
		}
		if len(trail.Records) != 1 {
			t.Fatalf("expected one audit record, got %d", len(trail.Records))
		}
		r := trail.Records[0]
		if !r.Overridden || !r.Blocked || len(r.Reasons) == 0 {
			t.Errorf("override should keep the guard report, got %+v", r)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		s := newTestServer(t, echo, nil)
		rec := do(s, http.MethodPost, "/v1/process", `{"text":"   "}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if decodeBody(t, rec)["error"] == "" {
			t.Error("expected error message")
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		s := newTestServer(t, echo, nil)
		rec := do(s, http.MethodPost, "/v1/process", `{"text":`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("BodyTooLarge", func(t *testing.T) {
		s := newTestServer(t, echo, func(c *config.Config) { c.Server.MaxBodyBytes = 16 })
		rec := do(s, http.MethodPost, "/v1/process", report, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("ProviderError", func(t *testing.T) {
		s := newTestServer(t, func(string) (string, error) {
			return "", errors.New("upstream unavailable")
		}, nil)
		rec := do(s, http.MethodPost, "/v1/process", report, nil)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["retryable"] != true {
			t.Errorf("expected retryable=true, got %v", body)
		}
		if strings.Contains(body["error"].(string), "Schmidt") {
			t.Error("error message leaked report text")
		}
	})
}

func TestGuardEndpoint(t *testing.T) {
	s := newTestServer(t, echo, nil)
	rec := do(s, http.MethodPost, "/v1/guard", `{"original":"Knoten links","candidate":"Knoten"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got guard.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Blocked || !got.Diff.LateralityChanged {
		t.Errorf("expected laterality block, got %+v", got)
	}
}

func TestAuditNotFound(t *testing.T) {
	s := newTestServer(t, echo, nil)
	rec := do(s, http.MethodGet, "/v1/audit/"+uuid.NewString(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, echo, nil)

	t.Run("Generated", func(t *testing.T) {
		rec := do(s, http.MethodPost, "/v1/guard", `{"original":"a","candidate":"a"}`, nil)
		if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
			t.Errorf("expected generated UUID, got %q", rec.Header().Get("X-Request-ID"))
		}
	})

	t.Run("Propagated", func(t *testing.T) {
		id := uuid.NewString()
		rec := do(s, http.MethodPost, "/v1/guard", `{"original":"a","candidate":"a"}`, map[string]string{"X-Request-ID": id})
		if got := rec.Header().Get("X-Request-ID"); got != id {
			t.Errorf("expected %s, got %s", id, got)
		}
	})

	t.Run("InvalidReplaced", func(t *testing.T) {
		rec := do(s, http.MethodPost, "/v1/guard", `{"original":"a","candidate":"a"}`, map[string]string{"X-Request-ID": "<script>"})
		if got := rec.Header().Get("X-Request-ID"); got == "<script>" {
			t.Error("invalid request id should be replaced")
		}
	})
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, echo, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.RequestsPerMinute = 1
		c.RateLimit.Burst = 2
	})

	body := `{"original":"a","candidate":"a"}`
	for i := 0; i < 2; i++ {
		if rec := do(s, http.MethodPost, "/v1/guard", body, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := do(s, http.MethodPost, "/v1/guard", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Another client has its own budget
	rec = do(s, http.MethodPost, "/v1/guard", body, map[string]string{"X-Forwarded-For": "203.0.113.9"})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a different client, got %d", rec.Code)
	}

	// Health is not rate limited
	if rec := do(s, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	if removed := rl.CleanupOldClients(time.Now().Add(time.Hour)); removed != 2 {
		t.Errorf("expected 2 clients removed, got %d", removed)
	}
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, echo, nil)
	rec := do(s, http.MethodGet, "/info", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["rewrite_provider"]; got != "stub" {
		t.Errorf("expected provider stub, got %v", got)
	}
}
