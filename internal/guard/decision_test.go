package guard

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecide(t *testing.T) {
	e := newTestEngine(t)
	clean := e.Diff("Knoten 5 mm", "Knoten 5 mm.")
	dirty := e.Diff("Knoten 5 mm", "Knoten 10 mm")

	t.Run("NotBlockedIsAccepted", func(t *testing.T) {
		o := Decide(clean, "Knoten 5 mm.", false)
		if !o.Accepted() || o.FinalText != "Knoten 5 mm." || o.Overridden {
			t.Errorf("unexpected outcome %+v", o)
		}
	})

	t.Run("BlockedKeepsSuggestion", func(t *testing.T) {
		o := Decide(dirty, "Knoten 10 mm", false)
		if o.Accepted() {
			t.Fatal("expected blocked outcome")
		}
		if o.Suggestion != "Knoten 10 mm" {
			t.Errorf("suggestion = %q", o.Suggestion)
		}
		if o.FinalText != "" {
			t.Errorf("blocked outcome must not carry final text, got %q", o.FinalText)
		}
	})

	t.Run("OverrideAcceptsAndKeepsReport", func(t *testing.T) {
		o := Decide(dirty, "Knoten 10 mm", true)
		if !o.Accepted() || !o.Overridden {
			t.Fatalf("expected overridden acceptance, got %+v", o)
		}
		if !o.Report.Blocked || len(o.Report.Reasons) != 1 {
			t.Errorf("report must be kept for audit, got %+v", o.Report)
		}
	})

	t.Run("OverrideOnCleanReportIsNotOverridden", func(t *testing.T) {
		o := Decide(clean, "Knoten 5 mm.", true)
		if o.Overridden {
			t.Error("nothing to override on a clean report")
		}
	})
}

func TestResponseWireShape(t *testing.T) {
	e := newTestEngine(t)

	t.Run("Accepted", func(t *testing.T) {
		o := Decide(e.Diff("Befund links", "Befund links."), "Befund links.", false)
		data, err := json.Marshal(o.Response())
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `{"blocked":false,"answer":"Befund links."}` {
			t.Errorf("unexpected JSON %s", data)
		}
	})

	t.Run("Blocked", func(t *testing.T) {
		o := Decide(e.Diff("Knoten 5mm rechts", "Knoten 10mm rechts"), "Knoten 10mm rechts", false)
		data, err := json.Marshal(o.Response())
		if err != nil {
			t.Fatal(err)
		}

		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got["blocked"] != true {
			t.Errorf("blocked = %v", got["blocked"])
		}
		if got["suggestion"] != "Knoten 10mm rechts" {
			t.Errorf("suggestion = %v", got["suggestion"])
		}
		if _, ok := got["answer"]; ok {
			t.Error("blocked response must not carry an answer")
		}

		diff, ok := got["diff"].(map[string]any)
		if !ok {
			t.Fatalf("diff missing in %s", data)
		}
		for _, key := range []string{"addedNumbers", "removedNumbers", "lateralityChanged", "newMedicalKeywords"} {
			if _, ok := diff[key]; !ok {
				t.Errorf("diff.%s missing in %s", key, data)
			}
		}
		if !strings.Contains(string(data), `"newMedicalKeywords":[]`) {
			t.Errorf("empty categories should serialize as [], got %s", data)
		}
	})

	t.Run("OverriddenLooksAccepted", func(t *testing.T) {
		o := Decide(e.Diff("Knoten 5mm", "Knoten 10mm"), "Knoten 10mm", true)
		resp := o.Response()
		if resp.Blocked || resp.Answer != "Knoten 10mm" || resp.Diff != nil {
			t.Errorf("unexpected response %+v", resp)
		}
	})
}
