package guard

import (
	"slices"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultVocabulary())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngineDiff(t *testing.T) {
	e := newTestEngine(t)

	t.Run("IdenticalTextsPass", func(t *testing.T) {
		texts := []string{
			"",
			"Knoten 5mm rechts",
			"Unauffälliger Befund. Kein Nachweis einer Fraktur links.",
			"Pleuraerguss 12,5 cm, Lungenembolie ausgeschlossen.",
		}
		for _, text := range texts {
			r := e.Diff(text, text)
			if r.Blocked {
				t.Errorf("Diff(%q, same) blocked with %v", text, r.Reasons)
			}
			if len(r.Reasons) != 0 {
				t.Errorf("expected no reasons for %q, got %v", text, r.Reasons)
			}
		}
	})

	t.Run("NumberChange", func(t *testing.T) {
		r := e.Diff("Knoten 5mm rechts", "Knoten 10mm rechts")
		if !r.Blocked {
			t.Fatal("expected blocked report")
		}
		if !slices.Equal(r.AddedNumbers, []string{"10"}) {
			t.Errorf("added numbers = %v, want [10]", r.AddedNumbers)
		}
		if !slices.Equal(r.RemovedNumbers, []string{"5"}) {
			t.Errorf("removed numbers = %v, want [5]", r.RemovedNumbers)
		}
		if r.LateralityChanged {
			t.Error("laterality should be unchanged")
		}
		if !slices.Equal(r.Reasons, []string{ReasonNumbers}) {
			t.Errorf("reasons = %v", r.Reasons)
		}
	})

	t.Run("DecimalFormsAreDistinct", func(t *testing.T) {
		r := e.Diff("Herd 5.0 cm", "Herd 5 cm")
		if !slices.Equal(r.AddedNumbers, []string{"5"}) || !slices.Equal(r.RemovedNumbers, []string{"5.0"}) {
			t.Errorf("expected 5.0 -> 5 drift, got added=%v removed=%v", r.AddedNumbers, r.RemovedNumbers)
		}
	})

	t.Run("DecimalCommaNormalized", func(t *testing.T) {
		r := e.Diff("Herd 2,5 cm", "Herd 2.5 cm")
		if r.Blocked {
			t.Errorf("2,5 and 2.5 should compare equal, got %v", r.Reasons)
		}
	})

	t.Run("ReorderedNumbersPass", func(t *testing.T) {
		r := e.Diff("Herde 3 mm und 7 mm", "Herde 7 mm und 3 mm")
		if r.Blocked {
			t.Errorf("reordering numbers should not block, got %v", r.Reasons)
		}
	})

	t.Run("LateralityRemoved", func(t *testing.T) {
		r := e.Diff("Herd links im Oberlappen", "Herd im Oberlappen")
		if !r.Blocked || !r.LateralityChanged {
			t.Fatalf("expected laterality change, got %+v", r)
		}
		if !slices.Equal(r.Reasons, []string{ReasonLaterality}) {
			t.Errorf("reasons = %v", r.Reasons)
		}
	})

	t.Run("LateralitySwapIsPresenceOnly", func(t *testing.T) {
		r := e.Diff("Herd links", "Herd rechts")
		if r.LateralityChanged {
			t.Error("swapping sides is not detected by a presence check")
		}
	})

	t.Run("LateralityNeedsWholeWord", func(t *testing.T) {
		// "Linksherzkatheter" is not a lateral term on its own
		r := e.Diff("Befund", "Befund nach Linksherzkatheter")
		if r.LateralityChanged {
			t.Error("embedded term should not count as laterality")
		}
	})

	t.Run("NewKeyword", func(t *testing.T) {
		r := e.Diff("Unauffälliger Befund", "Unauffälliger Befund, Verdacht auf Tumor")
		if !r.Blocked {
			t.Fatal("expected blocked report")
		}
		if !slices.Equal(r.NewMedicalKeywords, []string{"tumor"}) {
			t.Errorf("new keywords = %v, want [tumor]", r.NewMedicalKeywords)
		}
		if !slices.Equal(r.Reasons, []string{ReasonKeywords}) {
			t.Errorf("reasons = %v", r.Reasons)
		}
	})

	t.Run("KeywordInflectionsShareStem", func(t *testing.T) {
		r := e.Diff("Frakturen ausgeschlossen", "Keine Fraktur")
		if len(r.NewMedicalKeywords) != 0 {
			t.Errorf("stem present in both texts, got %v", r.NewMedicalKeywords)
		}
	})

	t.Run("RemovedKeywordNotFlagged", func(t *testing.T) {
		r := e.Diff("Verdacht auf Metastasen", "Unauffälliger Befund")
		if len(r.NewMedicalKeywords) != 0 || r.Blocked {
			t.Errorf("removing a finding is not flagged, got %+v", r)
		}
	})

	t.Run("ReasonOrder", func(t *testing.T) {
		r := e.Diff("Befund 4 mm", "Befund 6 mm rechts mit Ödem")
		want := []string{ReasonNumbers, ReasonLaterality, ReasonKeywords}
		if !slices.Equal(r.Reasons, want) {
			t.Errorf("reasons = %v, want %v", r.Reasons, want)
		}
		if !slices.Equal(r.NewMedicalKeywords, []string{"edema"}) {
			t.Errorf("new keywords = %v, want [edema]", r.NewMedicalKeywords)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := e.Diff("Herd 5 mm links", "Herd 8 mm, Embolie, Blutung")
		b := e.Diff("Herd 5 mm links", "Herd 8 mm, Embolie, Blutung")
		if !slices.Equal(a.Reasons, b.Reasons) || !slices.Equal(a.NewMedicalKeywords, b.NewMedicalKeywords) {
			t.Errorf("reports differ: %+v vs %+v", a, b)
		}
		if !slices.Equal(a.NewMedicalKeywords, []string{"embolism", "hemorrhage"}) {
			t.Errorf("keywords should follow vocabulary order, got %v", a.NewMedicalKeywords)
		}
	})
}

func TestNewEngineRejectsInvalidVocabulary(t *testing.T) {
	_, err := NewEngine(Vocabulary{MedicalKeywords: []Keyword{{Name: "tumor"}}})
	if err == nil {
		t.Fatal("expected error for keyword without stems")
	}
}

func TestEmptyVocabulary(t *testing.T) {
	e, err := NewEngine(Vocabulary{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	r := e.Diff("Herd links", "Herd, Tumor")
	if r.Blocked {
		t.Errorf("empty vocabulary only checks numbers, got %v", r.Reasons)
	}
}
