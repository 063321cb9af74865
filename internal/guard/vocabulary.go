package guard

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raaihank/report-sentinel/internal/config"
)

// Keyword is a high-risk finding identified by a canonical name and the
// word stems that express it in the report languages.
type Keyword struct {
	Name  string   `yaml:"name" json:"name"`
	Stems []string `yaml:"stems" json:"stems"`
}

// Vocabulary is the language data the engine checks against
type Vocabulary struct {
	LateralTerms    []string  `yaml:"lateral_terms" json:"lateralTerms"`
	MedicalKeywords []Keyword `yaml:"medical_keywords" json:"medicalKeywords"`
}

// DefaultVocabulary returns the built-in German/English vocabulary
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		LateralTerms: []string{
			"links", "linke", "linken", "linker", "linkes", "linksseitig", "linksseitige", "linksseitigen", "linksseitiger",
			"rechts", "rechte", "rechten", "rechter", "rechtes", "rechtsseitig", "rechtsseitige", "rechtsseitigen", "rechtsseitiger",
			"left", "right", "left-sided", "right-sided",
		},
		MedicalKeywords: []Keyword{
			{Name: "fracture", Stems: []string{"fraktur", "fractur"}},
			{Name: "tumor", Stems: []string{"tumor", "tumour"}},
			{Name: "metastasis", Stems: []string{"metasta"}},
			{Name: "embolism", Stems: []string{"embol"}},
			{Name: "hemorrhage", Stems: []string{"blutung", "einblutung", "hämorrhag", "hemorrhag", "haemorrhag"}},
			{Name: "infarct", Stems: []string{"infarkt", "infarct"}},
			{Name: "rupture", Stems: []string{"ruptur"}},
			{Name: "aneurysm", Stems: []string{"aneurysm"}},
			{Name: "ischemia", Stems: []string{"ischämi", "ischemi", "ischaemi"}},
			{Name: "abscess", Stems: []string{"abszess", "abscess"}},
			{Name: "pneumothorax", Stems: []string{"pneumothora"}},
			{Name: "atelectasis", Stems: []string{"atelektas", "atelectas"}},
			{Name: "thrombus", Stems: []string{"thromb"}},
			{Name: "edema", Stems: []string{"ödem", "oedem", "edem"}},
			{Name: "inflammation", Stems: []string{"entzünd", "inflamm"}},
		},
	}
}

// Validate checks that every keyword has a name and at least one stem
func (v Vocabulary) Validate() error {
	for i, term := range v.LateralTerms {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("lateral_terms[%d]: empty term", i)
		}
	}
	for i, kw := range v.MedicalKeywords {
		if strings.TrimSpace(kw.Name) == "" {
			return fmt.Errorf("medical_keywords[%d]: name is required", i)
		}
		if len(kw.Stems) == 0 {
			return fmt.Errorf("medical_keywords[%d] %q: at least one stem is required", i, kw.Name)
		}
		for j, stem := range kw.Stems {
			if strings.TrimSpace(stem) == "" {
				return fmt.Errorf("medical_keywords[%d] %q: stems[%d] is empty", i, kw.Name, j)
			}
		}
	}
	return nil
}

// LoadVocabulary reads a vocabulary YAML file
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}

	if err := v.Validate(); err != nil {
		return Vocabulary{}, fmt.Errorf("invalid vocabulary %s: %w", path, err)
	}
	return v, nil
}

// VocabularyFromConfig resolves the vocabulary for a deployment. A vocabulary
// file wins over inline configuration; sections left empty inline fall back
// to the defaults.
func VocabularyFromConfig(cfg config.GuardConfig) (Vocabulary, error) {
	if cfg.VocabularyFile != "" {
		return LoadVocabulary(cfg.VocabularyFile)
	}

	v := DefaultVocabulary()
	if len(cfg.LateralTerms) > 0 {
		v.LateralTerms = cfg.LateralTerms
	}
	if len(cfg.MedicalKeywords) > 0 {
		v.MedicalKeywords = make([]Keyword, 0, len(cfg.MedicalKeywords))
		for _, kw := range cfg.MedicalKeywords {
			v.MedicalKeywords = append(v.MedicalKeywords, Keyword{Name: kw.Name, Stems: kw.Stems})
		}
	}

	if err := v.Validate(); err != nil {
		return Vocabulary{}, fmt.Errorf("invalid guard vocabulary: %w", err)
	}
	return v, nil
}
