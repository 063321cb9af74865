package etl

import (
	"path/filepath"
	"strings"
	"time"
)

// ReplayRecord is one (original, candidate) pair from the input dataset
type ReplayRecord struct {
	ID        string `csv:"id" parquet:"id" json:"id"`
	Original  string `csv:"original" parquet:"original" json:"original"`
	Candidate string `csv:"candidate" parquet:"candidate" json:"candidate"`
}

// ResultRow is the Parquet layout of one replayed pair. It carries the
// guard report only, never the texts.
type ResultRow struct {
	ID                 string   `parquet:"id"`
	Blocked            bool     `parquet:"blocked"`
	Reasons            []string `parquet:"reasons"`
	AddedNumbers       []string `parquet:"added_numbers"`
	RemovedNumbers     []string `parquet:"removed_numbers"`
	LateralityChanged  bool     `parquet:"laterality_changed"`
	NewMedicalKeywords []string `parquet:"new_medical_keywords"`
	Error              string   `parquet:"error"`
}

// ProcessingResult summarises a replay run
type ProcessingResult struct {
	TotalRecords int64            `json:"total_records"`
	Accepted     int64            `json:"accepted"`
	Blocked      int64            `json:"blocked"`
	Invalid      int64            `json:"invalid"`
	ByReason     map[string]int64 `json:"by_reason"`
	Duration     time.Duration    `json:"duration"`
}

// Config contains replay configuration
type Config struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	MaxTextLength  int `yaml:"max_text_length" mapstructure:"max_text_length"` // 20000
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"` // 10000
}

// DefaultConfig returns the replay defaults
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      1000,
		WorkerCount:    4,
		MaxTextLength:  20000,
		ProgressReport: 10000,
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. JSON input is one
// object per line.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
