// Package etl replays datasets of (original, candidate) pairs through the
// guard offline, for tuning vocabularies against historical rewrites.
package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/guard"
)

// Guard is the part of the guard engine the replay needs
type Guard interface {
	Diff(original, candidate string) guard.Report
}

// Pipeline replays datasets through a guard with a bounded worker pool
type Pipeline struct {
	guard  Guard
	config *Config
	logger *zap.Logger
}

// NewPipeline creates a replay pipeline
func NewPipeline(g Guard, config *Config, logger *zap.Logger) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &Pipeline{guard: g, config: config, logger: logger}
}

// ProcessFile replays inputPath (CSV, JSON lines or Parquet) and writes one
// result row per input record to outputPath as Parquet, in input order
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	format := DetectFileFormat(inputPath)
	p.logger.Info("Starting guard replay",
		zap.String("input", inputPath),
		zap.String("format", string(format)),
		zap.String("output", outputPath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	var next func() (*ReplayRecord, error)
	switch format {
	case FormatCSV:
		next, err = csvReader(in)
	case FormatJSON:
		next = jsonReader(in)
	case FormatParquet:
		next, err = parquetReader(in)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	result, err := p.Replay(ctx, next, out)
	if err != nil {
		return result, err
	}

	p.logger.Info("Guard replay completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("accepted", result.Accepted),
		zap.Int64("blocked", result.Blocked),
		zap.Int64("invalid", result.Invalid),
		zap.Any("by_reason", result.ByReason),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Replay reads records from next until io.EOF, guards them in batches and
// writes the results to w as Parquet
func (p *Pipeline) Replay(ctx context.Context, next func() (*ReplayRecord, error), w io.Writer) (*ProcessingResult, error) {
	start := time.Now()
	result := &ProcessingResult{ByReason: make(map[string]int64)}
	writer := parquet.NewGenericWriter[ResultRow](w)

	for {
		if err := ctx.Err(); err != nil {
			_ = writer.Close()
			return result, err
		}

		batch, err := readBatch(next, p.config.BatchSize)
		if err != nil {
			_ = writer.Close()
			return result, fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		rows := p.processBatch(ctx, batch)
		if err := ctx.Err(); err != nil {
			_ = writer.Close()
			return result, err
		}
		if _, err := writer.Write(rows); err != nil {
			_ = writer.Close()
			return result, fmt.Errorf("failed to write results: %w", err)
		}

		before := result.TotalRecords
		tally(result, rows)
		if p.config.ProgressReport > 0 && result.TotalRecords/int64(p.config.ProgressReport) > before/int64(p.config.ProgressReport) {
			p.reportProgress(result, start)
		}
	}

	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("failed to finalize results: %w", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// processBatch fans the batch out to the worker pool. rows[i] belongs to
// batch[i].
func (p *Pipeline) processBatch(ctx context.Context, batch []*ReplayRecord) []ResultRow {
	rows := make([]ResultRow, len(batch))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.config.WorkerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows[i] = p.replayOne(batch[i])
			}
		}()
	}

	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return rows
}

func (p *Pipeline) replayOne(rec *ReplayRecord) ResultRow {
	row := ResultRow{ID: rec.ID}
	if err := p.validateRecord(rec); err != nil {
		row.Error = err.Error()
		return row
	}

	report := p.guard.Diff(rec.Original, rec.Candidate)
	row.Blocked = report.Blocked
	row.Reasons = report.Reasons
	row.AddedNumbers = report.AddedNumbers
	row.RemovedNumbers = report.RemovedNumbers
	row.LateralityChanged = report.LateralityChanged
	row.NewMedicalKeywords = report.NewMedicalKeywords
	return row
}

func (p *Pipeline) validateRecord(rec *ReplayRecord) error {
	if strings.TrimSpace(rec.Original) == "" {
		return errors.New("empty original")
	}
	if strings.TrimSpace(rec.Candidate) == "" {
		return errors.New("empty candidate")
	}
	if p.config.MaxTextLength > 0 &&
		(utf8.RuneCountInString(rec.Original) > p.config.MaxTextLength || utf8.RuneCountInString(rec.Candidate) > p.config.MaxTextLength) {
		return errors.New("text too long")
	}
	return nil
}

func tally(result *ProcessingResult, rows []ResultRow) {
	for _, row := range rows {
		result.TotalRecords++
		switch {
		case row.Error != "":
			result.Invalid++
		case row.Blocked:
			result.Blocked++
		default:
			result.Accepted++
		}
		for _, reason := range row.Reasons {
			result.ByReason[reason]++
		}
	}
}

func (p *Pipeline) reportProgress(result *ProcessingResult, start time.Time) {
	elapsed := time.Since(start)
	p.logger.Info("Replay progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("blocked", result.Blocked),
		zap.Int64("invalid", result.Invalid),
		zap.Float64("rate_per_sec", float64(result.TotalRecords)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}

func readBatch(next func() (*ReplayRecord, error), size int) ([]*ReplayRecord, error) {
	var batch []*ReplayRecord
	for len(batch) < size {
		rec, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, err
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

// csvReader maps columns by header name. The id column is optional; rows
// without one are numbered from 1.
func csvReader(r io.Reader) (func() (*ReplayRecord, error), error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{"id": -1, "original": -1, "candidate": -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	if cols["original"] < 0 || cols["candidate"] < 0 {
		return nil, fmt.Errorf("CSV header must contain original and candidate columns, got %v", header)
	}

	row := 0
	return func() (*ReplayRecord, error) {
		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		row++
		rec := &ReplayRecord{
			ID:        strconv.Itoa(row),
			Original:  field(record, cols["original"]),
			Candidate: field(record, cols["candidate"]),
		}
		if id := field(record, cols["id"]); id != "" {
			rec.ID = id
		}
		return rec, nil
	}, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func jsonReader(r io.Reader) func() (*ReplayRecord, error) {
	decoder := json.NewDecoder(r)
	row := 0
	return func() (*ReplayRecord, error) {
		var rec ReplayRecord
		if err := decoder.Decode(&rec); err != nil {
			return nil, err
		}
		row++
		if rec.ID == "" {
			rec.ID = strconv.Itoa(row)
		}
		return &rec, nil
	}
}

func parquetReader(f *os.File) (func() (*ReplayRecord, error), error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat Parquet file: %w", err)
	}
	file, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	reader := parquet.NewReader(file)
	row := 0
	return func() (*ReplayRecord, error) {
		var rec ReplayRecord
		if err := reader.Read(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				_ = reader.Close()
			}
			return nil, err
		}
		row++
		if rec.ID == "" {
			rec.ID = strconv.Itoa(row)
		}
		return &rec, nil
	}, nil
}

// ReadResults reads a result file written by Replay
func ReadResults(r io.ReaderAt, size int64) ([]ResultRow, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewReader(file)
	defer reader.Close()

	var rows []ResultRow
	for {
		var row ResultRow
		err := reader.Read(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
