package audit

import (
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"
)

// ExportRow is the Parquet layout of an audit record
type ExportRow struct {
	ID                     int64    `parquet:"id"`
	RequestID              string   `parquet:"request_id"`
	Status                 string   `parquet:"status"`
	Provider               string   `parquet:"provider"`
	CreatedAtMillis        int64    `parquet:"created_at_ms"`
	Blocked                bool     `parquet:"blocked"`
	Overridden             bool     `parquet:"overridden"`
	Reasons                []string `parquet:"reasons"`
	AddedNumbers           []string `parquet:"added_numbers"`
	RemovedNumbers         []string `parquet:"removed_numbers"`
	LateralityChanged      bool     `parquet:"laterality_changed"`
	NewMedicalKeywords     []string `parquet:"new_medical_keywords"`
	DateCount              int32    `parquet:"date_count"`
	IDCount                int32    `parquet:"id_count"`
	NameCount              int32    `parquet:"name_count"`
	MissingPlaceholders    []string `parquet:"missing_placeholders"`
	DuplicatedPlaceholders []string `parquet:"duplicated_placeholders"`
	UnknownPlaceholders    []string `parquet:"unknown_placeholders"`
	Error                  string   `parquet:"error"`
	DurationMS             int64    `parquet:"duration_ms"`
}

func toExportRow(r Record) ExportRow {
	return ExportRow{
		ID:                     r.ID,
		RequestID:              r.RequestID,
		Status:                 r.Status,
		Provider:               r.Provider,
		CreatedAtMillis:        r.CreatedAt.UnixMilli(),
		Blocked:                r.Blocked,
		Overridden:             r.Overridden,
		Reasons:                r.Reasons,
		AddedNumbers:           r.AddedNumbers,
		RemovedNumbers:         r.RemovedNumbers,
		LateralityChanged:      r.LateralityChanged,
		NewMedicalKeywords:     r.NewMedicalKeywords,
		DateCount:              int32(r.DateCount),
		IDCount:                int32(r.IDCount),
		NameCount:              int32(r.NameCount),
		MissingPlaceholders:    r.MissingPlaceholders,
		DuplicatedPlaceholders: r.DuplicatedPlaceholders,
		UnknownPlaceholders:    r.UnknownPlaceholders,
		Error:                  r.Error,
		DurationMS:             r.DurationMS,
	}
}

// WriteParquet writes records to w as a single Parquet file
func WriteParquet(w io.Writer, records []Record) error {
	rows := make([]ExportRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, toExportRow(r))
	}

	writer := parquet.NewGenericWriter[ExportRow](w)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ReadParquet reads an export written by WriteParquet
func ReadParquet(r io.ReaderAt, size int64) ([]ExportRow, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewReader(file)
	defer reader.Close()

	var rows []ExportRow
	for {
		var row ExportRow
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
