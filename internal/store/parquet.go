package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"amarket/internal/domain"
)

// ParquetExporter writes stored bars out as Parquet files for analysis
// tooling, one file per code under:
//
//	<ExportDir>/daily/<CODE>.parquet
type ParquetExporter struct {
	ExportDir string
}

// NewParquetExporter creates an exporter rooted at the given directory.
func NewParquetExporter(exportDir string) *ParquetExporter {
	return &ParquetExporter{ExportDir: exportDir}
}

// BarRecord is the Parquet schema for exported daily bars.
type BarRecord struct {
	Code     string  `parquet:"code"`
	Date     int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	PreClose float64 `parquet:"pre_close"`
	Change   float64 `parquet:"change"`
	Volume   int64   `parquet:"volume"`
	Amount   float64 `parquet:"amount"`
}

// ExportBars writes all bars for one code to its Parquet file, replacing any
// previous export. Bars are written in the order given; callers hand over
// store output, which is already date-ascending.
func (e *ParquetExporter) ExportBars(code string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Code:     b.Code,
			Date:     b.Date.UnixMilli(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			PreClose: b.PreClose,
			Change:   b.Change,
			Volume:   b.Volume,
			Amount:   b.Amount,
		}
	}

	path := e.barPath(code)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing parquet for %s: %w", code, err)
	}
	return nil
}

// ReadBars reads an exported Parquet file back into bars.
func (e *ParquetExporter) ReadBars(code string) ([]domain.Bar, error) {
	records, err := parquet.ReadFile[BarRecord](e.barPath(code))
	if err != nil {
		return nil, fmt.Errorf("reading parquet for %s: %w", code, err)
	}

	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = domain.Bar{
			Code:     r.Code,
			Date:     domain.Day(time.UnixMilli(r.Date).UTC()),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			PreClose: r.PreClose,
			Change:   r.Change,
			Volume:   r.Volume,
			Amount:   r.Amount,
		}
	}
	return bars, nil
}

// barPath returns the export path for one code.
func (e *ParquetExporter) barPath(code string) string {
	return filepath.Join(e.ExportDir, "daily", code+".parquet")
}
