package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cryptoDataPipeline/internal/domain"
)

var klineCSVHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

// WriteKlinesToCSV writes klines to filename, creating parent directories.
// Prices keep the exact decimal text they were stored with.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", filename, err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := writeKlines(file, klines); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return file.Close()
}

func writeKlines(w io.Writer, klines []*domain.Kline) error {
	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write(klineCSVHeader); err != nil {
		return err
	}

	for _, k := range klines {
		err := writer.Write([]string{
			k.OpenTime.UTC().Format(time.RFC3339Nano),
			k.CloseTime.UTC().Format(time.RFC3339Nano),
			k.Symbol,
			k.Interval,
			k.Open.String(),
			k.High.String(),
			k.Low.String(),
			k.Close.String(),
			k.Volume.String(),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportFileName builds the export path for a pair covering [from, to].
func ExportFileName(dir, symbol, interval string, from, to time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s_to_%s.csv", symbol, interval, from.UTC().Format("20060102"), to.UTC().Format("20060102")))
}
