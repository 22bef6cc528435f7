// Package logger persists engine.Reading values to CSV and to crankd's
// native .crktrace binary format, and reads them back for review.
package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/kbuckham/crankd/engine"
)

// csvHeader lists the columns CSVWriter emits, in order.
var csvHeader = []string{
	"timestamp", "elapsed_ms",
	"rpm_instant", "rpm_filtered", "angle_deg", "synced",
	"map_kpa", "iat_c", "ve_percent", "afr_target",
	"advance_deg", "air_mass_g", "pulse_width_us",
}

// CSVWriter writes engine readings to a CSV file, one row per reading,
// flushing after every write for crash safety.
type CSVWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	count     int
	startTime time.Time
}

// NewCSVWriter creates filename and writes the header row immediately.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file %s: %w", filename, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteReading appends one row.
func (cw *CSVWriter) WriteReading(r engine.Reading) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.count == 0 {
		cw.startTime = r.Time
	}
	elapsed := r.Time.Sub(cw.startTime).Milliseconds()

	row := []string{
		r.Time.Format("2006-01-02T15:04:05.000"),
		strconv.FormatInt(elapsed, 10),
		strconv.FormatUint(uint64(r.RPMInstant), 10),
		strconv.FormatUint(uint64(r.RPMFiltered), 10),
		strconv.FormatFloat(float64(r.AngleDeg), 'f', 2, 32),
		strconv.FormatBool(r.Synced),
		strconv.FormatFloat(r.MAPKPa, 'f', 3, 64),
		strconv.FormatFloat(r.IATCelsius, 'f', 3, 64),
		strconv.FormatFloat(r.VEPercent, 'f', 3, 64),
		strconv.FormatFloat(r.AFRTarget, 'f', 3, 64),
		strconv.FormatFloat(r.AdvanceDeg, 'f', 3, 64),
		strconv.FormatFloat(r.AirMassG, 'f', 6, 64),
		strconv.FormatUint(uint64(r.PulseWidthUS), 10),
	}

	if err := cw.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	cw.count++

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("CSV flush error: %w", err)
	}
	return nil
}

// Close flushes and closes the CSV file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("CSV flush error: %w", err)
	}
	return cw.file.Close()
}

// Count returns the number of rows written.
func (cw *CSVWriter) Count() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.count
}
