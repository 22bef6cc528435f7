package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// CSVLog is a parsed CSV trace file, column-oriented for graph display.
type CSVLog struct {
	ElapsedMs   []float64
	RPMInstant  []float64
	RPMFiltered []float64
	AngleDeg    []float64
	MAPKPa      []float64
	IATCelsius  []float64
	VEPercent   []float64
	AFRTarget   []float64
	AdvanceDeg  []float64
	AirMassG    []float64
	PulseWidth  []float64
	Count       int
}

// ReadCSVLog reads a CSV file produced by CSVWriter.
func ReadCSVLog(filename string) (*CSVLog, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV has no data rows")
	}

	header := records[0]
	colOf := make(map[string]int, len(header))
	for i, h := range header {
		colOf[h] = i
	}

	log := &CSVLog{}
	parseCol := func(row []string, name string) float64 {
		idx, ok := colOf[name]
		if !ok || idx >= len(row) || row[idx] == "" {
			return 0
		}
		v, _ := strconv.ParseFloat(row[idx], 64)
		return v
	}

	for _, row := range records[1:] {
		log.ElapsedMs = append(log.ElapsedMs, parseCol(row, "elapsed_ms"))
		log.RPMInstant = append(log.RPMInstant, parseCol(row, "rpm_instant"))
		log.RPMFiltered = append(log.RPMFiltered, parseCol(row, "rpm_filtered"))
		log.AngleDeg = append(log.AngleDeg, parseCol(row, "angle_deg"))
		log.MAPKPa = append(log.MAPKPa, parseCol(row, "map_kpa"))
		log.IATCelsius = append(log.IATCelsius, parseCol(row, "iat_c"))
		log.VEPercent = append(log.VEPercent, parseCol(row, "ve_percent"))
		log.AFRTarget = append(log.AFRTarget, parseCol(row, "afr_target"))
		log.AdvanceDeg = append(log.AdvanceDeg, parseCol(row, "advance_deg"))
		log.AirMassG = append(log.AirMassG, parseCol(row, "air_mass_g"))
		log.PulseWidth = append(log.PulseWidth, parseCol(row, "pulse_width_us"))
		log.Count++
	}

	return log, nil
}
