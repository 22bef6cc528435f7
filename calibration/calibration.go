// Package calibration loads the VE, target-AFR, and ignition-advance
// Table3D surfaces the fuel model and engine controller consult, from a
// YAML document — the "external configuration source" the core decoder and
// fuel model assume calibration tables come from.
package calibration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kbuckham/crankd/tables"
)

// breakpointTable is the on-disk YAML shape for one Table3D: an RPM axis, a
// MAP (kPa) axis, and a row-major (len(MAP) x len(RPM)) data matrix.
type breakpointTable struct {
	RPM    []float64   `yaml:"rpm"`
	MAPKPa []float64   `yaml:"map_kpa"`
	Data   [][]float64 `yaml:"data"`
}

// document is the full YAML calibration file shape.
type document struct {
	VE      breakpointTable `yaml:"ve"`
	AFR     breakpointTable `yaml:"afr"`
	Advance breakpointTable `yaml:"advance"`
}

// Set holds the three calibration surfaces a running engine controller
// consults each cycle. Once loaded it is immutable and safe for concurrent
// readers, like the Table3D values it wraps.
type Set struct {
	VE      *tables.Table3D // volumetric efficiency, percent
	AFR     *tables.Table3D // target air-fuel ratio by mass
	Advance *tables.Table3D // ignition advance, degrees BTDC
}

// Load reads and parses a YAML calibration file from path.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}

	ve, err := build(doc.VE, "ve")
	if err != nil {
		return nil, err
	}
	afr, err := build(doc.AFR, "afr")
	if err != nil {
		return nil, err
	}
	advance, err := build(doc.Advance, "advance")
	if err != nil {
		return nil, err
	}

	return &Set{VE: ve, AFR: afr, Advance: advance}, nil
}

func build(bt breakpointTable, name string) (*tables.Table3D, error) {
	if len(bt.RPM) == 0 || len(bt.MAPKPa) == 0 {
		return nil, fmt.Errorf("calibration table %q: missing rpm or map_kpa axis", name)
	}
	tbl, err := tables.NewChecked(bt.RPM, bt.MAPKPa, bt.Data)
	if err != nil {
		return nil, fmt.Errorf("calibration table %q: %w", name, err)
	}
	return tbl, nil
}

// Default returns a small, built-in calibration set for a naturally
// aspirated four-cylinder engine: a VE curve that rises with RPM and load, a
// stoichiometric-biased AFR target, and a conservative advance curve. It
// requires no file on disk, mirroring the way the teacher's
// sensor.DefaultDefinitions() ships a working sensor table out of the box.
func Default() *Set {
	rpmAxis := []float64{800, 2000, 4000, 6000}
	mapAxis := []float64{30, 60, 100}

	ve := tables.New(rpmAxis, mapAxis, [][]float64{
		{45, 55, 65, 70},
		{55, 70, 82, 85},
		{60, 78, 90, 92},
	})

	afr := tables.New(rpmAxis, mapAxis, [][]float64{
		{14.7, 14.7, 14.7, 14.2},
		{14.7, 14.7, 13.8, 13.2},
		{14.7, 13.5, 12.8, 12.5},
	})

	advance := tables.New(rpmAxis, mapAxis, [][]float64{
		{12, 20, 28, 32},
		{10, 16, 22, 24},
		{8, 12, 16, 18},
	})

	return &Set{VE: ve, AFR: afr, Advance: advance}
}
