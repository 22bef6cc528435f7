// Package tables implements bilinear interpolation over rectangular
// calibration grids (volumetric efficiency, target AFR, ignition advance).
package tables

import "fmt"

// Table3D is an N-column x M-row calibration surface: two strictly
// increasing axis arrays and an M-by-N data matrix (row-major, [row][col]).
// Once constructed it is immutable and safe for any number of concurrent
// readers.
type Table3D struct {
	xAxis []float64   // breakpoints, length N
	yAxis []float64   // breakpoints, length M
	data  [][]float64 // [row][col], M rows of N columns
}

// New builds a Table3D from the given axes and data matrix. xAxis and yAxis
// must be strictly increasing and data must be a rectangular len(yAxis) x
// len(xAxis) matrix; New panics if the shape is inconsistent, since a
// malformed calibration table is a construction-time programming error, not
// a runtime condition the interpolator should silently tolerate.
func New(xAxis, yAxis []float64, data [][]float64) *Table3D {
	if len(xAxis) < 2 || len(yAxis) < 2 {
		panic("tables: axes must have at least 2 breakpoints")
	}
	if len(data) != len(yAxis) {
		panic(fmt.Sprintf("tables: data has %d rows, want %d (len(yAxis))", len(data), len(yAxis)))
	}
	for i, row := range data {
		if len(row) != len(xAxis) {
			panic(fmt.Sprintf("tables: data row %d has %d columns, want %d (len(xAxis))", i, len(row), len(xAxis)))
		}
	}
	return &Table3D{xAxis: xAxis, yAxis: yAxis, data: data}
}

// NewChecked is like New but returns an error instead of panicking,
// additionally validating that both axes are strictly increasing. Intended
// for use at calibration-load time, where a malformed table should produce
// a diagnosable error rather than crash the process.
func NewChecked(xAxis, yAxis []float64, data [][]float64) (*Table3D, error) {
	if len(xAxis) < 2 || len(yAxis) < 2 {
		return nil, fmt.Errorf("tables: axes must have at least 2 breakpoints")
	}
	if !strictlyIncreasing(xAxis) {
		return nil, fmt.Errorf("tables: x axis is not strictly increasing: %v", xAxis)
	}
	if !strictlyIncreasing(yAxis) {
		return nil, fmt.Errorf("tables: y axis is not strictly increasing: %v", yAxis)
	}
	if len(data) != len(yAxis) {
		return nil, fmt.Errorf("tables: data has %d rows, want %d (len(yAxis))", len(data), len(yAxis))
	}
	for i, row := range data {
		if len(row) != len(xAxis) {
			return nil, fmt.Errorf("tables: data row %d has %d columns, want %d (len(xAxis))", i, len(row), len(xAxis))
		}
	}
	return &Table3D{xAxis: xAxis, yAxis: yAxis, data: data}, nil
}

func strictlyIncreasing(axis []float64) bool {
	for i := 1; i < len(axis); i++ {
		if axis[i] <= axis[i-1] {
			return false
		}
	}
	return true
}

// Interpolate returns the bilinearly interpolated value at (x, y). Inputs
// outside the grid clamp to the nearest edge or corner.
func (t *Table3D) Interpolate(x, y float64) float64 {
	x0, x1, fx := findAxisIndices(t.xAxis, x)
	y0, y1, fy := findAxisIndices(t.yAxis, y)

	q11 := t.data[y0][x0]
	q21 := t.data[y0][x1]
	q12 := t.data[y1][x0]
	q22 := t.data[y1][x1]

	r1 := q11*(1-fx) + q21*fx
	r2 := q12*(1-fx) + q22*fx

	return r1*(1-fy) + r2*fy
}

// findAxisIndices locates the cell containing v and returns (lowIdx, highIdx,
// weight), clamping to the first/last breakpoint outside the grid.
func findAxisIndices(axis []float64, v float64) (lo, hi int, weight float64) {
	last := len(axis) - 1
	if v <= axis[0] {
		return 0, 0, 0.0
	}
	if v >= axis[last] {
		return last, last, 0.0
	}

	idx := 0
	for i := 0; i < last; i++ {
		if v >= axis[i] && v < axis[i+1] {
			idx = i
			break
		}
	}

	x0, x1 := axis[idx], axis[idx+1]
	return idx, idx + 1, (v - x0) / (x1 - x0)
}
