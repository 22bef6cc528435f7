package logger

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/kbuckham/crankd/engine"
)

// Native crankd binary trace format (.crktrace)
//
// Header (16 bytes):
//   [4] Magic: "CRKT"
//   [1] Version: 1
//   [3] Reserved
//   [4] SampleCount: total number of samples (updated on close)
//   [4] Reserved
//
// Samples (traceSampleSize bytes each, little-endian):
//   [8]  UnixNano
//   [2]  RPMInstant
//   [2]  RPMFiltered
//   [4]  AngleDeg (float32 bits)
//   [1]  Synced (0/1)
//   [1]  Reserved
//   [8]  MAPKPa
//   [8]  IATCelsius
//   [8]  VEPercent
//   [8]  AFRTarget
//   [8]  AdvanceDeg
//   [8]  AirMassG
//   [4]  PulseWidthUS

const (
	traceMagic      = "CRKT"
	traceVersion    = 1
	traceHeaderSize = 16
	traceSampleSize = 70
)

// TraceWriter writes engine readings to crankd's native binary trace format.
type TraceWriter struct {
	file        *os.File
	sampleCount uint32
}

// NewTraceWriter creates a new .crktrace file and writes its header.
func NewTraceWriter(filename string) (*TraceWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file %s: %w", filename, err)
	}

	header := make([]byte, traceHeaderSize)
	copy(header[0:4], traceMagic)
	header[4] = traceVersion

	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write trace header: %w", err)
	}

	return &TraceWriter{file: f}, nil
}

// WriteReading appends one reading to the trace.
func (tw *TraceWriter) WriteReading(r engine.Reading) error {
	buf := make([]byte, traceSampleSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Time.UnixNano()))
	binary.LittleEndian.PutUint16(buf[8:10], r.RPMInstant)
	binary.LittleEndian.PutUint16(buf[10:12], r.RPMFiltered)
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(r.AngleDeg))
	if r.Synced {
		buf[16] = 1
	}
	binary.LittleEndian.PutUint64(buf[18:26], math.Float64bits(r.MAPKPa))
	binary.LittleEndian.PutUint64(buf[26:34], math.Float64bits(r.IATCelsius))
	binary.LittleEndian.PutUint64(buf[34:42], math.Float64bits(r.VEPercent))
	binary.LittleEndian.PutUint64(buf[42:50], math.Float64bits(r.AFRTarget))
	binary.LittleEndian.PutUint64(buf[50:58], math.Float64bits(r.AdvanceDeg))
	binary.LittleEndian.PutUint64(buf[58:66], math.Float64bits(r.AirMassG))
	binary.LittleEndian.PutUint32(buf[66:70], r.PulseWidthUS)

	if _, err := tw.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write trace sample: %w", err)
	}
	tw.sampleCount++
	return nil
}

// Close finalizes the trace, updating the sample count in the header.
func (tw *TraceWriter) Close() error {
	if _, err := tw.file.Seek(8, io.SeekStart); err == nil {
		countBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(countBuf, tw.sampleCount)
		tw.file.Write(countBuf)
	}
	return tw.file.Close()
}

// Count returns the number of samples written.
func (tw *TraceWriter) Count() uint32 {
	return tw.sampleCount
}

// Trace is a parsed .crktrace file.
type Trace struct {
	Version     byte
	SampleCount uint32
	Readings    []engine.Reading
}

// ReadTrace reads a .crktrace file in full.
func ReadTrace(filename string) (*Trace, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	header := make([]byte, traceHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("failed to read trace header: %w", err)
	}
	if string(header[0:4]) != traceMagic {
		return nil, fmt.Errorf("not a crktrace file (bad magic)")
	}

	trace := &Trace{
		Version:     header[4],
		SampleCount: binary.LittleEndian.Uint32(header[8:12]),
	}

	buf := make([]byte, traceSampleSize)
	for {
		_, err := io.ReadFull(f, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read trace sample: %w", err)
		}

		unixNano := int64(binary.LittleEndian.Uint64(buf[0:8]))
		r := engine.Reading{
			Time:         time.Unix(0, unixNano),
			RPMInstant:   binary.LittleEndian.Uint16(buf[8:10]),
			RPMFiltered:  binary.LittleEndian.Uint16(buf[10:12]),
			AngleDeg:     math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
			Synced:       buf[16] != 0,
			MAPKPa:       math.Float64frombits(binary.LittleEndian.Uint64(buf[18:26])),
			IATCelsius:   math.Float64frombits(binary.LittleEndian.Uint64(buf[26:34])),
			VEPercent:    math.Float64frombits(binary.LittleEndian.Uint64(buf[34:42])),
			AFRTarget:    math.Float64frombits(binary.LittleEndian.Uint64(buf[42:50])),
			AdvanceDeg:   math.Float64frombits(binary.LittleEndian.Uint64(buf[50:58])),
			AirMassG:     math.Float64frombits(binary.LittleEndian.Uint64(buf[58:66])),
			PulseWidthUS: binary.LittleEndian.Uint32(buf[66:70]),
		}
		trace.Readings = append(trace.Readings, r)
	}

	return trace, nil
}
