package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbuckham/crankd/engine"
)

func TestTraceWriteAndReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.crktrace")
	w, err := NewTraceWriter(path)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	want := engine.Reading{
		Time: base, RPMInstant: 4000, RPMFiltered: 3980, AngleDeg: 270.5, Synced: true,
		MAPKPa: 82.3, IATCelsius: 31.2, VEPercent: 88.5, AFRTarget: 12.8,
		AdvanceDeg: 30.0, AirMassG: 0.456, PulseWidthUS: 9800,
	}
	if err := w.WriteReading(want); err != nil {
		t.Fatalf("WriteReading: %v", err)
	}
	if w.Count() != 1 {
		t.Errorf("Count() = %d, want 1", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	trace, err := ReadTrace(path)
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if trace.SampleCount != 1 {
		t.Fatalf("SampleCount = %d, want 1", trace.SampleCount)
	}
	if len(trace.Readings) != 1 {
		t.Fatalf("len(Readings) = %d, want 1", len(trace.Readings))
	}

	got := trace.Readings[0]
	if got.RPMFiltered != want.RPMFiltered || got.AngleDeg != want.AngleDeg || !got.Synced {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if got.MAPKPa != want.MAPKPa || got.AFRTarget != want.AFRTarget {
		t.Errorf("float64 fields mismatch: got %+v, want %+v", got, want)
	}
	if got.PulseWidthUS != want.PulseWidthUS {
		t.Errorf("PulseWidthUS = %d, want %d", got.PulseWidthUS, want.PulseWidthUS)
	}
}

func TestReadTraceRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.crktrace")
	w, err := NewTraceWriter(path)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}
	w.Close()

	// Corrupt the magic bytes directly.
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("reopen for corruption: %v", err)
	}
	f.WriteAt([]byte("XXXX"), 0)
	f.Close()

	if _, err := ReadTrace(path); err == nil {
		t.Error("expected error for corrupted magic bytes")
	}
}

func TestMultipleReadingsPreserveOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordered.crktrace")
	w, err := NewTraceWriter(path)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}
	for i := uint16(0); i < 5; i++ {
		w.WriteReading(engine.Reading{RPMFiltered: i * 100})
	}
	w.Close()

	trace, err := ReadTrace(path)
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	for i, r := range trace.Readings {
		if r.RPMFiltered != uint16(i)*100 {
			t.Errorf("reading %d: RPMFiltered = %d, want %d", i, r.RPMFiltered, uint16(i)*100)
		}
	}
}
