package protocol

import (
	"context"
	"testing"
	"time"
)

func TestSimulatorProducesIncreasingEdges(t *testing.T) {
	sim := NewSimulator(60, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var last uint32
	var count int
	sim.Run(ctx, func(ts uint32) {
		if count > 0 && ts <= last {
			t.Errorf("edge timestamps not strictly increasing: %d after %d", ts, last)
		}
		last = ts
		count++
	})

	if count == 0 {
		t.Error("expected at least one simulated edge")
	}
}

func TestSimulatorSensorReadingsInPlausibleRange(t *testing.T) {
	sim := NewSimulator(60, 2)

	mapKPa, err := sim.SampleMAP()
	if err != nil {
		t.Fatalf("SampleMAP error: %v", err)
	}
	if mapKPa < 20 || mapKPa > 110 {
		t.Errorf("MAP = %v, want roughly 20..110 kPa", mapKPa)
	}

	iat, err := sim.SampleIAT()
	if err != nil {
		t.Fatalf("SampleIAT error: %v", err)
	}
	if iat < 10 || iat > 45 {
		t.Errorf("IAT = %v, want roughly 10..45 C", iat)
	}
}
