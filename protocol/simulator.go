package protocol

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Simulator generates a fake crank trigger and MAP/IAT readings for UI
// development and testing without an adapter board attached. It cycles
// through a 60-second driving scenario: idle, acceleration, cruise,
// deceleration, idle.
type Simulator struct {
	mu           sync.Mutex
	tick         float64 // simulated time, seconds
	rng          *rand.Rand
	teethTotal   uint8
	teethMissing uint8
}

// NewSimulator creates a driving-cycle simulator for the given trigger
// wheel shape.
func NewSimulator(teethTotal, teethMissing uint8) *Simulator {
	return &Simulator{
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		teethTotal:   teethTotal,
		teethMissing: teethMissing,
	}
}

// targets holds the driving cycle's instantaneous values at one point in
// simulated time.
type targets struct {
	rpm    float64
	mapKPa float64
	iatC   float64
}

// at returns the driving cycle targets for a position within the 60-second
// loop.
func (s *Simulator) at(cyclePos float64) targets {
	switch {
	case cyclePos < 10: // idle
		return targets{rpm: 850, mapKPa: 32, iatC: 25}
	case cyclePos < 20: // acceleration
		progress := (cyclePos - 10) / 10.0
		return targets{
			rpm:    850 + progress*5150,
			mapKPa: 32 + progress*68,
			iatC:   25 + progress*5,
		}
	case cyclePos < 40: // cruise
		return targets{rpm: 3200, mapKPa: 55, iatC: 30}
	case cyclePos < 50: // deceleration
		progress := (cyclePos - 40) / 10.0
		return targets{
			rpm:    3200 - progress*2350,
			mapKPa: 55 - progress*23,
			iatC:   30 - progress*5,
		}
	default: // idle again
		return targets{rpm: 850, mapKPa: 32, iatC: 25}
	}
}

func noise(rng *rand.Rand, base, amplitude float64) float64 {
	return base + (rng.Float64()-0.5)*2*amplitude
}

// currentTargets advances the simulated clock by dt seconds and returns
// the noisy targets at the new position.
func (s *Simulator) currentTargets(dt float64) targets {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick += dt
	cyclePos := math.Mod(s.tick, 60.0)
	t := s.at(cyclePos)
	return targets{
		rpm:    noise(s.rng, t.rpm, 15),
		mapKPa: noise(s.rng, t.mapKPa, 1.5),
		iatC:   noise(s.rng, t.iatC, 0.5),
	}
}

// Run emits crank edges on the schedule implied by the driving cycle's
// instantaneous RPM, including a missing-tooth gap once per revolution,
// until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, onEdge EdgeCallback) error {
	var elapsedUS uint32
	var toothIdx uint8
	realTeeth := s.teethTotal - s.teethMissing

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		t := s.currentTargets(0.001)
		if t.rpm < 50 {
			t.rpm = 50
		}

		degreesPerTooth := 360.0 / float64(s.teethTotal)
		if toothIdx == 0 {
			degreesPerTooth = 360.0 / float64(s.teethTotal) * float64(s.teethMissing+1)
		}
		usPerDegree := 60_000_000.0 / (t.rpm * 360.0)
		stepUS := uint32(degreesPerTooth * usPerDegree)

		elapsedUS += stepUS
		onEdge(elapsedUS)

		toothIdx++
		if toothIdx >= realTeeth {
			toothIdx = 0
		}

		time.Sleep(time.Duration(stepUS) * time.Microsecond)
	}
}

// SampleMAP implements engine.SensorSampler.
func (s *Simulator) SampleMAP() (float64, error) {
	return s.currentTargets(0).mapKPa, nil
}

// SampleIAT implements engine.SensorSampler.
func (s *Simulator) SampleIAT() (float64, error) {
	return s.currentTargets(0).iatC, nil
}
