package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/kbuckham/crankd/calibration"
	"github.com/kbuckham/crankd/decoder"
	"github.com/kbuckham/crankd/fuel"
)

// fakeDecoder implements decoder.Decoder with fixed, settable return values
// so controller cycles are deterministic without feeding real edges.
type fakeDecoder struct {
	rpmInstant uint16
	rpm        uint16
	angle      float32
	synced     bool
	stallCalls int
}

func (f *fakeDecoder) OnEdge(uint32) decoder.DecoderEvent { return decoder.EventNone }
func (f *fakeDecoder) CheckStall(uint32) bool {
	f.stallCalls++
	return false
}
func (f *fakeDecoder) GetRPM() uint16         { return f.rpm }
func (f *fakeDecoder) GetInstantRPM() uint16  { return f.rpmInstant }
func (f *fakeDecoder) GetAngle() float32      { return f.angle }
func (f *fakeDecoder) IsSynced() bool         { return f.synced }

var _ decoder.Decoder = (*fakeDecoder)(nil)

type fakeSampler struct {
	mu      sync.Mutex
	mapKPa  float64
	iatC    float64
	failMAP bool
	failIAT bool
}

func (f *fakeSampler) SampleMAP() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMAP {
		return 0, errors.New("map sensor unavailable")
	}
	return f.mapKPa, nil
}

func (f *fakeSampler) SampleIAT() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIAT {
		return 0, errors.New("iat sensor unavailable")
	}
	return f.iatC, nil
}

func fixedClock(t uint32) ClockSource {
	return func() uint32 { return t }
}

func TestTickUnsyncedSkipsFuelComputation(t *testing.T) {
	dec := &fakeDecoder{synced: false}
	sampler := &fakeSampler{mapKPa: 100, iatC: 20}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	r := ctrl.Tick()
	if r.Synced {
		t.Fatal("expected unsynced reading")
	}
	if r.PulseWidthUS != 0 || r.AirMassG != 0 {
		t.Errorf("expected zeroed fuel outputs when unsynced, got %+v", r)
	}
}

func TestTickSyncedComputesFuel(t *testing.T) {
	dec := &fakeDecoder{synced: true, rpm: 3000, rpmInstant: 3000, angle: 90}
	sampler := &fakeSampler{mapKPa: 70, iatC: 25}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	r := ctrl.Tick()
	if !r.Synced {
		t.Fatal("expected synced reading")
	}
	if r.MAPKPa != 70 || r.IATCelsius != 25 {
		t.Errorf("sensor readings not propagated: %+v", r)
	}
	if r.AirMassG <= 0 {
		t.Errorf("expected positive air mass, got %v", r.AirMassG)
	}
	if r.PulseWidthUS <= 0 {
		t.Errorf("expected positive pulse width, got %v", r.PulseWidthUS)
	}
}

func TestTickSamplerErrorInvokesCallbackAndSkipsFuel(t *testing.T) {
	dec := &fakeDecoder{synced: true, rpm: 3000}
	sampler := &fakeSampler{failMAP: true}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	var gotErr error
	ctrl.OnError(func(err error) { gotErr = err })

	r := ctrl.Tick()
	if gotErr == nil {
		t.Fatal("expected error callback to fire")
	}
	if r.PulseWidthUS != 0 {
		t.Errorf("expected no pulse width on sampling error, got %v", r.PulseWidthUS)
	}
}

func TestWatchdogFiresAfterConsecutiveErrors(t *testing.T) {
	dec := &fakeDecoder{synced: true}
	sampler := &fakeSampler{failMAP: true}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	disconnected := false
	ctrl.OnDisconnect(func() { disconnected = true })

	for i := 0; i < watchdogThreshold-1; i++ {
		ctrl.Tick()
		if disconnected {
			t.Fatalf("disconnect fired early, at cycle %d of %d", i+1, watchdogThreshold)
		}
	}
	ctrl.Tick()
	if !disconnected {
		t.Error("expected watchdog to fire after threshold consecutive errors")
	}
}

func TestConsecutiveErrorsResetOnSuccess(t *testing.T) {
	dec := &fakeDecoder{synced: true, rpm: 3000}
	sampler := &fakeSampler{failMAP: true}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	for i := 0; i < watchdogThreshold-1; i++ {
		ctrl.Tick()
	}

	sampler.mu.Lock()
	sampler.failMAP = false
	sampler.mapKPa = 80
	sampler.iatC = 20
	sampler.mu.Unlock()
	ctrl.Tick()

	sampler.mu.Lock()
	sampler.failMAP = true
	sampler.mu.Unlock()

	disconnected := false
	ctrl.OnDisconnect(func() { disconnected = true })
	for i := 0; i < watchdogThreshold-1; i++ {
		ctrl.Tick()
	}
	if disconnected {
		t.Error("watchdog should not have fired: error streak was reset by the intervening success")
	}
}

func TestOnSampleCallbackReceivesEachReading(t *testing.T) {
	dec := &fakeDecoder{synced: true, rpm: 1500}
	sampler := &fakeSampler{mapKPa: 50, iatC: 15}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	var count int
	ctrl.OnSample(func(r Reading) { count++ })

	ctrl.Tick()
	ctrl.Tick()
	ctrl.Tick()

	if count != 3 {
		t.Errorf("expected 3 sample callbacks, got %d", count)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	dec := &fakeDecoder{synced: true, rpm: 1000}
	sampler := &fakeSampler{mapKPa: 90, iatC: 20}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	if ctrl.IsRunning() {
		t.Fatal("controller should not be running before Start")
	}
	ctrl.Start()
	if !ctrl.IsRunning() {
		t.Fatal("expected controller running after Start")
	}
	ctrl.Stop()
	if ctrl.IsRunning() {
		t.Fatal("expected controller stopped after Stop")
	}
	// Stop/Start are idempotent when called again in the same state.
	ctrl.Stop()
}

func TestLastReadingReflectsMostRecentTick(t *testing.T) {
	dec := &fakeDecoder{synced: true, rpm: 4200}
	sampler := &fakeSampler{mapKPa: 60, iatC: 18}
	ctrl := New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, fixedClock(1000))

	ctrl.Tick()
	last := ctrl.LastReading()
	if last.RPMFiltered != 4200 {
		t.Errorf("LastReading RPM = %v, want 4200", last.RPMFiltered)
	}
}
