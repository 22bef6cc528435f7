// Package engine ties the decoder, calibration tables, and fuel model
// together into the periodic control task spec.md describes informally: it
// samples RPM/angle/sync from a decoder, reads MAP/IAT from a SensorSampler,
// interpolates VE/AFR/advance, and computes the resulting pulse width.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kbuckham/crankd/calibration"
	"github.com/kbuckham/crankd/decoder"
	"github.com/kbuckham/crankd/fuel"
)

// SensorSampler provides current MAP (kPa) and IAT (Celsius) readings on
// demand, standing in for the ADC sampling spec.md treats as out of scope.
type SensorSampler interface {
	SampleMAP() (kPa float64, err error)
	SampleIAT() (celsius float64, err error)
}

// ClockSource returns the current microsecond timestamp, in the same clock
// domain as the edges fed to the decoder.
type ClockSource func() uint32

// Reading is a single controller cycle's complete inputs and outputs: the
// unit of data consumed by the logger and CAN broadcaster.
type Reading struct {
	Time         time.Time
	RPMInstant   uint16
	RPMFiltered  uint16
	AngleDeg     float32
	Synced       bool
	MAPKPa       float64
	IATCelsius   float64
	VEPercent    float64
	AFRTarget    float64
	AdvanceDeg   float64
	AirMassG     float64
	PulseWidthUS uint32
}

// SampleCallback is invoked once per completed controller cycle.
type SampleCallback func(r Reading)

// ErrorCallback is invoked whenever a cycle fails to sample sensors.
type ErrorCallback func(err error)

// DisconnectCallback is invoked when the watchdog judges the sensor link
// persistently unavailable.
type DisconnectCallback func()

// watchdogThreshold is the number of consecutive sampling errors after
// which the controller declares the sensor link down, mirroring the
// teacher's Logger watchdog.
const watchdogThreshold = 20

// Controller runs the periodic fuel-scheduling task on its own ticker,
// structurally identical to the teacher's Logger.pollLoop.
type Controller struct {
	dec     decoder.Decoder
	cal     *calibration.Set
	fuelMdl *fuel.SpeedDensity
	sampler SensorSampler
	clock   ClockSource
	period  time.Duration

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	callbacks       []SampleCallback
	errCbs          []ErrorCallback
	disconnCb       DisconnectCallback
	lastReading     Reading
	cycleCount      uint64
	errorCount      uint64
	consecutiveErrs uint32
	startTime       time.Time
}

// Stats summarizes the controller's running counters, mirroring the
// teacher's Logger.Stats shape.
type Stats struct {
	SampleCount   uint64
	ErrorCount    uint64
	CurrentHz     float64
	UptimeSeconds float64
}

// Stats returns a snapshot of the controller's cycle and error counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		SampleCount: c.cycleCount,
		ErrorCount:  c.errorCount,
	}
	if c.running && !c.startTime.IsZero() {
		s.UptimeSeconds = time.Since(c.startTime).Seconds()
		if s.UptimeSeconds > 0 {
			s.CurrentHz = float64(c.cycleCount) / s.UptimeSeconds
		}
	}
	return s
}

// New creates a Controller with the spec's default 10ms tick period.
func New(dec decoder.Decoder, cal *calibration.Set, fuelMdl *fuel.SpeedDensity, sampler SensorSampler, clock ClockSource) *Controller {
	return &Controller{
		dec:     dec,
		cal:     cal,
		fuelMdl: fuelMdl,
		sampler: sampler,
		clock:   clock,
		period:  10 * time.Millisecond,
	}
}

// WithPeriod overrides the controller's tick interval.
func (c *Controller) WithPeriod(d time.Duration) *Controller {
	c.period = d
	return c
}

// OnSample registers a callback fired once per completed cycle.
func (c *Controller) OnSample(cb SampleCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

// OnError registers a callback fired on each sampling failure.
func (c *Controller) OnError(cb ErrorCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errCbs = append(c.errCbs, cb)
}

// OnDisconnect registers a callback fired once the watchdog trips.
func (c *Controller) OnDisconnect(cb DisconnectCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnCb = cb
}

// LastReading returns the most recently completed cycle's reading.
func (c *Controller) LastReading() Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReading
}

// IsRunning reports whether the controller's tick loop is active.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start begins the tick loop in a goroutine.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	go c.loop(ctx)
	slog.Info("engine controller started", "period", c.period)
}

// Stop halts the tick loop.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.cancel()
	c.running = false
	slog.Info("engine controller stopped")
}

func (c *Controller) loop(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick runs a single controller cycle: stall-check the decoder, sample
// sensors, interpolate the calibration surfaces, and compute the resulting
// pulse width. It is exported so tests and CLI commands can drive cycles
// deterministically without a live ticker.
func (c *Controller) Tick() Reading {
	now := c.clock()
	c.dec.CheckStall(now)

	r := Reading{
		Time:        time.Now(),
		RPMInstant:  c.dec.GetInstantRPM(),
		RPMFiltered: c.dec.GetRPM(),
		AngleDeg:    c.dec.GetAngle(),
		Synced:      c.dec.IsSynced(),
	}

	if !r.Synced {
		c.publish(r)
		return r
	}

	mapKPa, err := c.sampler.SampleMAP()
	if err != nil {
		c.handleError(err)
		c.publish(r)
		return r
	}
	iatC, err := c.sampler.SampleIAT()
	if err != nil {
		c.handleError(err)
		c.publish(r)
		return r
	}

	c.mu.Lock()
	c.consecutiveErrs = 0
	c.mu.Unlock()

	rpm := float64(r.RPMFiltered)
	ve := c.cal.VE.Interpolate(rpm, mapKPa)
	afr := c.cal.AFR.Interpolate(rpm, mapKPa)
	advance := c.cal.Advance.Interpolate(rpm, mapKPa)
	airMass := c.fuelMdl.AirMass(mapKPa, iatC, ve)
	pulseWidth := c.fuelMdl.PulseWidthUS(airMass, afr)

	r.MAPKPa = mapKPa
	r.IATCelsius = iatC
	r.VEPercent = ve
	r.AFRTarget = afr
	r.AdvanceDeg = advance
	r.AirMassG = airMass
	r.PulseWidthUS = pulseWidth

	c.publish(r)
	return r
}

func (c *Controller) publish(r Reading) {
	c.mu.Lock()
	c.cycleCount++
	c.lastReading = r
	callbacks := make([]SampleCallback, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb(r)
	}
}

func (c *Controller) handleError(err error) {
	c.mu.Lock()
	c.errorCount++
	c.consecutiveErrs++
	consec := c.consecutiveErrs
	errCbs := make([]ErrorCallback, len(c.errCbs))
	copy(errCbs, c.errCbs)
	disconnCb := c.disconnCb
	c.mu.Unlock()

	slog.Debug("sensor sampling error", "error", err, "consecutive", consec)
	for _, cb := range errCbs {
		cb(err)
	}

	if consec >= watchdogThreshold {
		slog.Warn("watchdog: too many consecutive sampling errors, assuming sensor link down", "count", consec)
		if disconnCb != nil {
			disconnCb()
		}
	}
}
