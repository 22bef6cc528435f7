// Package decoder implements the missing-tooth crankshaft trigger decoder
// state machine: it consumes timestamped CKP edges and produces a
// synchronized crank angle, instantaneous and filtered RPM, and a
// synchronization state that gates fuel/ignition scheduling.
package decoder

// DecoderEvent is the advisory result of a single on_edge call.
type DecoderEvent int

const (
	// EventNone is returned only for the very first edge seen by a fresh
	// (or just-reset) decoder, before any delta can be computed.
	EventNone DecoderEvent = iota
	// EventToothProcessed is returned for an accepted, non-gap tooth.
	EventToothProcessed
	// EventNoise is returned for a rejected, spuriously narrow pulse.
	EventNoise
	// EventSyncGained is returned the first time a gap is identified.
	EventSyncGained
	// EventSyncLost is returned when more normal teeth are counted than the
	// wheel has, meaning a gap was missed.
	EventSyncLost
)

func (e DecoderEvent) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventToothProcessed:
		return "ToothProcessed"
	case EventNoise:
		return "Noise"
	case EventSyncGained:
		return "SyncGained"
	case EventSyncLost:
		return "SyncLost"
	default:
		return "Unknown"
	}
}

// Decoder is the capability set a trigger decoder exposes, so callers can be
// written against alternative wheel patterns without depending on the
// concrete MissingToothDecoder type.
type Decoder interface {
	OnEdge(timestampUS uint32) DecoderEvent
	CheckStall(nowUS uint32) bool
	GetRPM() uint16
	GetInstantRPM() uint16
	GetAngle() float32
	IsSynced() bool
}

var _ Decoder = (*MissingToothDecoder)(nil)

// Default tuning constants, per spec.
const (
	DefaultNoiseFilterRatio = 0.25
	DefaultMaxToothTimeUS   = 500_000
	DefaultStallTimeoutUS   = 500_000
	DefaultFilterAlpha      = 20
)

// MissingToothDecoder decodes a toothed crank wheel with a known missing-tooth
// gap (e.g. 60-2, 36-1). It is single-threaded per instance: callers must
// serialize on_edge, check_stall, and the observer queries themselves (e.g.
// with a mutex), since none of the operations here do that internally.
type MissingToothDecoder struct {
	teethTotal   uint8
	teethMissing uint8

	currentToothIdx uint8
	synced          bool
	firstEdge       bool
	lastTimestamp   uint32
	lastDelta       uint32
	rpmInstant      uint16
	rpmFiltered     uint16

	noiseFilterRatio float64
	maxToothTimeUS   uint32
	stallTimeoutUS   uint32
	filterAlpha      uint32
}

// New creates a MissingToothDecoder for a wheel with teethTotal physical
// tooth positions, teethMissing of which are absent to form the sync gap,
// using the spec's default tuning constants.
func New(teethTotal, teethMissing uint8) *MissingToothDecoder {
	return &MissingToothDecoder{
		teethTotal:       teethTotal,
		teethMissing:     teethMissing,
		firstEdge:        true,
		noiseFilterRatio: DefaultNoiseFilterRatio,
		maxToothTimeUS:   DefaultMaxToothTimeUS,
		stallTimeoutUS:   DefaultStallTimeoutUS,
		filterAlpha:      DefaultFilterAlpha,
	}
}

// WithNoiseFilterRatio overrides the fraction of last_delta below which a
// pulse is treated as noise (default 0.25).
func (d *MissingToothDecoder) WithNoiseFilterRatio(ratio float64) *MissingToothDecoder {
	d.noiseFilterRatio = ratio
	return d
}

// WithMaxToothTimeUS overrides the timeout after which the decoder resets
// to a cold start (default 500_000).
func (d *MissingToothDecoder) WithMaxToothTimeUS(us uint32) *MissingToothDecoder {
	d.maxToothTimeUS = us
	return d
}

// WithStallTimeoutUS overrides the idle period after which check_stall
// forces RPM to zero (default 500_000).
func (d *MissingToothDecoder) WithStallTimeoutUS(us uint32) *MissingToothDecoder {
	d.stallTimeoutUS = us
	return d
}

// WithFilterAlpha overrides the integer-percent weight of the new sample in
// the RPM EMA (default 20). alpha is the weight of the NEW sample.
func (d *MissingToothDecoder) WithFilterAlpha(alpha uint32) *MissingToothDecoder {
	d.filterAlpha = alpha
	return d
}

// reset returns the decoder to a cold start, discarding everything learned
// so far. The caller's current edge becomes the new first edge.
func (d *MissingToothDecoder) reset() {
	d.firstEdge = true
	d.synced = false
	d.currentToothIdx = 0
	d.lastDelta = 0
	d.rpmFiltered = 0
	d.rpmInstant = 0
}

// OnEdge processes a single CKP rising-edge timestamp (wrapping microsecond
// clock) and returns the advisory event for this edge. It must be called
// synchronously from the edge-detection context with no concurrent calls
// against the same decoder.
func (d *MissingToothDecoder) OnEdge(timestampUS uint32) DecoderEvent {
	// Step 1 — staleness / stall reset.
	sinceLast := timestampUS - d.lastTimestamp // wraps modulo 2^32
	if !d.firstEdge && sinceLast > d.maxToothTimeUS {
		d.reset()
	}

	if d.firstEdge {
		d.firstEdge = false
		d.lastTimestamp = timestampUS
		return EventNone
	}

	// Step 2 — compute delta.
	delta := timestampUS - d.lastTimestamp // wraps modulo 2^32

	// Step 3 — noise rejection.
	if d.lastDelta > 0 {
		minValidDelta := uint32(float64(d.lastDelta) * d.noiseFilterRatio)
		if delta < minValidDelta {
			return EventNoise
		}
	}
	if delta < 5 {
		return EventNoise
	}

	// Step 4 — accept edge.
	d.lastTimestamp = timestampUS

	event := EventToothProcessed

	// Step 5 — gap detection: delta > 1.5*lastDelta via integer ratio test.
	if d.lastDelta > 0 && 2*delta > 3*d.lastDelta {
		d.currentToothIdx = 0
		if !d.synced {
			d.synced = true
			event = EventSyncGained
		}
		// Skip RPM update for gap intervals.
	} else {
		// Step 6 — normal tooth.
		d.currentToothIdx++

		if delta > 0 && d.currentToothIdx > 1 {
			factor := uint32(60_000_000) / uint32(d.teethTotal)
			rawRPM := uint16(factor / delta)
			d.rpmInstant = rawRPM

			alpha := d.filterAlpha
			invAlpha := 100 - alpha
			smooth := (uint32(rawRPM)*alpha + uint32(d.rpmFiltered)*invAlpha) / 100
			d.rpmFiltered = uint16(smooth)
		}

		realTeeth := d.teethTotal - d.teethMissing
		if d.currentToothIdx >= realTeeth {
			event = EventSyncLost
			d.synced = false
			d.currentToothIdx = 0
		}
	}

	// Step 7 — finalize.
	d.lastDelta = delta

	return event
}

// CheckStall is called periodically (e.g. 10 Hz) from a lower-priority
// context. It returns true exactly on the transition into the stalled
// state, forcing rpm_filtered to zero and clearing sync.
func (d *MissingToothDecoder) CheckStall(nowUS uint32) bool {
	since := nowUS - d.lastTimestamp // wraps modulo 2^32
	if since > d.stallTimeoutUS && d.rpmFiltered > 0 {
		d.rpmFiltered = 0
		d.synced = false
		return true
	}
	return false
}

// GetRPM returns the exponentially-filtered engine speed.
func (d *MissingToothDecoder) GetRPM() uint16 {
	return d.rpmFiltered
}

// GetInstantRPM returns the RPM derived from the most recent non-gap interval.
func (d *MissingToothDecoder) GetInstantRPM() uint16 {
	return d.rpmInstant
}

// IsSynced reports whether a gap has been identified and tooth indexing is
// trustworthy.
func (d *MissingToothDecoder) IsSynced() bool {
	return d.synced
}

// GetAngle returns the crank angle in degrees, 0.0 (inclusive) to 360.0
// (exclusive). Callers must ignore this for scheduling decisions while
// !IsSynced().
func (d *MissingToothDecoder) GetAngle() float32 {
	degPerTooth := 360.0 / float32(d.teethTotal)
	return float32(d.currentToothIdx) * degPerTooth
}
