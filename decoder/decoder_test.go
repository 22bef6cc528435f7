package decoder

import "testing"

func TestFirstEdgeReturnsNoneAndUnsynced(t *testing.T) {
	d := New(60, 2)
	evt := d.OnEdge(1000)
	if evt != EventNone {
		t.Errorf("first edge = %v, want None", evt)
	}
	if d.IsSynced() {
		t.Error("fresh decoder should not be synced after first edge")
	}
}

func Test60Minus2GapDetection(t *testing.T) {
	d := New(60, 2)

	evt := d.OnEdge(1000)
	if evt != EventNone {
		t.Fatalf("edge 1 = %v, want None", evt)
	}

	times := []uint32{2000, 3000, 4000, 5000, 6000}
	for _, ts := range times {
		evt := d.OnEdge(ts)
		if evt != EventToothProcessed {
			t.Errorf("edge at %d = %v, want ToothProcessed", ts, evt)
		}
		if d.IsSynced() {
			t.Errorf("should not be synced yet at %d", ts)
		}
	}

	evt = d.OnEdge(9000) // delta = 3000 = 3x previous 1000
	if evt != EventSyncGained {
		t.Errorf("gap edge = %v, want SyncGained", evt)
	}
	if !d.IsSynced() {
		t.Error("expected synced after gap")
	}
	if d.GetAngle() != 0.0 {
		t.Errorf("angle after SyncGained = %v, want 0.0", d.GetAngle())
	}

	evt = d.OnEdge(10000)
	if evt != EventToothProcessed {
		t.Errorf("post-gap edge = %v, want ToothProcessed", evt)
	}
	if got, want := d.GetAngle(), float32(6.0); got != want {
		t.Errorf("angle = %v, want %v", got, want)
	}
}

func TestWrapAround(t *testing.T) {
	d := New(60, 2)

	start := uint32(1<<32-1) - 1500
	evt := d.OnEdge(start)
	if evt != EventNone {
		t.Fatalf("first edge = %v, want None", evt)
	}

	t2 := start + 1000 // still pre-wrap
	evt = d.OnEdge(t2)
	if evt != EventToothProcessed {
		t.Fatalf("second edge = %v, want ToothProcessed", evt)
	}

	t3 := t2 + 1000 // wraps past uint32 max
	evt = d.OnEdge(t3)
	if evt != EventToothProcessed {
		t.Fatalf("third (wrapped) edge = %v, want ToothProcessed", evt)
	}
}

func Test36Minus1GapRatio(t *testing.T) {
	d := New(36, 1)

	current := uint32(10_000_000)
	d.OnEdge(current)

	toothTime := uint32(1666)
	for i := 0; i < 10; i++ {
		current += toothTime
		evt := d.OnEdge(current)
		if evt != EventToothProcessed {
			t.Fatalf("stabilizing edge %d = %v, want ToothProcessed", i, evt)
		}
		if d.IsSynced() {
			t.Fatalf("should not be synced before gap (edge %d)", i)
		}
	}

	current += toothTime * 2 // 3332 = 2x previous, 2 > 1.5
	evt := d.OnEdge(current)
	if evt != EventSyncGained {
		t.Errorf("gap edge = %v, want SyncGained", evt)
	}
	if d.GetAngle() != 0.0 {
		t.Errorf("angle after gap = %v, want 0.0", d.GetAngle())
	}
}

func TestNoiseRejectionPreservesLastDelta(t *testing.T) {
	d := New(60, 2)

	d.OnEdge(0)
	evt := d.OnEdge(1000) // establishes last_delta = 1000
	if evt != EventToothProcessed {
		t.Fatalf("second edge = %v, want ToothProcessed", evt)
	}

	evt = d.OnEdge(1100) // only 100us later: noise
	if evt != EventNoise {
		t.Fatalf("noise edge = %v, want Noise", evt)
	}

	// Fourth edge 1000us after the second (900us after the noise pulse):
	// must still be evaluated against last_delta=1000, not 100.
	evt = d.OnEdge(2000)
	if evt != EventToothProcessed {
		t.Errorf("edge after noise = %v, want ToothProcessed", evt)
	}
}

func TestNoiseRejectionBelowAbsoluteFloor(t *testing.T) {
	d := New(60, 2)
	d.OnEdge(0)
	d.OnEdge(1000)
	evt := d.OnEdge(1003) // delta = 3 < 5us absolute floor
	if evt != EventNoise {
		t.Errorf("sub-5us edge = %v, want Noise", evt)
	}
}

func TestRPMFilterStepResponse(t *testing.T) {
	d := New(60, 2)

	current := uint32(0)
	d.OnEdge(current)
	for i := 0; i < 50; i++ {
		current += 1000
		d.OnEdge(current)
	}

	rpm := d.GetRPM()
	if rpm < 990 || rpm > 1010 {
		t.Fatalf("settled RPM = %d, want ~1000", rpm)
	}

	current += 500 // half the steady period -> instantaneous spike
	d.OnEdge(current)

	if got := d.GetInstantRPM(); got != 2000 {
		t.Errorf("instant RPM after spike = %d, want 2000", got)
	}

	filtered := d.GetRPM()
	if filtered <= 1000 || filtered >= 2000 {
		t.Errorf("filtered RPM after spike = %d, want strictly between 1000 and 2000", filtered)
	}
}

func TestStallDetection(t *testing.T) {
	d := New(60, 2)

	current := uint32(0)
	d.OnEdge(current)
	for i := 0; i < 10; i++ {
		current += 1000
		d.OnEdge(current)
	}
	if d.GetRPM() == 0 {
		t.Fatal("expected nonzero RPM before stall")
	}

	stallTime := current + DefaultStallTimeoutUS + 1
	if stalled := d.CheckStall(stallTime); !stalled {
		t.Fatal("expected CheckStall to report stall")
	}
	if stalled := d.CheckStall(stallTime + 1); stalled {
		t.Error("CheckStall should be idempotent once stalled")
	}
	if d.GetRPM() != 0 {
		t.Errorf("RPM after stall = %d, want 0", d.GetRPM())
	}
	if d.IsSynced() {
		t.Error("decoder should be unsynced after stall")
	}
}

func TestMaxToothTimeResetsOnNextEdge(t *testing.T) {
	d := New(60, 2)

	d.OnEdge(0)
	d.OnEdge(1000)

	// silence longer than max_tooth_time_us
	evt := d.OnEdge(1000 + DefaultMaxToothTimeUS + 1)
	if evt != EventNone {
		t.Errorf("post-timeout edge = %v, want None (treated as cold start)", evt)
	}
	if d.IsSynced() {
		t.Error("decoder should not be synced after a max-tooth-time reset")
	}
}

func TestAngleAlwaysInRange(t *testing.T) {
	d := New(60, 2)
	current := uint32(0)
	for i := 0; i < 200; i++ {
		current += 1000
		d.OnEdge(current)
		a := d.GetAngle()
		if a < 0 || a >= 360 {
			t.Fatalf("angle out of range at iteration %d: %v", i, a)
		}
	}
}

func TestToothOverflowCausesSyncLost(t *testing.T) {
	d := New(12, 2) // small wheel: 10 real teeth, gap at index 10

	current := uint32(0)
	d.OnEdge(current)
	toothTime := uint32(1000)
	for i := 0; i < 9; i++ {
		current += toothTime
		d.OnEdge(current)
	}
	if d.IsSynced() {
		t.Fatal("should not be synced before a gap has ever been seen")
	}

	// Never send a gap: keep sending normal-length teeth past the wheel's
	// real tooth count so current_tooth_idx overflows the expected range.
	current += toothTime
	evt := d.OnEdge(current)
	if evt != EventSyncLost {
		t.Fatalf("overflow edge = %v, want SyncLost", evt)
	}
	if d.IsSynced() {
		t.Error("should be unsynced after SyncLost")
	}
}

func TestResetThenColdStartBehavesLikeFreshDecoder(t *testing.T) {
	d := New(60, 2)
	current := uint32(0)
	d.OnEdge(current)
	for i := 0; i < 5; i++ {
		current += 1000
		d.OnEdge(current)
	}

	current += DefaultMaxToothTimeUS + 1000
	evt := d.OnEdge(current)
	if evt != EventNone {
		t.Fatalf("reset edge = %v, want None", evt)
	}

	evt = d.OnEdge(current + 1000)
	if evt != EventToothProcessed {
		t.Errorf("edge after reset = %v, want ToothProcessed", evt)
	}
	if d.GetRPM() != 0 {
		// RPM only updates once current_tooth_idx > 1 post-reset.
		t.Errorf("RPM immediately after reset = %d, want 0", d.GetRPM())
	}
}
