// Package telemetry broadcasts engine readings onto a CAN bus for external
// dashboards and loggers, using go.einride.tech/can over SocketCAN.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/kbuckham/crankd/engine"
)

// CAN IDs for the frames this broadcaster emits. Each carries one logical
// group of Reading fields so a dashboard can subscribe selectively.
const (
	FrameIDRPMAngle  uint32 = 0x360 // rpm_filtered, rpm_instant, angle, synced
	FrameIDAirFuel   uint32 = 0x361 // map_kpa, iat_c, ve_percent, afr_target
	FrameIDIgnFuel   uint32 = 0x362 // advance_deg, air_mass_g, pulse_width_us
)

// sendQueueDepth bounds how many frames can be buffered between controller
// cycles before the broadcaster starts dropping, so a slow or stalled bus
// never backs up into the engine controller's hot path.
const sendQueueDepth = 32

// Broadcaster publishes engine.Reading values onto a SocketCAN interface.
// Sends are non-blocking: a full queue drops the newly published reading
// rather than stalling the caller.
type Broadcaster struct {
	tx     *socketcan.Transmitter
	conn   interface{ Close() error }
	queue  chan engine.Reading
	done   chan struct{}
	cancel context.CancelFunc
}

// Dial opens a SocketCAN connection on the named interface (e.g. "can0")
// and starts the broadcaster's send loop.
func Dial(ifaceName string) (*Broadcaster, error) {
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := socketcan.DialContext(ctx, "can", ifaceName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to dial CAN interface %s: %w", ifaceName, err)
	}

	b := &Broadcaster{
		tx:     socketcan.NewTransmitter(conn),
		conn:   conn,
		queue:  make(chan engine.Reading, sendQueueDepth),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go b.run(ctx)
	return b, nil
}

// Publish enqueues a reading for transmission. It never blocks: if the
// queue is full, the reading is dropped and counted via a debug log line.
func (b *Broadcaster) Publish(r engine.Reading) {
	select {
	case b.queue <- r:
	default:
		slog.Debug("CAN broadcaster queue full, dropping reading")
	}
}

// Close stops the send loop and closes the underlying connection.
func (b *Broadcaster) Close() error {
	b.cancel()
	<-b.done
	return b.conn.Close()
}

func (b *Broadcaster) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-b.queue:
			b.send(ctx, r)
		}
	}
}

func (b *Broadcaster) send(ctx context.Context, r engine.Reading) {
	frames := [...]can.Frame{
		encodeRPMAngle(r),
		encodeAirFuel(r),
		encodeIgnFuel(r),
	}
	for _, f := range frames {
		if err := b.tx.TransmitFrame(ctx, f); err != nil {
			slog.Debug("CAN frame transmit failed", "id", f.ID, "error", err)
		}
	}
}

func encodeRPMAngle(r engine.Reading) can.Frame {
	var data [8]byte
	putU16(data[0:2], r.RPMFiltered)
	putU16(data[2:4], r.RPMInstant)
	data[4] = byte(r.AngleDeg)
	if r.Synced {
		data[5] = 1
	}
	return can.Frame{ID: FrameIDRPMAngle, Length: 6, Data: data}
}

func encodeAirFuel(r engine.Reading) can.Frame {
	var data [8]byte
	putU16(data[0:2], uint16(r.MAPKPa*10))
	putU16(data[2:4], uint16((r.IATCelsius+40)*10))
	putU16(data[4:6], uint16(r.VEPercent*10))
	putU16(data[6:8], uint16(r.AFRTarget*10))
	return can.Frame{ID: FrameIDAirFuel, Length: 8, Data: data}
}

func encodeIgnFuel(r engine.Reading) can.Frame {
	var data [8]byte
	putU16(data[0:2], uint16((r.AdvanceDeg+40)*10))
	putU16(data[2:4], uint16(r.AirMassG*1000))
	putU32(data[4:8], r.PulseWidthUS)
	return can.Frame{ID: FrameIDIgnFuel, Length: 8, Data: data}
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
