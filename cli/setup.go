package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kbuckham/crankd/calibration"
	"github.com/kbuckham/crankd/decoder"
	"github.com/kbuckham/crankd/engine"
	"github.com/kbuckham/crankd/fuel"
	"github.com/kbuckham/crankd/protocol"
	"github.com/kbuckham/crankd/telemetry"
)

// runningEngine bundles an engine.Controller with the edge source feeding
// it and the teardown needed to release hardware or stop the simulator.
type runningEngine struct {
	controller *engine.Controller
	cancel     context.CancelFunc
	closers    []func() error
}

func (r *runningEngine) Close() error {
	r.cancel()
	r.controller.Stop()
	var firstErr error
	for _, c := range r.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildEngine wires a decoder, calibration set, fuel model, and edge
// source (serial adapter or simulator) into a running Controller, per the
// persistent --port/--simulate/--teeth/--calibration flags.
func buildEngine() (*runningEngine, error) {
	if !cfgSimulate && cfgPort == "" {
		return nil, fmt.Errorf("--port is required (or pass --simulate)")
	}

	dec := decoder.New(cfgTeeth, cfgTeethMissing)

	var cal *calibration.Set
	if cfgCalibration != "" {
		loaded, err := calibration.Load(cfgCalibration)
		if err != nil {
			return nil, fmt.Errorf("failed to load calibration: %w", err)
		}
		cal = loaded
	} else {
		cal = calibration.Default()
	}

	fuelMdl := fuel.New(cfgDisplCC, cfgCylinders, cfgInjectorFlow)

	ctx, cancel := context.WithCancel(context.Background())
	re := &runningEngine{cancel: cancel}

	edgeClock := engine.NewEdgeClock()
	onEdge := func(ts uint32) {
		edgeClock.Observe(ts)
		dec.OnEdge(ts)
	}

	if cfgSimulate {
		sim := protocol.NewSimulator(cfgTeeth, cfgTeethMissing)
		ctrl := engine.New(dec, cal, fuelMdl, sim, edgeClock.Now)
		go sim.Run(ctx, onEdge)
		re.controller = ctrl
		attachCANBroadcaster(re)
		return re, nil
	}

	conn := protocol.NewSerialConn(cfgPort, cfgBaud)
	if err := conn.Open(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	re.closers = append(re.closers, conn.Close)

	sampler := protocol.NewSerialSensorSampler(conn)
	ctrl := engine.New(dec, cal, fuelMdl, sampler, edgeClock.Now)

	edgeSource := protocol.NewSerialEdgeSource(conn)
	go edgeSource.Run(ctx, onEdge)

	re.controller = ctrl
	attachCANBroadcaster(re)
	return re, nil
}

// attachCANBroadcaster wires a telemetry.Broadcaster to the controller's
// sample stream when --can-iface was given. A dial failure is logged and
// otherwise ignored: CAN broadcast is an enrichment, not a requirement for
// decode/log/review to work.
func attachCANBroadcaster(re *runningEngine) {
	if cfgCANIface == "" {
		return
	}
	bc, err := telemetry.Dial(cfgCANIface)
	if err != nil {
		slog.Warn("CAN broadcaster disabled: failed to dial interface", "iface", cfgCANIface, "error", err)
		return
	}
	re.controller.OnSample(bc.Publish)
	re.closers = append(re.closers, bc.Close)
}
