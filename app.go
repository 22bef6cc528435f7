//go:build !cli

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/kbuckham/crankd/calibration"
	"github.com/kbuckham/crankd/decoder"
	"github.com/kbuckham/crankd/engine"
	"github.com/kbuckham/crankd/fuel"
	"github.com/kbuckham/crankd/logger"
	"github.com/kbuckham/crankd/protocol"
	"github.com/kbuckham/crankd/version"
)

// App struct holds the application state and is bound to the Wails frontend.
type App struct {
	ctx context.Context

	mu         sync.Mutex
	conn       *protocol.SerialConn
	sim        *protocol.Simulator
	edgeCancel context.CancelFunc
	ctrl       *engine.Controller
	csvWriter  *logger.CSVWriter
	connected  bool
	demoMode   bool
	commLog    *CommLog
}

// NewApp creates a new App instance.
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts. The context is saved for runtime calls.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	slog.Info("crankd app started")
}

// shutdown is called when the app is closing.
func (a *App) shutdown(ctx context.Context) {
	a.Disconnect()
	slog.Info("crankd app shutdown")
}

// --- Methods exposed to the frontend via Wails bindings ---

// ListSerialPorts returns available serial ports on the system.
func (a *App) ListSerialPorts() ([]string, error) {
	return protocol.ListPorts()
}

// Connect opens a serial connection to the adapter board and starts the
// engine controller against it.
func (a *App) Connect(port string, baud int, teeth, teethMissing uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return fmt.Errorf("already connected")
	}

	if baud <= 0 {
		baud = protocol.DefaultBaudRate
	}

	conn := protocol.NewSerialConn(port, baud)
	if err := conn.Open(); err != nil {
		return err
	}
	a.conn = conn

	dec := decoder.New(teeth, teethMissing)
	edgeClock := engine.NewEdgeClock()
	sampler := protocol.NewSerialSensorSampler(conn)
	a.ctrl = engine.New(dec, calibration.Default(), fuel.New(2000, 4, 300), sampler, edgeClock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	a.edgeCancel = cancel
	edgeSource := protocol.NewSerialEdgeSource(conn)
	go edgeSource.Run(ctx, func(ts uint32) {
		edgeClock.Observe(ts)
		dec.OnEdge(ts)
	})

	a.connected = true
	runtime.EventsEmit(a.ctx, "connection:status", map[string]interface{}{
		"connected": true, "port": port, "baud": baud,
	})
	slog.Info("connected to adapter board", "port", port, "baud", baud)
	return nil
}

// ConnectDemo starts a simulated driving cycle for UI development.
func (a *App) ConnectDemo(teeth, teethMissing uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return fmt.Errorf("already connected")
	}

	dec := decoder.New(teeth, teethMissing)
	edgeClock := engine.NewEdgeClock()
	sim := protocol.NewSimulator(teeth, teethMissing)
	a.sim = sim
	a.ctrl = engine.New(dec, calibration.Default(), fuel.New(2000, 4, 300), sim, edgeClock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	a.edgeCancel = cancel
	go sim.Run(ctx, func(ts uint32) {
		edgeClock.Observe(ts)
		dec.OnEdge(ts)
	})

	a.connected = true
	a.demoMode = true
	runtime.EventsEmit(a.ctx, "connection:status", map[string]interface{}{
		"connected": true, "port": "DEMO", "baud": 0, "demo": true,
	})
	slog.Info("connected in DEMO mode (simulated driving cycle)")
	return nil
}

// IsDemoMode returns whether the app is in demo/simulator mode.
func (a *App) IsDemoMode() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.demoMode
}

// Disconnect stops the controller and closes any open connection.
func (a *App) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ctrl != nil && a.ctrl.IsRunning() {
		a.ctrl.Stop()
	}
	if a.edgeCancel != nil {
		a.edgeCancel()
	}
	if a.csvWriter != nil {
		a.csvWriter.Close()
		a.csvWriter = nil
	}
	if a.conn != nil {
		a.conn.Close()
	}

	a.connected = false
	a.demoMode = false
	a.conn = nil
	a.sim = nil
	a.ctrl = nil

	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "connection:status", map[string]interface{}{"connected": false})
	}
	return nil
}

// IsConnected returns the connection status.
func (a *App) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// StartMonitoring begins running the engine controller and emitting
// readings to the frontend.
func (a *App) StartMonitoring() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected || a.ctrl == nil {
		return fmt.Errorf("not connected")
	}
	if a.ctrl.IsRunning() {
		return nil
	}

	a.ctrl.OnSample(func(r engine.Reading) {
		runtime.EventsEmit(a.ctx, "engine:reading", map[string]interface{}{
			"time":          r.Time.Format(time.RFC3339Nano),
			"rpmInstant":    r.RPMInstant,
			"rpmFiltered":   r.RPMFiltered,
			"angleDeg":      r.AngleDeg,
			"synced":        r.Synced,
			"mapKPa":        r.MAPKPa,
			"iatC":          r.IATCelsius,
			"vePercent":     r.VEPercent,
			"afrTarget":     r.AFRTarget,
			"advanceDeg":    r.AdvanceDeg,
			"airMassG":      r.AirMassG,
			"pulseWidthUS":  r.PulseWidthUS,
		})
	})
	a.ctrl.OnDisconnect(func() {
		a.log("error", "sensor link lost", "watchdog tripped")
	})
	a.ctrl.OnError(func(err error) {
		a.log("warn", "sensor sampling error", err.Error())
	})

	a.ctrl.Start()
	go a.emitStats()
	return nil
}

// StopMonitoring stops the controller's tick loop.
func (a *App) StopMonitoring() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctrl != nil {
		a.ctrl.Stop()
	}
}

// StartLogging begins writing readings to a CSV file.
func (a *App) StartLogging(filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.csvWriter != nil {
		return fmt.Errorf("already logging")
	}
	if a.ctrl == nil {
		return fmt.Errorf("not connected")
	}

	w, err := logger.NewCSVWriter(filename)
	if err != nil {
		return err
	}
	a.csvWriter = w

	a.ctrl.OnSample(func(r engine.Reading) {
		if a.csvWriter != nil {
			a.csvWriter.WriteReading(r)
		}
	})

	runtime.EventsEmit(a.ctx, "logging:status", map[string]interface{}{"logging": true, "filename": filename})
	return nil
}

// StopLogging stops CSV logging.
func (a *App) StopLogging() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.csvWriter == nil {
		return nil
	}
	count := a.csvWriter.Count()
	err := a.csvWriter.Close()
	a.csvWriter = nil

	runtime.EventsEmit(a.ctx, "logging:status", map[string]interface{}{"logging": false, "count": count})
	return err
}

// AboutInfo holds application metadata for the frontend.
type AboutInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Developers  string `json:"developers"`
	Copyright   string `json:"copyright"`
	License     string `json:"license"`
	URL         string `json:"url"`
}

// GetAboutInfo returns application version info.
func (a *App) GetAboutInfo() *AboutInfo {
	return &AboutInfo{
		Name:        version.Name,
		Version:     version.Version,
		Description: version.Description,
		Developers:  version.Developers,
		Copyright:   version.Copyright,
		License:     version.License,
		URL:         version.URL,
	}
}

// LogData is the structure returned to the frontend for graph display.
type LogData struct {
	ElapsedMs   []float64 `json:"elapsedMs"`
	RPMFiltered []float64 `json:"rpmFiltered"`
	AngleDeg    []float64 `json:"angleDeg"`
	MAPKPa      []float64 `json:"mapKPa"`
	AFRTarget   []float64 `json:"afrTarget"`
	PulseWidth  []float64 `json:"pulseWidth"`
	Count       int       `json:"count"`
	Name        string    `json:"name"`
}

// LoadLogFile opens a file dialog to pick a log file (CSV or .crktrace),
// reads it, and returns the data for the graph.
func (a *App) LoadLogFile() (*LogData, error) {
	selection, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Open Log File",
		Filters: []runtime.FileFilter{
			{DisplayName: "Log Files (*.csv, *.crktrace)", Pattern: "*.csv;*.crktrace"},
			{DisplayName: "CSV Files (*.csv)", Pattern: "*.csv"},
			{DisplayName: "crankd trace (*.crktrace)", Pattern: "*.crktrace"},
			{DisplayName: "All Files (*.*)", Pattern: "*.*"},
		},
	})
	if err != nil {
		return nil, err
	}
	if selection == "" {
		return nil, fmt.Errorf("cancelled")
	}

	slog.Info("loading log file", "path", selection)

	lower := strings.ToLower(selection)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return a.loadCSVLog(selection)
	case strings.HasSuffix(lower, ".crktrace"):
		return a.loadTraceLog(selection)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", selection)
	}
}

func (a *App) loadCSVLog(path string) (*LogData, error) {
	csvLog, err := logger.ReadCSVLog(path)
	if err != nil {
		return nil, err
	}
	return &LogData{
		ElapsedMs:   csvLog.ElapsedMs,
		RPMFiltered: csvLog.RPMFiltered,
		AngleDeg:    csvLog.AngleDeg,
		MAPKPa:      csvLog.MAPKPa,
		AFRTarget:   csvLog.AFRTarget,
		PulseWidth:  csvLog.PulseWidth,
		Count:       csvLog.Count,
		Name:        path,
	}, nil
}

func (a *App) loadTraceLog(path string) (*LogData, error) {
	trace, err := logger.ReadTrace(path)
	if err != nil {
		return nil, err
	}

	data := &LogData{Name: path, Count: len(trace.Readings)}
	var start time.Time
	for i, r := range trace.Readings {
		if i == 0 {
			start = r.Time
		}
		data.ElapsedMs = append(data.ElapsedMs, float64(r.Time.Sub(start).Milliseconds()))
		data.RPMFiltered = append(data.RPMFiltered, float64(r.RPMFiltered))
		data.AngleDeg = append(data.AngleDeg, float64(r.AngleDeg))
		data.MAPKPa = append(data.MAPKPa, r.MAPKPa)
		data.AFRTarget = append(data.AFRTarget, r.AFRTarget)
		data.PulseWidth = append(data.PulseWidth, float64(r.PulseWidthUS))
	}
	return data, nil
}
