// Package cli wires crankd's cobra command tree: decode, log, review,
// bench, calibrate, about.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbuckham/crankd/version"
)

var (
	cfgPort         string
	cfgBaud         int
	cfgVerbose      bool
	cfgLogFile      string
	cfgYes          bool
	cfgSimulate     bool
	cfgTeeth        uint8
	cfgTeethMissing uint8
	cfgCalibration  string
	cfgDisplCC      float64
	cfgCylinders    int
	cfgInjectorFlow float64
	cfgCANIface     string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "crankd",
	Short:   "crankd — missing-tooth crank decoder and speed-density fuel scheduler",
	Version: version.FullVersion(),
	Long: fmt.Sprintf(`%s v%s
%s

Developed by %s
%s

Use subcommands for headless operation (decode, log, review, bench, calibrate).`,
		version.Name, version.Version, version.Description,
		version.Developers, version.Copyright),
}

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Show application information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s v%s\n", version.Name, version.FullVersion())
		fmt.Println()
		fmt.Println(version.Description)
		fmt.Println()
		fmt.Printf("Developers:  %s\n", version.Developers)
		fmt.Printf("License:     %s\n", version.License)
		fmt.Println(version.Copyright)
		fmt.Printf("Source:      %s\n", version.URL)
		fmt.Printf("Git hash:    %s\n", version.GitHash)
		fmt.Printf("Built:       %s\n", version.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPort, "port", "p", "", "Serial port (e.g. /dev/ttyUSB0, COM3)")
	rootCmd.PersistentFlags().IntVarP(&cfgBaud, "baud", "b", 115200, "Serial baud rate")
	rootCmd.PersistentFlags().BoolVarP(&cfgVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgLogFile, "log-file", "", "Write log output to file")
	rootCmd.PersistentFlags().BoolVar(&cfgYes, "yes", false, "Skip confirmation prompts")
	rootCmd.PersistentFlags().BoolVar(&cfgSimulate, "simulate", false, "Use the built-in driving-cycle simulator instead of a serial adapter")
	rootCmd.PersistentFlags().Uint8Var(&cfgTeeth, "teeth", 60, "Total teeth on the trigger wheel")
	rootCmd.PersistentFlags().Uint8Var(&cfgTeethMissing, "teeth-missing", 2, "Missing teeth at the trigger gap")
	rootCmd.PersistentFlags().StringVar(&cfgCalibration, "calibration", "", "YAML calibration file (uses built-in default if omitted)")
	rootCmd.PersistentFlags().Float64Var(&cfgDisplCC, "displacement-cc", 2000, "Engine displacement, cc")
	rootCmd.PersistentFlags().IntVar(&cfgCylinders, "cylinders", 4, "Cylinder count")
	rootCmd.PersistentFlags().Float64Var(&cfgInjectorFlow, "injector-cc-min", 300, "Injector static flow rating, cc/min")
	rootCmd.PersistentFlags().StringVar(&cfgCANIface, "can-iface", "", "Broadcast readings on this SocketCAN interface (e.g. can0); disabled if omitted")
	rootCmd.AddCommand(aboutCmd)

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level := slog.LevelInfo
	if cfgVerbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if cfgLogFile != "" {
		f, err := os.OpenFile(cfgLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not open log file %s: %v\n", cfgLogFile, err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// confirmPrompt asks the user for y/N confirmation. Returns true if confirmed.
// If cfgYes is set, returns true without prompting.
func confirmPrompt(msg string) bool {
	if cfgYes {
		return true
	}
	fmt.Printf("%s (y/N): ", msg)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra command, for Wails integration.
func RootCmd() *cobra.Command {
	return rootCmd
}
