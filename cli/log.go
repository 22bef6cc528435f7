package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbuckham/crankd/engine"
	"github.com/kbuckham/crankd/logger"
)

var (
	logOutputCSV   string
	logOutputTrace string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Run the decoder and fuel model, persisting readings to CSV and/or a binary trace",
	RunE: func(cmd *cobra.Command, args []string) error {
		if logOutputCSV == "" && logOutputTrace == "" {
			return fmt.Errorf("at least one of --csv or --trace is required")
		}

		re, err := buildEngine()
		if err != nil {
			return err
		}
		defer re.Close()

		var csvWriter *logger.CSVWriter
		if logOutputCSV != "" {
			csvWriter, err = logger.NewCSVWriter(logOutputCSV)
			if err != nil {
				return fmt.Errorf("failed to create CSV file: %w", err)
			}
			defer csvWriter.Close()
			fmt.Printf("Logging CSV to: %s\n", logOutputCSV)
		}

		var traceWriter *logger.TraceWriter
		if logOutputTrace != "" {
			traceWriter, err = logger.NewTraceWriter(logOutputTrace)
			if err != nil {
				return fmt.Errorf("failed to create trace file: %w", err)
			}
			defer traceWriter.Close()
			fmt.Printf("Logging trace to: %s\n", logOutputTrace)
		}

		sampleCount := 0
		startTime := time.Now()

		re.controller.OnSample(func(r engine.Reading) {
			sampleCount++
			if csvWriter != nil {
				if err := csvWriter.WriteReading(r); err != nil {
					slog.Error("CSV write error", "error", err)
				}
			}
			if traceWriter != nil {
				if err := traceWriter.WriteReading(r); err != nil {
					slog.Error("trace write error", "error", err)
				}
			}
		})

		re.controller.OnDisconnect(func() {
			fmt.Fprintln(os.Stderr, "sensor link lost, stopping")
		})

		re.controller.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nStopping...")

		elapsed := time.Since(startTime)
		fmt.Printf("Collected %d cycles in %s (%.1f Hz)\n",
			sampleCount, elapsed.Round(time.Millisecond), float64(sampleCount)/elapsed.Seconds())

		if csvWriter != nil {
			fmt.Printf("Saved CSV: %s (%d rows)\n", logOutputCSV, csvWriter.Count())
		}
		if traceWriter != nil {
			fmt.Printf("Saved trace: %s (%d samples)\n", logOutputTrace, traceWriter.Count())
		}

		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logOutputCSV, "csv", "", "Output CSV file path")
	logCmd.Flags().StringVar(&logOutputTrace, "trace", "", "Output .crktrace binary file path")
	rootCmd.AddCommand(logCmd)
}
