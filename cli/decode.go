package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbuckham/crankd/engine"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Stream live decoder output to the terminal without logging to disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := buildEngine()
		if err != nil {
			return err
		}
		defer re.Close()

		sampleCount := 0
		startTime := time.Now()

		re.controller.OnSample(func(r engine.Reading) {
			sampleCount++
			if sampleCount%5 != 0 {
				return
			}
			elapsed := time.Since(startTime).Seconds()
			hz := float64(sampleCount) / elapsed

			fmt.Print("\033[H\033[2J")
			fmt.Printf("crankd decode — %.1f Hz — %d cycles\n", hz, sampleCount)
			fmt.Println(strings.Repeat("-", 60))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "RPM (filtered)\t%d\n", r.RPMFiltered)
			fmt.Fprintf(w, "RPM (instant)\t%d\n", r.RPMInstant)
			fmt.Fprintf(w, "Angle\t%.1f deg\n", r.AngleDeg)
			fmt.Fprintf(w, "Synced\t%v\n", r.Synced)
			if r.Synced {
				fmt.Fprintf(w, "MAP\t%.1f kPa\n", r.MAPKPa)
				fmt.Fprintf(w, "IAT\t%.1f C\n", r.IATCelsius)
				fmt.Fprintf(w, "VE\t%.1f %%\n", r.VEPercent)
				fmt.Fprintf(w, "AFR target\t%.2f\n", r.AFRTarget)
				fmt.Fprintf(w, "Advance\t%.1f deg\n", r.AdvanceDeg)
				fmt.Fprintf(w, "Air mass\t%.4f g\n", r.AirMassG)
				fmt.Fprintf(w, "Pulse width\t%d us\n", r.PulseWidthUS)
			}
			w.Flush()
			fmt.Println(strings.Repeat("-", 60))
			fmt.Println("Press Ctrl+C to stop")
		})

		re.controller.OnDisconnect(func() {
			fmt.Fprintln(os.Stderr, "sensor link lost, stopping")
		})

		re.controller.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nStopping...")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
