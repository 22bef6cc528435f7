package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbuckham/crankd/logger"
)

var reviewFile string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review a saved CSV trace file in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reviewFile == "" {
			return fmt.Errorf("--file is required")
		}

		log, err := logger.ReadCSVLog(reviewFile)
		if err != nil {
			return err
		}

		fmt.Printf("Log file: %s\n", reviewFile)
		fmt.Printf("Rows: %d\n\n", log.Count)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "elapsed_ms\trpm_filtered\tangle_deg\tmap_kpa\tafr_target\tpulse_width_us")
		fmt.Fprintln(w, strings.Repeat("-\t", 5)+"-")

		limit := log.Count
		if limit > 50 {
			limit = 50
		}
		for i := 0; i < limit; i++ {
			fmt.Fprintf(w, "%.0f\t%.0f\t%.1f\t%.1f\t%.2f\t%.0f\n",
				log.ElapsedMs[i], log.RPMFiltered[i], log.AngleDeg[i],
				log.MAPKPa[i], log.AFRTarget[i], log.PulseWidth[i])
		}
		w.Flush()

		if log.Count > 50 {
			fmt.Printf("\n... showing first 50 of %d rows\n", log.Count)
		}

		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewFile, "file", "f", "", "CSV trace file to review")
	rootCmd.AddCommand(reviewCmd)
}
