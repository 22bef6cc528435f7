package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbuckham/crankd/calibration"
)

var (
	calRPM    float64
	calMAPKPa float64
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Query VE/AFR/advance calibration surfaces at a given RPM and MAP",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cal *calibration.Set
		if cfgCalibration != "" {
			loaded, err := calibration.Load(cfgCalibration)
			if err != nil {
				return fmt.Errorf("failed to load calibration: %w", err)
			}
			cal = loaded
			fmt.Printf("Calibration: %s\n", cfgCalibration)
		} else {
			cal = calibration.Default()
			fmt.Println("Calibration: built-in default")
		}

		fmt.Printf("Query point: %.0f RPM, %.1f kPa\n\n", calRPM, calMAPKPa)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "VE\t%.2f %%\n", cal.VE.Interpolate(calRPM, calMAPKPa))
		fmt.Fprintf(w, "AFR target\t%.2f\n", cal.AFR.Interpolate(calRPM, calMAPKPa))
		fmt.Fprintf(w, "Advance\t%.2f deg BTDC\n", cal.Advance.Interpolate(calRPM, calMAPKPa))
		w.Flush()

		return nil
	},
}

func init() {
	calibrateCmd.Flags().Float64Var(&calRPM, "rpm", 3000, "Query RPM")
	calibrateCmd.Flags().Float64Var(&calMAPKPa, "map-kpa", 70, "Query MAP, kPa")
	rootCmd.AddCommand(calibrateCmd)
}
