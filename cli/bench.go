package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbuckham/crankd/decoder"
	"github.com/kbuckham/crankd/fuel"
)

// benchScenario is one self-contained, deterministic check against the
// core decoder or fuel model, runnable without any hardware attached.
type benchScenario struct {
	desc string
	run  func() error
}

var benchScenarios = map[string]benchScenario{
	"gap-detection": {
		desc: "60-2 wheel produces a SyncGained event at the missing-tooth gap",
		run: func() error {
			d := decoder.New(60, 2)
			d.OnEdge(1000)
			for _, ts := range []uint32{2000, 3000, 4000, 5000, 6000} {
				d.OnEdge(ts)
			}
			evt := d.OnEdge(9000) // delta = 3000 = 3x the steady 1000 interval
			if evt != decoder.EventSyncGained {
				return fmt.Errorf("expected SyncGained at the gap, got %v", evt)
			}
			if !d.IsSynced() {
				return fmt.Errorf("expected decoder synced after gap")
			}
			return nil
		},
	},
	"stall-detection": {
		desc: "decoder reports stall after exceeding its timeout with no edges",
		run: func() error {
			d := decoder.New(60, 2).WithStallTimeoutUS(500_000)
			current := uint32(0)
			d.OnEdge(current)
			for i := 0; i < 10; i++ {
				current += 1000
				d.OnEdge(current)
			}
			if d.CheckStall(current + 1000) {
				return fmt.Errorf("stalled too early")
			}
			if !d.CheckStall(current + 600_000) {
				return fmt.Errorf("expected stall after timeout elapsed")
			}
			return nil
		},
	},
	"speed-density-sanity": {
		desc: "air mass and pulse width fall within a plausible naturally-aspirated range",
		run: func() error {
			sd := fuel.New(2000, 4, 300)
			mass := sd.AirMass(100, 20, 100)
			if mass <= 0 || mass > 2 {
				return fmt.Errorf("air mass out of range: %v g", mass)
			}
			pw := sd.PulseWidthUS(mass, 14.7)
			if pw == 0 || pw > 50_000 {
				return fmt.Errorf("pulse width out of range: %v us", pw)
			}
			return nil
		},
	},
}

var benchScenarioName string

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run deterministic self-checks against the decoder and fuel model",
	Long:  `Runs built-in scenarios covering the decoder and fuel model without any hardware attached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchScenarioName == "" {
			fmt.Println("Available bench scenarios:")
			for name, s := range benchScenarios {
				fmt.Printf("  %-22s %s\n", name, s.desc)
			}
			fmt.Println()
			fmt.Println("Usage: crankd bench --scenario <name>  (or --scenario all)")
			return nil
		}

		names := []string{benchScenarioName}
		if strings.EqualFold(benchScenarioName, "all") {
			names = names[:0]
			for name := range benchScenarios {
				names = append(names, name)
			}
		}

		failed := 0
		for _, name := range names {
			s, ok := benchScenarios[name]
			if !ok {
				fmt.Printf("unknown scenario: %s\n", name)
				failed++
				continue
			}
			if err := s.run(); err != nil {
				fmt.Printf("FAIL  %-22s %v\n", name, err)
				failed++
			} else {
				fmt.Printf("PASS  %-22s %s\n", name, s.desc)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d scenario(s) failed", failed)
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().StringVarP(&benchScenarioName, "scenario", "c", "", "Scenario name, or 'all'")
	rootCmd.AddCommand(benchCmd)
}
