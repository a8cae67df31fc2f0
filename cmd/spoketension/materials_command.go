package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/spoke-tension/measure/tension"
)

func newMaterialsCommand(ctx *commandContext) *cobra.Command {
	var diameterMM float64

	cmd := &cobra.Command{
		Use:   "materials",
		Short: "List spoke material presets with their linear density",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			d := diameterMM
			if d <= 0 {
				d = cfg.Spoke.DiameterMM
			}
			lengthM := cfg.Spoke.LengthMM / 1000

			rows := make([][]string, 0, len(tension.Materials()))
			for _, m := range tension.Materials() {
				lin := tension.LinearDensity(m.Density(), d/1000)
				rows = append(rows, []string{
					string(m),
					fmt.Sprintf("%.0f", m.Density()),
					fmt.Sprintf("%.4f", lin),
					fmt.Sprintf("%.2f", lengthM*lin*1000),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Diameter %.2f mm, length %.0f mm\n", d, cfg.Spoke.LengthMM)
			fmt.Fprintln(out, renderTable(
				[]string{"Material", "Density (kg/m³)", "Linear density (kg/m)", "Spoke mass (g)"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().Float64Var(&diameterMM, "diameter-mm", 0, "Spoke diameter in mm (default spoke.diameter_mm)")
	return cmd
}
