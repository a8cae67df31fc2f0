package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/spoke-tension/dsp/window"
)

func newWindowsCommand(ctx *commandContext) *cobra.Command {
	var size int
	var symmetric bool

	cmd := &cobra.Command{
		Use:   "windows [name...]",
		Short: "Print spectral properties of the analysis windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if size <= 0 {
				return fmt.Errorf("size must be > 0: %d", size)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			analyserWindow, err := window.ParseType(cfg.Audio.Window)
			if err != nil {
				return err
			}

			types := window.Types()
			if len(args) > 0 {
				types = types[:0:0]
				for _, name := range args {
					t, err := window.ParseType(name)
					if err != nil {
						return err
					}
					types = append(types, t)
				}
			}

			var opts []window.Option
			if !symmetric {
				opts = append(opts, window.WithPeriodic())
			}

			rows := make([][]string, 0, len(types))
			for _, t := range types {
				coeffs := window.Generate(t, size, opts...)
				name := t.String()
				if t == analyserWindow {
					name += " (analyser)"
				}
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%.6f", window.CoherentGain(coeffs)),
					fmt.Sprintf("%.4f", window.ENBW(coeffs)),
				})
			}

			form := "periodic"
			if symmetric {
				form = "symmetric"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d samples, %s form\n", size, form)
			fmt.Fprintln(out, renderTable(
				[]string{"Window", "Coherent gain", "ENBW (bins)"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 8192, "Window length in samples")
	cmd.Flags().BoolVar(&symmetric, "symmetric", false, "Use the symmetric form instead of the periodic FFT form")
	return cmd
}
