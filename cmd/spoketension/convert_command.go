package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/spoke-tension/internal/config"
	"github.com/cwbudde/spoke-tension/measure/tension"
)

type spokeFlags struct {
	lengthMM      float64
	material      string
	diameterMM    float64
	linearDensity float64
}

func (f *spokeFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&f.lengthMM, "length-mm", 0, "Free spoke length in mm (overrides spoke.length_mm)")
	fs.StringVar(&f.material, "material", "", "Spoke material (overrides spoke.material)")
	fs.Float64Var(&f.diameterMM, "diameter-mm", 0, "Spoke diameter in mm (overrides spoke.diameter_mm)")
	fs.Float64Var(&f.linearDensity, "linear-density", 0, "Mass per metre in kg/m; implies --material other")
}

// apply overlays the flags on s.
func (f *spokeFlags) apply(s config.Spoke) config.Spoke {
	if f.lengthMM > 0 {
		s.LengthMM = f.lengthMM
	}
	if f.diameterMM > 0 {
		s.DiameterMM = f.diameterMM
	}
	if f.linearDensity > 0 {
		s.Material = string(tension.Other)
		s.LinearDensityKgM = f.linearDensity
	}
	if f.material != "" {
		s.Material = f.material
	}
	return s
}

// spokeModel returns length and mass for the effective spoke.
func spokeModel(s config.Spoke) (lengthM, massKg float64, err error) {
	if s.LengthMM <= 0 {
		return 0, 0, fmt.Errorf("spoke length must be > 0: %v", s.LengthMM)
	}
	lin, err := s.LinearDensity()
	if err != nil {
		return 0, 0, err
	}
	lengthM = s.LengthMM / 1000
	return lengthM, lengthM * lin, nil
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags spokeFlags

	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert between vibration frequency and tension for a spoke",
	}
	flags.register(convertCmd.PersistentFlags())

	spoke := func() (float64, float64, error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return 0, 0, err
		}
		return spokeModel(flags.apply(cfg.Spoke))
	}

	convertCmd.AddCommand(&cobra.Command{
		Use:   "hz <frequency>...",
		Short: "Frequency in Hz to tension",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lengthM, massKg, err := spoke()
			if err != nil {
				return err
			}
			values, err := parseValues(args)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(values))
			for _, hz := range values {
				if hz < 0 {
					return fmt.Errorf("frequency must be >= 0: %v", hz)
				}
				t := tension.FromFrequency(hz, massKg, lengthM)
				rows = append(rows, []string{
					fmt.Sprintf("%.1f", hz),
					fmt.Sprintf("%.1f", t.Newton()),
					fmt.Sprintf("%.2f", t.Kgf()),
				})
			}
			printSpoke(cmd, lengthM, massKg)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Frequency (Hz)", "Tension (N)", "Tension (kgf)"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight},
			))
			return nil
		},
	})

	convertCmd.AddCommand(&cobra.Command{
		Use:   "kgf <tension>...",
		Short: "Tension in kgf to frequency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lengthM, massKg, err := spoke()
			if err != nil {
				return err
			}
			values, err := parseValues(args)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(values))
			for _, kgf := range values {
				n := tension.NewtonFromKgf(kgf)
				hz, err := tension.FrequencyFromTension(n, massKg, lengthM)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					fmt.Sprintf("%.2f", kgf),
					fmt.Sprintf("%.1f", n),
					fmt.Sprintf("%.1f", hz),
				})
			}
			printSpoke(cmd, lengthM, massKg)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Tension (kgf)", "Tension (N)", "Frequency (Hz)"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight},
			))
			return nil
		},
	})

	return convertCmd
}

func printSpoke(cmd *cobra.Command, lengthM, massKg float64) {
	fmt.Fprintf(cmd.OutOrStdout(), "Spoke: %.0f mm, %.2f g\n", lengthM*1000, massKg*1000)
}

func parseValues(args []string) ([]float64, error) {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out = append(out, v)
	}
	return out, nil
}
