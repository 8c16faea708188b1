package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"

	"gopixel/core"
)

var (
	profileClock   string
	profileVariant string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the cycle timing derived for a clock",
	Long: `Derives the WS281x timing profile for a cycle counter running at --clock and
prints the cycle counts together with the nanoseconds they amount to.`,
	Example: "  gopixel-host profile --clock 150MHz\n  gopixel-host profile --clock 125MHz --variant ws2811",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := physicFreq(profileClock)
		if err != nil {
			return err
		}
		hz := uint64(f / physic.Hertz)
		if hz < core.MinClockFrequency || hz > core.MaxClockFrequency {
			return fmt.Errorf("%s: %w", f, core.ErrClockFrequency)
		}
		freq := uint32(hz)

		variants := []core.Variant{core.VariantWS2812, core.VariantWS2811, core.VariantDual}
		if profileVariant != "" {
			v, ok := core.ParseVariant(profileVariant)
			if !ok {
				return fmt.Errorf("unknown variant %q", profileVariant)
			}
			variants = []core.Variant{v}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "clock %s\n", f)
		fmt.Fprintln(w, "variant\tshort_high\tlong_high\tperiod\tmixed_high")
		for _, v := range variants {
			p := core.NewProfile(freq, v)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v,
				cyclesNS(freq, p.ShortHigh), cyclesNS(freq, p.LongHigh),
				cyclesNS(freq, p.Period), cyclesNS(freq, p.MixedHigh))
		}
		return w.Flush()
	},
}

func cyclesNS(freq, cycles uint32) string {
	return fmt.Sprintf("%d (%dns)", cycles, core.CyclesToNS(freq, cycles))
}

func init() {
	profileCmd.Flags().StringVar(&profileClock, "clock", "150MHz", "cycle counter frequency")
	profileCmd.Flags().StringVar(&profileVariant, "variant", "", "only this variant (ws2812, ws2811, dual)")
	rootCmd.AddCommand(profileCmd)
}
