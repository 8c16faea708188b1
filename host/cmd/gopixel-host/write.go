package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"gopixel/host/config"
)

var (
	writeStrip  stripFlags
	writeFrame  frameFlags
	writeRepeat int
	writeEvery  time.Duration

	dualStrip stripFlags
	dualFrame frameFlags

	sendStrip stripFlags
	sendFrame frameFlags
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Send one frame to a strip",
	Long: `Builds a frame from --color or --hex and sends it through --driver:
bitbang toggles a GPIO line from this host, spi uses an SPI port as an NRZ
encoder, console draws the frame in the terminal and mcu sends it to gopixel
firmware.`,
	Example: "  gopixel-host write --pin GPIO18 -n 60 --color ff8000\n  gopixel-host -c strips.toml -s shelf write --hex 00ff00ff0000",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWrite(cmd, &writeStrip, &writeFrame, "", writeRepeat, writeEvery)
	},
}

var writeDualCmd = &cobra.Command{
	Use:   "write-dual",
	Short: "Send one frame split across two lines",
	Long: `Sends the first half of the frame on --pin and the second half on --pin-b,
both lines clocked together with the dual timing.`,
	Example: "  gopixel-host write-dual --pin GPIO18 --pin-b GPIO19 --hex ff0000000000",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dualStrip.pinB == "" && stripName == "" {
			return errors.New("write-dual needs --pin-b")
		}
		return runWrite(cmd, &dualStrip, &dualFrame, "", 1, 0)
	},
}

var sendCmd = &cobra.Command{
	Use:     "send",
	Short:   "Send one frame to a strip on the MCU",
	Long:    `Connects to gopixel firmware, configures the strip, uploads the frame in chunks and triggers one transmission.`,
	Example: "  gopixel-host send --device /dev/ttyACM0 --pin gpio5 -n 30 --color 0,0,255",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWrite(cmd, &sendStrip, &sendFrame, config.DriverMCU, 1, 0)
	},
}

// runWrite sends one frame repeat times. A non-empty driver overrides the
// flags and the config file.
func runWrite(cmd *cobra.Command, sf *stripFlags, ff *frameFlags, driver string, repeat int, every time.Duration) error {
	file, err := loadFile()
	if err != nil {
		return err
	}
	sc, err := sf.resolve(cmd, file)
	if err != nil {
		return err
	}
	if driver != "" {
		sc.Driver = driver
	}
	frame, err := ff.build(&sc)
	if err != nil {
		return err
	}
	out, err := openSink(sc, sf.deviceName(file))
	if err != nil {
		return err
	}
	defer out.Close()

	l := log.With().Str("driver", sc.Driver).Str("pin", sc.Pin).Int("bytes", len(frame)).Logger()
	if sc.Dual() {
		l = l.With().Str("pin_b", sc.PinB).Logger()
	}
	for i := 0; i < repeat; i++ {
		if i > 0 && every > 0 {
			time.Sleep(every)
		}
		start := time.Now()
		if err := out.Write(frame, sc.Order); err != nil {
			return err
		}
		l.Debug().Dur("took", time.Since(start)).Int("frame", i).Msg("sent")
	}
	l.Info().Stringer("variant", sc.Variant).Stringer("order", sc.Order).Msg("frame written")
	return nil
}

func init() {
	writeStrip.register(writeCmd.Flags(), "bitbang, spi, console or mcu")
	writeFrame.register(writeCmd.Flags())
	writeCmd.Flags().IntVar(&writeRepeat, "repeat", 1, "send the frame this many times")
	writeCmd.Flags().DurationVar(&writeEvery, "every", 20*time.Millisecond, "pause between repeated frames")

	dualStrip.register(writeDualCmd.Flags(), "bitbang or mcu")
	dualFrame.register(writeDualCmd.Flags())

	sendStrip.register(sendCmd.Flags(), "mcu")
	sendFrame.register(sendCmd.Flags())
	_ = sendCmd.Flags().MarkHidden("driver")
	_ = sendCmd.Flags().MarkHidden("spi-port")
	_ = sendCmd.Flags().MarkHidden("spi-freq")

	rootCmd.AddCommand(writeCmd, writeDualCmd, sendCmd)
}
