package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/physic"

	"gopixel/core"
	"gopixel/host/bitbang"
	"gopixel/host/config"
	"gopixel/host/mcu"
	"gopixel/host/stream"
)

const defaultDevice = "/dev/ttyACM0"

// stripFlags are the per-command strip settings. Flags the user set win
// over the strip named by --strip, which wins over the defaults.
type stripFlags struct {
	pin     string
	pinB    string
	variant string
	order   string
	count   int
	driver  string
	spiPort string
	spiFreq string
	oid     int
	device  string
}

func (f *stripFlags) register(fs *pflag.FlagSet, drivers string) {
	fs.StringVar(&f.pin, "pin", "", "data pin (GPIO18, 18, gpio5)")
	fs.StringVar(&f.pinB, "pin-b", "", "second data pin for a dual strip")
	fs.StringVar(&f.variant, "variant", "ws2812", "timing variant: ws2812 or ws2811")
	fs.StringVar(&f.order, "order", "grb", "channel order of the frame data: grb or rgb")
	fs.IntVarP(&f.count, "count", "n", 1, "pixels per line")
	fs.StringVar(&f.driver, "driver", config.DriverBitbang, "output: "+drivers)
	fs.StringVar(&f.spiPort, "spi-port", "", "SPI port for --driver spi (default: first)")
	fs.StringVar(&f.spiFreq, "spi-freq", "", "SPI bit rate for --driver spi (e.g. 2.5MHz)")
	fs.IntVar(&f.oid, "oid", 0, "object id on the MCU")
	fs.StringVar(&f.device, "device", "", "serial device of the MCU (default "+defaultDevice+")")
}

// resolve merges the flags into the named strip, if any, and validates.
func (f *stripFlags) resolve(cmd *cobra.Command, file *config.File) (config.StripConfig, error) {
	var s config.Strip
	if stripName != "" {
		named, ok := file.Strips[stripName]
		if !ok {
			return config.StripConfig{}, fmt.Errorf("no strip %q in config", stripName)
		}
		s = named
	}
	fs := cmd.Flags()
	set := func(name string) bool {
		return stripName == "" || fs.Changed(name)
	}
	if set("pin") {
		s.Pin = f.pin
	}
	if set("pin-b") {
		s.PinB = f.pinB
	}
	if set("variant") {
		s.Variant = f.variant
	}
	if set("order") {
		s.Order = f.order
	}
	if set("count") {
		s.Count = f.count
	}
	if set("driver") {
		s.Driver = f.driver
	}
	if set("spi-port") {
		s.SPIPort = f.spiPort
	}
	if set("spi-freq") {
		s.SPIFreq = f.spiFreq
	}
	if set("oid") {
		s.OID = f.oid
	}
	sc, err := s.Resolve()
	if err != nil {
		return sc, err
	}
	sc.Name = stripName
	return sc, nil
}

func (f *stripFlags) deviceName(file *config.File) string {
	switch {
	case f.device != "":
		return f.device
	case file.Device != "":
		return file.Device
	}
	return defaultDevice
}

// frameFlags describe the frame to send.
type frameFlags struct {
	color string
	hex   string
}

func (f *frameFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.color, "color", "", "fill every pixel: rrggbb or r,g,b")
	fs.StringVar(&f.hex, "hex", "", "raw frame bytes in the strip's channel order")
}

// build returns the frame for sc. A raw --hex frame also sets the pixel
// count and the exact frame length.
func (f *frameFlags) build(sc *config.StripConfig) ([]byte, error) {
	if f.hex != "" && f.color != "" {
		return nil, errors.New("--hex and --color are exclusive")
	}
	if f.hex != "" {
		buf, err := hex.DecodeString(strings.ReplaceAll(f.hex, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("--hex: %w", err)
		}
		if sc.Dual() {
			if len(buf)%2 != 0 {
				return nil, core.ErrUnevenChannels
			}
			sc.Count = (len(buf)/2 + 2) / 3
		} else {
			sc.Count = (len(buf) + 2) / 3
		}
		sc.Frame = len(buf)
		return buf, nil
	}
	r, g, b, err := parseColor(f.color)
	if err != nil {
		return nil, err
	}
	px := [3]byte{g, r, b}
	if sc.Order == core.OrderRGB {
		px = [3]byte{r, g, b}
	}
	buf := make([]byte, sc.Bytes())
	for i := 0; i < len(buf); i += 3 {
		copy(buf[i:], px[:])
	}
	return buf, nil
}

// parseColor accepts "", "rrggbb" and "r,g,b". The empty color is black.
func parseColor(s string) (r, g, b byte, err error) {
	if s == "" {
		return 0, 0, 0, nil
	}
	if parts := strings.Split(s, ","); len(parts) == 3 {
		var v [3]byte
		for i, p := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("color %q: %w", s, err)
			}
			v[i] = byte(n)
		}
		return v[0], v[1], v[2], nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(raw) != 3 {
		return 0, 0, 0, fmt.Errorf("color %q: want rrggbb or r,g,b", s)
	}
	return raw[0], raw[1], raw[2], nil
}

// sink is an open strip output.
type sink interface {
	stream.Sink
	Close() error
}

// openSink opens the output sc.Driver names.
func openSink(sc config.StripConfig, device string) (sink, error) {
	var (
		s   sink
		err error
	)
	switch sc.Driver {
	case config.DriverSPI:
		s, err = bitbang.OpenSPI(sc.SPIPort, sc.Count, sc.SPIFreq)
	case config.DriverConsole:
		s = bitbang.NewPreview(sc.Count)
	case config.DriverMCU:
		s, err = openMCUSink(sc, device)
	default:
		s, err = openLineSink(sc)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// lineSink bit-bangs frames on one or two periph lines.
type lineSink struct {
	w       *core.Writer
	lines   []*bitbang.Line
	variant core.Variant
}

func openLineSink(sc config.StripConfig) (*lineSink, error) {
	w, err := bitbang.NewWriter()
	if err != nil {
		return nil, err
	}
	s := &lineSink{w: w, variant: sc.Variant}
	pins := []string{sc.Pin}
	if sc.Dual() {
		pins = append(pins, sc.PinB)
	}
	for _, pin := range pins {
		l, err := bitbang.OpenLine(pin)
		if err != nil {
			return nil, err
		}
		s.lines = append(s.lines, l)
	}
	log.Debug().Strs("pins", pins).Stringer("variant", sc.Variant).
		Uint32("short_high_ns", w.Profile(sc.Variant).ShortHigh).Msg("bitbang ready")
	return s, nil
}

func (s *lineSink) Write(buf []byte, order core.ChannelOrder) error {
	if order == core.OrderRGB {
		buf = core.ReorderChannels(buf)
	}
	if len(s.lines) == 2 {
		if err := s.w.WriteDual(s.lines[0], s.lines[1], buf); err != nil {
			return err
		}
	} else {
		s.w.WriteSingle(s.lines[0], buf, s.variant)
	}
	for _, l := range s.lines {
		if err := l.Err(); err != nil {
			return fmt.Errorf("%s: %w", l, err)
		}
	}
	return nil
}

func (s *lineSink) Close() error {
	for _, l := range s.lines {
		l.Low()
	}
	return nil
}

// mcuSink sends frames to a strip configured on the firmware. The firmware
// reorders according to the strip's configured order.
type mcuSink struct {
	m   *mcu.MCU
	oid uint8
}

func openMCUSink(sc config.StripConfig, device string) (*mcuSink, error) {
	m, err := mcu.Connect(device, log)
	if err != nil {
		return nil, err
	}
	if err := configureMCUStrip(m, sc); err != nil {
		_ = m.Close()
		return nil, err
	}
	return &mcuSink{m: m, oid: sc.OID}, nil
}

// configureMCUStrip sizes the firmware strip to exactly one frame so a dual
// strip splits where the frame does.
func configureMCUStrip(m *mcu.MCU, sc config.StripConfig) error {
	if sc.Dual() {
		return m.ConfigureDualStrip(sc.OID, sc.Pin, sc.PinB, sc.Bytes())
	}
	return m.ConfigureStrip(sc.OID, sc.Pin, sc.Bytes(), sc.Variant, sc.Order)
}

func (s *mcuSink) Write(buf []byte, _ core.ChannelOrder) error {
	return s.m.WriteStrip(s.oid, buf)
}

func (s *mcuSink) Close() error {
	return s.m.Close()
}

// physicFreq parses a frequency flag such as "150MHz".
func physicFreq(s string) (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, fmt.Errorf("frequency %q: %w", s, err)
	}
	return f, nil
}
