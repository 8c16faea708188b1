// Package config loads the named strip definitions used by gopixel-host.
//
// A file looks like:
//
//	device = "/dev/ttyACM0"
//
//	[strips.shelf]
//	pin = "GPIO18"
//	variant = "ws2812"
//	order = "rgb"
//	count = 60
//
// Files ending in .yaml or .yml are read as YAML with the same keys.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"gopixel/core"
)

// Drivers a strip can be written with.
const (
	DriverBitbang = "bitbang"
	DriverSPI     = "spi"
	DriverConsole = "console"
	DriverMCU     = "mcu"
)

// File is the on-disk layout.
type File struct {
	Device string           `toml:"device" yaml:"device"`
	Listen string           `toml:"listen" yaml:"listen"`
	Strips map[string]Strip `toml:"strips" yaml:"strips"`
}

// Strip is one [strips.<name>] table, still as text.
type Strip struct {
	Pin     string `toml:"pin" yaml:"pin"`
	PinB    string `toml:"pin_b" yaml:"pin_b"`
	Variant string `toml:"variant" yaml:"variant"`
	Order   string `toml:"order" yaml:"order"`
	Count   int    `toml:"count" yaml:"count"`
	Driver  string `toml:"driver" yaml:"driver"`
	SPIPort string `toml:"spi_port" yaml:"spi_port"`
	SPIFreq string `toml:"spi_freq" yaml:"spi_freq"`
	OID     int    `toml:"oid" yaml:"oid"`
}

// StripConfig is a validated strip.
type StripConfig struct {
	Name    string
	Pin     string
	PinB    string
	Variant core.Variant
	Order   core.ChannelOrder
	Count   int
	Driver  string
	SPIPort string
	SPIFreq physic.Frequency
	OID     uint8
	// Frame overrides the frame length when a raw frame does not fill
	// whole pixels.
	Frame int
}

// Dual reports whether the strip uses two data lines.
func (s StripConfig) Dual() bool {
	return s.PinB != ""
}

// Bytes is the size of one frame for the strip. Count is per line, so a
// dual strip frame is twice as long.
func (s StripConfig) Bytes() int {
	if s.Frame > 0 {
		return s.Frame
	}
	if s.Dual() {
		return s.Count * 6
	}
	return s.Count * 3
}

// Load reads path, picking the decoder from its extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err = ParseYAML(data)
	default:
		f, err = ParseTOML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseTOML decodes a TOML document. Unknown keys are errors.
func ParseTOML(data []byte) (*File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ParseYAML decodes a YAML document. Unknown keys are errors.
func ParseYAML(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &f, nil
}

// Names lists the strips in the file, sorted.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Strips))
	for name := range f.Strips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Strip validates and returns the named strip.
func (f *File) Strip(name string) (StripConfig, error) {
	s, ok := f.Strips[name]
	if !ok {
		return StripConfig{}, fmt.Errorf("no strip %q in config", name)
	}
	sc, err := s.Resolve()
	if err != nil {
		return StripConfig{}, fmt.Errorf("strip %s: %w", name, err)
	}
	sc.Name = name
	return sc, nil
}

// Resolve parses the text fields, filling defaults: ws2812, grb order,
// the bitbang driver.
func (s Strip) Resolve() (StripConfig, error) {
	sc := StripConfig{
		Pin:     s.Pin,
		PinB:    s.PinB,
		Count:   s.Count,
		Driver:  s.Driver,
		SPIPort: s.SPIPort,
	}
	if s.Pin == "" && s.Driver != DriverSPI && s.Driver != DriverConsole {
		return sc, errors.New("pin is required")
	}
	if s.Count <= 0 {
		return sc, fmt.Errorf("count %d must be positive", s.Count)
	}
	if s.OID < 0 || s.OID > 255 {
		return sc, fmt.Errorf("oid %d outside 0..255", s.OID)
	}
	sc.OID = uint8(s.OID)

	var ok bool
	variant := strings.ToLower(orDefault(s.Variant, "ws2812"))
	if sc.Variant, ok = core.ParseVariant(variant); !ok || sc.Variant == core.VariantDual {
		return sc, fmt.Errorf("unknown variant %q", s.Variant)
	}
	order := strings.ToLower(orDefault(s.Order, "grb"))
	if sc.Order, ok = core.ParseChannelOrder(order); !ok {
		return sc, fmt.Errorf("unknown order %q", s.Order)
	}
	if sc.Dual() {
		sc.Variant, sc.Order = core.VariantDual, core.OrderGRB
	}

	switch sc.Driver {
	case "":
		sc.Driver = DriverBitbang
	case DriverBitbang, DriverSPI, DriverConsole, DriverMCU:
	default:
		return sc, fmt.Errorf("unknown driver %q", sc.Driver)
	}
	if sc.Dual() && (sc.Driver == DriverSPI || sc.Driver == DriverConsole) {
		return sc, fmt.Errorf("driver %s cannot drive two lines", sc.Driver)
	}

	if s.SPIFreq != "" {
		if err := sc.SPIFreq.Set(s.SPIFreq); err != nil {
			return sc, fmt.Errorf("spi_freq: %w", err)
		}
	}
	return sc, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
