package core

import "errors"

// Variant selects one of the closely related WS281x timing tables.
type Variant uint8

const (
	VariantWS2812 Variant = iota // 800 kHz parts, 1.25 µs minimum bit period
	VariantWS2811                // slower parts, 1.50 µs minimum bit period
	VariantDual                  // two strips driven in lock-step
)

// Supported cycle-clock range. Below the minimum the short high time rounds
// down to a couple of cycles and the pulse shape is no longer meaningful.
const (
	MinClockFrequency = 8000000
	MaxClockFrequency = 1000000000
)

// ErrClockFrequency is returned when a writer is built for a clock outside
// MinClockFrequency..MaxClockFrequency.
var ErrClockFrequency = errors.New("ws281x: clock frequency out of range")

// Timing constants in nanoseconds. The datasheets give T0H 0.35±0.15 µs and
// T1H 0.70±0.15 µs with a total of 0.85..1.45 µs, but in practice anything
// below 1.25 µs per bit glitches after a while. The values sit on the safe
// side of each window and are not meant to be re-derived.
const (
	ws2812ShortHighNS = 300
	ws2812LongHighNS  = 600
	ws2812PeriodNS    = 1250

	ws2811ShortHighNS = 350
	ws2811LongHighNS  = 700
	ws2811PeriodNS    = 1500

	dualShortHighNS = 350
	dualLongHighNS  = 700
	dualPeriodNS    = 1250
)

// Profile holds the pulse durations for one transmission in raw clock
// cycles. Period is a floor on the time between rising edges, never a target.
type Profile struct {
	ShortHigh uint32 // high time of a 0 bit
	LongHigh  uint32 // high time of a 1 bit
	Period    uint32 // minimum rising-edge to rising-edge time
	MixedHigh uint32 // ShortHigh+LongHigh, used when dual channels disagree
}

// NewProfile derives the cycle constants for v at a clock of freqHz.
// High times truncate; the period rounds up so it never undershoots.
func NewProfile(freqHz uint32, v Variant) Profile {
	var short, long, period uint32
	switch v {
	case VariantWS2811:
		short, long, period = ws2811ShortHighNS, ws2811LongHighNS, ws2811PeriodNS
	case VariantDual:
		short, long, period = dualShortHighNS, dualLongHighNS, dualPeriodNS
	default:
		short, long, period = ws2812ShortHighNS, ws2812LongHighNS, ws2812PeriodNS
	}
	p := Profile{
		ShortHigh: CyclesFromNS(freqHz, short),
		LongHigh:  CyclesFromNS(freqHz, long),
		Period:    cyclesFromNSCeil(freqHz, period),
	}
	p.MixedHigh = p.ShortHigh + p.LongHigh
	return p
}

// String returns the dictionary name of the variant.
func (v Variant) String() string {
	switch v {
	case VariantWS2812:
		return "ws2812"
	case VariantWS2811:
		return "ws2811"
	case VariantDual:
		return "dual"
	}
	return "unknown"
}

// ParseVariant is the inverse of Variant.String.
func ParseVariant(s string) (Variant, bool) {
	for _, v := range []Variant{VariantWS2812, VariantWS2811, VariantDual} {
		if v.String() == s {
			return v, true
		}
	}
	return 0, false
}
