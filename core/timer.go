package core

// CycleClock reads a free-running 32-bit cycle counter that wraps silently.
// Elapsed time is always computed as Now()-start in uint32 arithmetic, so a
// single wrap during a transmission is harmless.
type CycleClock interface {
	Now() uint32
}

// ClockFunc adapts a plain function to CycleClock.
type ClockFunc func() uint32

func (f ClockFunc) Now() uint32 { return f() }

var (
	cycleClock CycleClock
	clockFreq  uint32
	bootCycles uint32
)

// SetCycleClock is called by target-specific code to register the hardware
// counter together with the frequency it counts at, in Hz.
func SetCycleClock(c CycleClock, freqHz uint32) {
	cycleClock = c
	clockFreq = freqHz
	bootCycles = c.Now()
}

// MustCycleClock returns the registered clock or panics if missing.
func MustCycleClock() CycleClock {
	if cycleClock == nil {
		panic("cycle clock not configured")
	}
	return cycleClock
}

// ClockFrequency returns the registered clock frequency in Hz.
func ClockFrequency() uint32 {
	return clockFreq
}

// GetTime returns the current cycle counter value
func GetTime() uint32 {
	return MustCycleClock().Now()
}

// GetUptime returns cycles since SetCycleClock, 32-bit only: callers must
// poll more often than the counter wraps.
func GetUptime() uint64 {
	return uint64(GetTime() - bootCycles)
}

// spinUntil busy-waits until at least d cycles have passed since start and
// returns the counter value that satisfied the wait.
func spinUntil(clk CycleClock, start, d uint32) uint32 {
	for {
		c := clk.Now()
		if c-start >= d {
			return c
		}
	}
}

// CyclesFromNS converts nanoseconds to cycles at freqHz, truncating.
func CyclesFromNS(freqHz, ns uint32) uint32 {
	return uint32(uint64(freqHz) * uint64(ns) / 1e9)
}

// cyclesFromNSCeil is CyclesFromNS rounded up, for floors that must not shrink.
func cyclesFromNSCeil(freqHz, ns uint32) uint32 {
	return uint32((uint64(freqHz)*uint64(ns) + 1e9 - 1) / 1e9)
}

// CyclesToNS converts a cycle count at freqHz back to nanoseconds.
func CyclesToNS(freqHz, cycles uint32) uint32 {
	if freqHz == 0 {
		return 0
	}
	return uint32(uint64(cycles) * 1e9 / uint64(freqHz))
}
