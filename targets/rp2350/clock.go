//go:build rp2350

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"

	"gopixel/core"
)

// Cortex-M33 debug registers. The DWT cycle counter ticks once per core
// clock and is the time base for the WS281x encoder.
const (
	demcrAddr    = 0xE000EDFC
	demcrTRCENA  = 1 << 24
	dwtCtrlAddr  = 0xE0001000
	dwtCYCCNTENA = 1 << 0
	dwtCyccnt    = 0xE0001004
)

var (
	demcr   = (*volatile.Register32)(unsafe.Pointer(uintptr(demcrAddr)))
	dwtCtrl = (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCtrlAddr)))
	cyccnt  = (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCyccnt)))
)

// InitClock enables the DWT cycle counter and registers it with core
// together with the current system clock frequency.
func InitClock() {
	demcr.SetBits(demcrTRCENA)
	cyccnt.Set(0)
	dwtCtrl.SetBits(dwtCYCCNTENA)

	freq := machine.CPUFrequency()
	core.SetCycleClock(core.ClockFunc(readCycles), freq)

	core.RegisterStringConstant("MCU", "rp2350")
	core.RegisterConstant("CLOCK_FREQ", freq)
}

func readCycles() uint32 {
	return cyccnt.Get()
}
