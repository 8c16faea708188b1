//go:build tinygo

package core

import "runtime/interrupt"

var criticalDepth int32

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() interrupt.State {
	s := interrupt.Disable()
	criticalDepth++
	return s
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	criticalDepth--
	interrupt.Restore(state)
}

// InCriticalSection reports whether a critical section is currently held.
func InCriticalSection() bool {
	return criticalDepth > 0
}
