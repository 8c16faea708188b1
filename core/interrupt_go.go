//go:build !tinygo

package core

import (
	"runtime"
	"sync/atomic"
)

// State records what restoreInterrupts has to undo on hosted Go.
type State uintptr

// criticalDepth counts nested critical sections across all goroutines.
var criticalDepth int32

// disableInterrupts cannot mask interrupts in a hosted process; it pins the
// calling goroutine to its OS thread so the Go scheduler does not migrate it
// mid-transmission.
func disableInterrupts() State {
	runtime.LockOSThread()
	return State(atomic.AddInt32(&criticalDepth, 1))
}

// restoreInterrupts undoes one disableInterrupts call.
func restoreInterrupts(state State) {
	atomic.AddInt32(&criticalDepth, -1)
	runtime.UnlockOSThread()
}

// InCriticalSection reports whether any critical section is currently held.
func InCriticalSection() bool {
	return atomic.LoadInt32(&criticalDepth) > 0
}
