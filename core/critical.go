package core

// withInterruptsDisabled runs fn with interrupt delivery masked. The previous
// state is restored on every exit path, panics included.
func withInterruptsDisabled(fn func()) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	fn()
}
