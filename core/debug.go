package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures one transmission for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Strip object ID
	Clock     uint32 // Cycle counter at the start of the event
	Value1    uint32 // Elapsed cycles
	Value2    uint32 // Bytes per channel
}

// Event type codes
const (
	EvtSend     = 1 // single-channel strip sent
	EvtSendDual = 2 // dual-channel strip sent
	EvtLatch    = 3 // send waited for the previous latch window
	EvtReject   = 4 // send refused (shutdown or bad length)
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active.
	// Printing from inside a transmission would ruin its timing, so this
	// is only ever consulted outside critical sections.
	debugEnabled bool

	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTiming captures an event in the ring buffer. Never call it from
// inside an encoder loop; record before or after the critical section.
func RecordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the recorded events, oldest first.
func TimingEvents() []TimingEvent {
	out := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(timingRingHead+i)%TimingRingSize]
		if evt.EventType != 0 {
			out = append(out, evt)
		}
	}
	return out
}

// DumpTimingRing writes the ring buffer through the debug writer
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		var name string
		switch evt.EventType {
		case EvtSend:
			name = "SEND"
		case EvtSendDual:
			name = "SEND_DUAL"
		case EvtLatch:
			name = "LATCH_WAIT"
		case EvtReject:
			name = "REJECT"
		default:
			name = "UNKNOWN"
		}
		debugPrintln("[TIMING] " + name +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" cycles=" + utoa(evt.Value1) +
			" bytes=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	timingRing = [TimingRingSize]TimingEvent{}
	timingRingHead = 0
}

// itoa converts an integer to a string without the fmt package
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	var buf [10]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return string(buf[pos:])
}
