package core

import "errors"

// ErrUnevenChannels is returned by the dual writers when the two channels
// would not be the same length. Nothing is transmitted in that case.
var ErrUnevenChannels = errors.New("ws281x: dual channels differ in length")

// Writer performs synchronous WS281x transmissions against one cycle clock.
// It holds no state between calls; each write derives its timing profile,
// masks interrupts, emits the whole buffer and returns.
type Writer struct {
	clock CycleClock
	freq  uint32
}

// NewWriter returns a Writer for a clock counting at freqHz.
func NewWriter(clock CycleClock, freqHz uint32) (*Writer, error) {
	if freqHz < MinClockFrequency || freqHz > MaxClockFrequency {
		return nil, ErrClockFrequency
	}
	return &Writer{clock: clock, freq: freqHz}, nil
}

// Profile returns the timing the writer would use for v.
func (w *Writer) Profile(v Variant) Profile {
	return NewProfile(w.freq, v)
}

// WriteSingle emits buf on out using the timing of v. buf is sent as-is;
// use ReorderChannels first if the strip expects a different channel order.
// An empty buf returns immediately.
func (w *Writer) WriteSingle(out DigitalOutput, buf []byte, v Variant) {
	p := NewProfile(w.freq, v)
	withInterruptsDisabled(func() {
		emitSingle(out, w.clock, buf, p)
	})
}

// WriteDual splits buf into two halves and emits the first half on a and
// the second on b. An odd length is rejected with ErrUnevenChannels.
func (w *Writer) WriteDual(a, b DigitalOutput, buf []byte) error {
	if len(buf)%2 != 0 {
		return ErrUnevenChannels
	}
	half := len(buf) / 2
	return w.WriteDualSplit(a, b, buf[:half], buf[half:])
}

// WriteDualSplit emits bufA on a and bufB on b in lock-step.
func (w *Writer) WriteDualSplit(a, b DigitalOutput, bufA, bufB []byte) error {
	if len(bufA) != len(bufB) {
		return ErrUnevenChannels
	}
	p := NewProfile(w.freq, VariantDual)
	withInterruptsDisabled(func() {
		emitDual(a, b, w.clock, bufA, bufB, p)
	})
	return nil
}

// DefaultWriter builds a Writer from the clock registered with SetCycleClock.
func DefaultWriter() (*Writer, error) {
	return NewWriter(MustCycleClock(), ClockFrequency())
}

// WriteSinglePin resolves pin through the registered GPIO driver and emits
// buf on it.
func WriteSinglePin(pin GPIOPin, buf []byte, v Variant) error {
	w, err := DefaultWriter()
	if err != nil {
		return err
	}
	out, err := PinOutput(pin)
	if err != nil {
		return err
	}
	w.WriteSingle(out, buf, v)
	return nil
}

// WriteDualPins resolves both pins and emits the two halves of buf.
func WriteDualPins(pinA, pinB GPIOPin, buf []byte) error {
	w, err := DefaultWriter()
	if err != nil {
		return err
	}
	a, err := PinOutput(pinA)
	if err != nil {
		return err
	}
	b, err := PinOutput(pinB)
	if err != nil {
		return err
	}
	return w.WriteDual(a, b, buf)
}
