package core

// emitSingle shifts buf out MSB first as a WS281x pulse train on out.
//
// Every wait is measured from the previous rising edge, so jitter in one bit
// is absorbed by the next instead of accumulating. start begins at zero,
// meaning the first bit waits at most one period after the counter passes it.
// An empty buf is a no-op. Must run inside a critical section.
func emitSingle(out DigitalOutput, clk CycleClock, buf []byte, p Profile) {
	var start uint32
	for _, pix := range buf {
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			high := p.ShortHigh
			if pix&mask != 0 {
				high = p.LongHigh
			}
			start = spinUntil(clk, start, p.Period)
			out.High()
			spinUntil(clk, start, high)
			out.Low()
		}
	}
}

// emitDual shifts bufA out on a and bufB out on b in lock-step. Both lines
// rise together on a shared edge; only their falling edges differ. When the
// two bits disagree the 0 line drops at ShortHigh and the 1 line is held
// until MixedHigh so its high time still covers LongHigh.
//
// bufA and bufB must have the same length. Must run inside a critical section.
func emitDual(a, b DigitalOutput, clk CycleClock, bufA, bufB []byte, p Profile) {
	if len(bufA) == 0 {
		return
	}
	start := clk.Now()
	for i, pixA := range bufA {
		pixB := bufB[i]
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			bitA, bitB := pixA&mask != 0, pixB&mask != 0

			start = spinUntil(clk, start, p.Period)
			a.High()
			b.High()

			switch {
			case bitA && bitB:
				spinUntil(clk, start, p.LongHigh)
				a.Low()
				b.Low()
			case bitA:
				spinUntil(clk, start, p.ShortHigh)
				b.Low()
				spinUntil(clk, start, p.MixedHigh)
				a.Low()
			case bitB:
				spinUntil(clk, start, p.ShortHigh)
				a.Low()
				spinUntil(clk, start, p.MixedHigh)
				b.Low()
			default:
				spinUntil(clk, start, p.ShortHigh)
				a.Low()
				b.Low()
			}
		}
	}
}
