package core

// ChannelOrder is the byte order the caller hands over for each pixel.
type ChannelOrder uint8

const (
	// OrderGRB buffers are already in on-wire order and pass through untouched.
	OrderGRB ChannelOrder = iota
	// OrderRGB buffers get their first two channels swapped before sending.
	OrderRGB
)

func (o ChannelOrder) String() string {
	if o == OrderRGB {
		return "rgb"
	}
	return "grb"
}

// ParseChannelOrder is the inverse of ChannelOrder.String.
func ParseChannelOrder(s string) (ChannelOrder, bool) {
	switch s {
	case "grb":
		return OrderGRB, true
	case "rgb":
		return OrderRGB, true
	}
	return 0, false
}

// ReorderChannels returns a copy of buf with the first two bytes of every
// complete triplet swapped (A,B,C -> B,A,C). The 0-2 trailing bytes of an
// incomplete triplet are copied verbatim and will still be transmitted.
// buf itself is never modified.
func ReorderChannels(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	for i := 0; i+2 < len(out); i += 3 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return out
}

// prepare applies the order's policy. OrderGRB returns buf itself.
func (o ChannelOrder) prepare(buf []byte) []byte {
	if o == OrderRGB {
		return ReorderChannels(buf)
	}
	return buf
}
