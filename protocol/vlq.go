package protocol

import "errors"

var ErrBufferTooSmall = errors.New("protocol: truncated argument")

// AppendVLQInt appends v in the protocol's variable-length encoding: 7 bits
// per byte, most significant group first, high bit set on all but the last.
// Values in [-32, 96) fit one byte; the second bit of the first byte is the
// sign.
func AppendVLQInt(dst []byte, v int32) []byte {
	for shift := uint(28); shift > 0; shift -= 7 {
		lim := int32(1) << (shift - 2)
		if v < -lim || v >= 3*lim {
			dst = append(dst, byte(v>>shift)&0x7F|0x80)
		}
	}
	return append(dst, byte(v)&0x7F)
}

// AppendVLQUint appends v; large values travel as their int32 bit pattern.
func AppendVLQUint(dst []byte, v uint32) []byte {
	return AppendVLQInt(dst, int32(v))
}

// EncodeVLQInt writes v to output.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var scratch [5]byte
	output.Output(AppendVLQInt(scratch[:0], v))
}

// EncodeVLQUint writes v to output.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt decodes one integer from the front of *data and advances it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	b := *data
	if len(b) == 0 {
		return 0, ErrBufferTooSmall
	}
	c := uint32(b[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(b) {
			return 0, ErrBufferTooSmall
		}
		c = uint32(b[i])
		i++
		v = v<<7 | c&0x7F
	}
	*data = b[i:]
	return int32(v), nil
}

// DecodeVLQUint decodes one unsigned integer from the front of *data.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes writes a length-prefixed byte string.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// AppendVLQBytes appends a length-prefixed byte string.
func AppendVLQBytes(dst []byte, data []byte) []byte {
	dst = AppendVLQUint(dst, uint32(len(data)))
	return append(dst, data...)
}

// DecodeVLQBytes decodes a length-prefixed byte string. The result aliases
// *data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	b := *data
	n, err := DecodeVLQUint(&b)
	if err != nil {
		return nil, err
	}
	if uint32(len(b)) < n {
		return nil, ErrBufferTooSmall
	}
	*data = b[n:]
	return b[:n], nil
}

// DecodeVLQString decodes a length-prefixed string.
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	return string(b), err
}
