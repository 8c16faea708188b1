// Package protocol implements the framed, CRC-checked message transport
// spoken between the host tool and the firmware.
package protocol

import (
	"errors"
	"sync/atomic"
)

// Frame layout: len, seq, payload..., crc_hi, crc_lo, sync.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax sizes the firmware's output scratch buffer, which may
	// hold several frames between flushes.
	MessageMax = 512
)

// ErrFrameTooLong is returned when a payload does not fit one frame.
var ErrFrameTooLong = errors.New("protocol: frame exceeds maximum length")

// Message is one validated frame.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // between header and trailer
	CRC      uint16
}

// IsAck reports whether the frame carries no payload.
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// NextSequence returns the sequence byte that follows seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// AppendFrame appends a complete frame carrying payload to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := len(payload) + MessageLengthMin
	if n > MessageLengthMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, uint8(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync), nil
}

// frameScanner splits a byte stream into frames. After any corrupt frame it
// drops input up to the next sync byte before trying again.
type frameScanner struct {
	synchronized uint32 // atomic bool
	// destOnly rejects frames whose sequence byte lacks MessageDest.
	destOnly bool
}

func newFrameScanner(destOnly bool) frameScanner {
	return frameScanner{synchronized: 1, destOnly: destOnly}
}

func (s *frameScanner) synced() bool {
	return atomic.LoadUint32(&s.synchronized) != 0
}

func (s *frameScanner) setSynced(v bool) {
	var n uint32
	if v {
		n = 1
	}
	atomic.StoreUint32(&s.synchronized, n)
}

// scan calls onFrame for every valid frame in data and onResync whenever
// sync is regained. It returns how many bytes were consumed; a partial
// trailing frame is left for the next call. The payload passed to onFrame
// aliases data.
func (s *frameScanner) scan(data []byte, onFrame func(*Message), onResync func()) int {
	total := len(data)
	for len(data) > 0 {
		if !s.synced() {
			i := indexSync(data)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			s.setSynced(true)
			if onResync != nil {
				onResync()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}
		n := int(data[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax {
			s.setSynced(false)
			continue
		}
		seq := data[MessagePositionSeq]
		if s.destOnly && seq&^MessageSeqMask != MessageDest {
			s.setSynced(false)
			continue
		}
		if len(data) < n {
			break
		}
		if data[n-MessageTrailerSync] != MessageValueSync {
			s.setSynced(false)
			continue
		}
		crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
		if crc != CRC16(data[:n-MessageTrailerSize]) {
			s.setSynced(false)
			continue
		}
		msg := Message{
			Length:   uint8(n),
			Sequence: seq,
			Payload:  data[MessageHeaderSize : n-MessageTrailerSize],
			CRC:      crc,
		}
		data = data[n:]
		onFrame(&msg)
	}
	return total - len(data)
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i
		}
	}
	return -1
}
