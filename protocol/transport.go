package protocol

import "sync/atomic"

// CommandHandler decodes and runs one command; data holds its arguments
// and must be advanced past them.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link. It validates incoming frames,
// dispatches their commands in order and acknowledges each frame.
type Transport struct {
	scanner frameScanner
	// nextSequence is the sequence expected from the host. ACKs and
	// responses carry the same value.
	nextSequence  uint32
	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		scanner:      newFrameScanner(true),
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
}

// Receive consumes every complete frame in input. A partial frame at the
// end is left in place.
func (t *Transport) Receive(input InputBuffer) {
	n := t.scanner.scan(input.Data(), t.receiveFrame, t.encodeAckNak)
	if n > 0 {
		input.Pop(n)
	}
}

func (t *Transport) receiveFrame(msg *Message) {
	expected := t.sequence()
	// A host that restarts begins again at MessageDest.
	if msg.Sequence == MessageDest && expected != MessageDest {
		expected = MessageDest
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}
	if msg.Sequence == expected {
		atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(expected)))
		_ = t.parseFrame(msg.Payload)
	}
	// Out-of-order frames still get a reply; it doubles as a NAK naming
	// the sequence we want.
	t.encodeAckNak()
}

// parseFrame runs each command in frame. A handler error stops the rest of
// the frame; a handler panic also drops sync.
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.setSynced(false)
		}
	}()
	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.setSynced(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// encodeAckNak writes an empty frame and flushes it at once; the host
// waits for the ACK before it accepts responses.
func (t *Transport) encodeAckNak() {
	var buf [MessageLengthMin]byte
	ack, _ := AppendFrame(buf[:0], t.sequence(), nil)
	t.output.Output(ack)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame whose payload is produced by frameData.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()
	t.output.Output([]byte{0, t.sequence()})
	frameData(t.output)
	t.output.Update(cursor, uint8(len(t.output.DataSince(cursor))+MessageTrailerSize))
	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand encodes cmdID followed by the arguments args writes.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state, e.g. after a USB reconnect.
func (t *Transport) Reset() {
	t.scanner.setSynced(true)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers fn to run when the host restarts its sequence.
func (t *Transport) SetResetCallback(fn func()) { t.resetCallback = fn }

// SetFlushCallback registers fn to push pending output to the wire.
func (t *Transport) SetFlushCallback(fn func()) { t.flushCallback = fn }

func (t *Transport) sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.nextSequence))
}
